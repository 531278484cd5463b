package registryauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
)

func decode(b64 string) (map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func TestHostMatches(t *testing.T) {
	if !HostMatches("ghcr.io", "ghcr.io") {
		t.Error("exact host should match")
	}
	if !HostMatches("GHCR.IO", "ghcr.io") {
		t.Error("host match should be case-insensitive")
	}
	if !HostMatches("*.dkr.ecr.us-east-1.amazonaws.com", "123456789012.dkr.ecr.us-east-1.amazonaws.com") {
		t.Error("wildcard should match ECR host")
	}
	if HostMatches("*.example.com", "repo.example.org") {
		t.Error("wildcard should not match a different domain")
	}
	if HostMatches("", "ghcr.io") {
		t.Error("empty pattern matches nothing")
	}
}

func TestBasicProvider(t *testing.T) {
	p := NewBasicProvider("ghcr.io", "u", "p")
	if !p.Match("ghcr.io") {
		t.Fatal("provider should match ghcr.io")
	}

	b64, err := p.Resolve(context.Background(), "ghcr.io", "ghcr.io/acme/app:1.0")
	if err != nil {
		t.Fatal(err)
	}
	m, err := decode(b64)
	if err != nil {
		t.Fatal(err)
	}
	if m["username"] != "u" || m["password"] != "p" || m["serveraddress"] != "ghcr.io" {
		t.Fatalf("unexpected payload: %+v", m)
	}
}

func TestTokenProviderUsesTokenUsername(t *testing.T) {
	p := NewTokenProvider("registry.local", "tok123")

	b64, err := p.Resolve(context.Background(), "registry.local", "registry.local/app:1")
	if err != nil {
		t.Fatal(err)
	}
	m, err := decode(b64)
	if err != nil {
		t.Fatal(err)
	}
	if m["username"] != "token" || m["password"] != "tok123" {
		t.Fatalf("unexpected payload: %+v", m)
	}
}

func TestBasicProviderWithoutCredentials(t *testing.T) {
	p := NewBasicProvider("ghcr.io", "", "")

	b64, err := p.Resolve(context.Background(), "ghcr.io", "ghcr.io/acme/app:1.0")
	if err != nil {
		t.Fatal(err)
	}
	if b64 != "" {
		t.Fatal("no credentials should resolve to anonymous")
	}
}

func TestDockerConfigJSONProvider(t *testing.T) {
	auth := base64.StdEncoding.EncodeToString([]byte("user:pass"))
	dcj := `{"auths": {"ghcr.io": {"auth": "` + auth + `"}}}`

	p := NewDockerConfigJSONProvider("ghcr.io", dcj)
	if !p.Match("ghcr.io") {
		t.Fatal("provider should match ghcr.io")
	}

	b64, err := p.Resolve(context.Background(), "ghcr.io", "ghcr.io/acme/app:1.0")
	if err != nil {
		t.Fatal(err)
	}
	if b64 == "" {
		t.Fatal("expected non-empty auth")
	}
	m, err := decode(b64)
	if err != nil {
		t.Fatal(err)
	}
	if m["username"] != "user" || m["password"] != "pass" {
		t.Fatalf("unexpected creds: %+v", m)
	}
}

func TestDockerConfigJSONIdentityToken(t *testing.T) {
	dcj := `{"auths":{"https://index.docker.io/v1/":{"identitytoken":"idtok"}}}`

	p := NewDockerConfigJSONProvider("index.docker.io", dcj)
	b64, err := p.Resolve(context.Background(), "index.docker.io", "nginx:alpine")
	if err != nil {
		t.Fatal(err)
	}
	m, err := decode(b64)
	if err != nil {
		t.Fatal(err)
	}
	if m["username"] != "token" || m["password"] != "idtok" {
		t.Fatalf("unexpected creds: %+v", m)
	}
}

func TestBuildProviders(t *testing.T) {
	regs := []RegistryConfig{
		{Registry: "ghcr.io", Auth: AuthConfig{Type: "basic", Username: "u", Password: "p"}},
		{Registry: "*.dkr.ecr.us-east-1.amazonaws.com", Auth: AuthConfig{Type: "ecr", Region: "us-east-1"}},
		{Registry: "index.docker.io", Auth: AuthConfig{Type: "dockerconfigjson", DockerConfigJSON: `{"auths":{}}`}},
		{Registry: "x", Auth: AuthConfig{Type: "mystery"}},
	}

	ps := BuildProviders(regs)
	if len(ps) != 3 {
		t.Fatalf("expected 3 providers (unknown type skipped), got %d", len(ps))
	}
}
