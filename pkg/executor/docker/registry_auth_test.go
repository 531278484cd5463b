package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rzbill/slipway/pkg/executor/docker/registryauth"
	"github.com/rzbill/slipway/pkg/log"
)

func decodeAuth(b64 string) (map[string]string, error) {
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

func authTestExecutor(registries []RegistryConfig) *Executor {
	config := DefaultConfig()
	config.Registries = registries
	return &Executor{
		logger:    log.NewTestLogger(),
		config:    config,
		providers: registryauth.BuildProviders(registries),
	}
}

func TestParseImageHost(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ghcr.io/acme/app:1.0", "ghcr.io"},
		{"123456789012.dkr.ecr.us-east-1.amazonaws.com/repo:tag", "123456789012.dkr.ecr.us-east-1.amazonaws.com"},
		{"nginx:alpine", "index.docker.io"},
		{"python:3.7-slim", "index.docker.io"},
		{"localhost:5000/repo", "localhost:5000"},
		{"library/ubuntu:22.04", "index.docker.io"},
	}
	for _, c := range cases {
		got := parseImageHost(c.in)
		if got != c.want {
			t.Fatalf("parseImageHost(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestResolveRegistryAuth_BasicExactAndWildcard(t *testing.T) {
	e := authTestExecutor([]RegistryConfig{
		{Registry: "ghcr.io", Auth: RegistryAuth{Type: "basic", Username: "u", Password: "p"}},
		{Registry: "*.internal.registry.local", Auth: RegistryAuth{Type: "basic", Username: "wu", Password: "wp"}},
	})
	ctx := context.Background()

	// exact host
	auth := e.resolveRegistryAuth(ctx, "ghcr.io/acme/app:1.0")
	if auth == "" {
		t.Fatal("expected non-empty auth for ghcr.io")
	}
	m, err := decodeAuth(auth)
	if err != nil {
		t.Fatal(err)
	}
	if m["username"] != "u" || m["password"] != "p" || !strings.Contains(m["serveraddress"], "ghcr.io") {
		t.Fatalf("unexpected auth payload: %+v", m)
	}

	// wildcard host
	auth2 := e.resolveRegistryAuth(ctx, "a.internal.registry.local/team/app:2")
	if auth2 == "" {
		t.Fatal("expected non-empty auth for wildcard")
	}
	m2, err := decodeAuth(auth2)
	if err != nil {
		t.Fatal(err)
	}
	if m2["username"] != "wu" || m2["password"] != "wp" {
		t.Fatalf("unexpected wildcard auth payload: %+v", m2)
	}

	// docker hub (not configured) should be empty
	if got := e.resolveRegistryAuth(ctx, "nginx:alpine"); got != "" {
		t.Fatalf("expected empty auth for docker hub, got %q", got)
	}
}

func TestResolveRegistryAuthTokenType(t *testing.T) {
	e := authTestExecutor([]RegistryConfig{
		{Registry: "ghcr.io", Auth: RegistryAuth{Type: "token", Token: "ghp_abc123"}},
	})

	auth := e.resolveRegistryAuth(context.Background(), "ghcr.io/acme/app:1.0")
	if auth == "" {
		t.Fatal("expected non-empty auth for token registry")
	}
	m, err := decodeAuth(auth)
	if err != nil {
		t.Fatal(err)
	}
	if m["username"] != "token" || m["password"] != "ghp_abc123" {
		t.Fatalf("unexpected token auth payload: %+v", m)
	}
}
