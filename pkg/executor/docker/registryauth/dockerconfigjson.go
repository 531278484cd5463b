package registryauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// DockerConfigJSONProvider resolves credentials out of a raw
// .dockerconfigjson blob, the format kubelet image pull secrets use.
type DockerConfigJSONProvider struct {
	registry string
	rawJSON  string
}

// NewDockerConfigJSONProvider creates a provider over a raw blob.
func NewDockerConfigJSONProvider(registry, raw string) *DockerConfigJSONProvider {
	return &DockerConfigJSONProvider{registry: registry, rawJSON: raw}
}

func (p *DockerConfigJSONProvider) Match(host string) bool {
	return HostMatches(p.registry, host)
}

func (p *DockerConfigJSONProvider) Resolve(ctx context.Context, host, imageRef string) (string, error) {
	// { "auths": { "<server>": {"auth": "base64(user:pass)", "identitytoken": "..."} } }
	var dcj struct {
		Auths map[string]struct {
			Auth          string `json:"auth"`
			IdentityToken string `json:"identitytoken"`
		} `json:"auths"`
	}
	if err := json.Unmarshal([]byte(p.rawJSON), &dcj); err != nil {
		return "", nil
	}

	// The Docker Hub entry is conventionally keyed by the v1 URL.
	candidates := []string{host, "https://index.docker.io/v1/"}
	for key, v := range dcj.Auths {
		for _, cand := range candidates {
			if key != cand && !strings.Contains(key, host) {
				continue
			}
			if v.Auth != "" {
				dec, err := base64.StdEncoding.DecodeString(v.Auth)
				if err != nil {
					continue
				}
				parts := strings.SplitN(string(dec), ":", 2)
				if len(parts) != 2 {
					continue
				}
				return encode(parts[0], parts[1], host), nil
			}
			if v.IdentityToken != "" {
				return encode("token", v.IdentityToken, host), nil
			}
		}
	}
	return "", nil
}
