package registryauth

import (
	"context"
)

// BasicTokenProvider serves static username/password or token
// credentials for a registry pattern.
type BasicTokenProvider struct {
	registry string
	username string
	password string
	token    string
}

// NewBasicProvider creates a provider for username/password auth.
func NewBasicProvider(registry, username, password string) *BasicTokenProvider {
	return &BasicTokenProvider{registry: registry, username: username, password: password}
}

// NewTokenProvider creates a provider for token auth. The Docker API
// takes tokens as a password with the fixed username "token".
func NewTokenProvider(registry, token string) *BasicTokenProvider {
	return &BasicTokenProvider{registry: registry, token: token}
}

func (p *BasicTokenProvider) Match(host string) bool {
	return HostMatches(p.registry, host)
}

func (p *BasicTokenProvider) Resolve(ctx context.Context, host, imageRef string) (string, error) {
	username := p.username
	password := p.password
	if username == "" && password == "" && p.token != "" {
		username = "token"
		password = p.token
	}
	if username == "" || password == "" {
		return "", nil
	}
	return encode(username, password, host), nil
}
