// Package registryauth resolves Docker registry credentials for image
// pulls, selected per image host.
package registryauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Provider supplies Docker RegistryAuth for a given image host.
type Provider interface {
	Match(host string) bool
	Resolve(ctx context.Context, host string, imageRef string) (string, error)
}

// RegistryConfig configures one registry's credentials.
type RegistryConfig struct {
	// Name of this entry, for logs and config errors
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Registry host pattern; supports a leading wildcard like
	// *.dkr.ecr.us-east-1.amazonaws.com
	Registry string `json:"registry" yaml:"registry"`

	// Auth method for this registry
	Auth AuthConfig `json:"auth" yaml:"auth"`
}

// AuthConfig is the credential material for a registry.
type AuthConfig struct {
	// Type is one of basic, token, dockerconfigjson, ecr
	Type string `json:"type" yaml:"type"`

	// Username and Password for basic auth
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// Token for token auth
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// Region override for ECR
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// DockerConfigJSON is a raw .dockerconfigjson blob
	DockerConfigJSON string `json:"dockerconfigjson,omitempty" yaml:"dockerconfigjson,omitempty"`
}

// HostMatches tests a registry pattern against a host. Patterns are
// exact (case-insensitive) or carry a single * wildcard matched as a
// suffix.
func HostMatches(pattern, host string) bool {
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "*") {
		return strings.EqualFold(pattern, host)
	}
	idx := strings.Index(pattern, "*")
	suffix := pattern[idx+1:]
	return strings.HasSuffix(host, suffix)
}

// encode renders the base64 JSON payload the Docker API expects in
// the X-Registry-Auth header.
func encode(username, password, host string) string {
	payload := map[string]string{
		"username":      username,
		"password":      password,
		"serveraddress": host,
	}
	b, _ := json.Marshal(payload)
	return base64.StdEncoding.EncodeToString(b)
}
