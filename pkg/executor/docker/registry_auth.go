package docker

import (
	"context"
	"strings"

	"github.com/rzbill/slipway/pkg/executor/docker/registryauth"
	"github.com/rzbill/slipway/pkg/log"
)

// Aliases so executor configuration can be written without importing
// the registryauth package directly.
type (
	RegistryConfig = registryauth.RegistryConfig
	RegistryAuth   = registryauth.AuthConfig
)

// parseImageHost extracts the registry host from an image reference.
// References without a registry segment belong to Docker Hub.
func parseImageHost(image string) string {
	const dockerHub = "index.docker.io"

	if !strings.Contains(image, "/") {
		return dockerHub
	}

	first := image[:strings.Index(image, "/")]
	if strings.Contains(first, ".") || strings.Contains(first, ":") || first == "localhost" {
		return first
	}
	return dockerHub
}

// resolveRegistryAuth finds pull credentials for an image, returning
// an empty string (anonymous pull) when no provider matches.
func (e *Executor) resolveRegistryAuth(ctx context.Context, image string) string {
	host := parseImageHost(image)

	for _, provider := range e.providers {
		if !provider.Match(host) {
			continue
		}

		auth, err := provider.Resolve(ctx, host)
		if err != nil {
			e.logger.Warn("Failed to resolve registry credentials",
				log.Str("host", host),
				log.Err(err))
			continue
		}
		if auth != "" {
			return auth
		}
	}
	return ""
}
