package registryauth

// BuildProviders constructs the provider chain from registry
// configuration, in order. Unknown auth types are skipped.
func BuildProviders(regs []RegistryConfig) []Provider {
	var out []Provider
	for _, r := range regs {
		switch r.Auth.Type {
		case "basic":
			out = append(out, NewBasicProvider(r.Registry, r.Auth.Username, r.Auth.Password))
		case "token":
			out = append(out, NewTokenProvider(r.Registry, r.Auth.Token))
		case "dockerconfigjson":
			if r.Auth.DockerConfigJSON != "" {
				out = append(out, NewDockerConfigJSONProvider(r.Registry, r.Auth.DockerConfigJSON))
			}
		case "ecr":
			out = append(out, NewECRProvider(r.Registry, r.Auth.Region))
		}
	}
	return out
}
