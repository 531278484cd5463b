package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rzbill/slipway/pkg/executor/docker"
	"github.com/rzbill/slipway/pkg/executor/docker/registryauth"
	"github.com/rzbill/slipway/pkg/pypi"
)

// Log controls tool logging.
type Log struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Docker configures the docker executor.
type Docker struct {
	APIVersion                string                        `yaml:"api_version" mapstructure:"api_version"`
	FallbackAPIVersion        string                        `yaml:"fallback_api_version" mapstructure:"fallback_api_version"`
	NegotiationTimeoutSeconds int                           `yaml:"negotiation_timeout_seconds" mapstructure:"negotiation_timeout_seconds"`
	Images                    map[string]string             `yaml:"images" mapstructure:"images"`
	Registries                []registryauth.RegistryConfig `yaml:"registries" mapstructure:"registries"`
}

// Python configures interpreter discovery for the use-python task.
type Python struct {
	// Candidates are directories searched for interpreters before PATH
	Candidates []string `yaml:"candidates" mapstructure:"candidates"`
}

// IndexAuth holds credentials for a package index.
type IndexAuth struct {
	Type     string `yaml:"type" mapstructure:"type"` // basic | token
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	Token    string `yaml:"token,omitempty" mapstructure:"token"`
}

// IndexConnection names an upload endpoint plus its credentials, the
// slipfile analog of a service connection.
type IndexConnection struct {
	Name       string    `yaml:"name" mapstructure:"name"`
	Repository string    `yaml:"repository" mapstructure:"repository"`
	Auth       IndexAuth `yaml:"auth" mapstructure:"auth"`
}

// RepositoryConfig maps the connection onto upload settings. Token
// auth becomes the __token__ basic-auth form package indexes expect.
func (c *IndexConnection) RepositoryConfig() pypi.RepositoryConfig {
	repo := pypi.RepositoryConfig{
		Name:     c.Name,
		URL:      c.Repository,
		Username: c.Auth.Username,
		Password: c.Auth.Password,
	}
	if c.Auth.Type == "token" || (c.Auth.Token != "" && c.Auth.Username == "") {
		repo.Username = pypi.TokenUsername
		repo.Password = c.Auth.Token
	}
	return repo
}

// Config is the slipfile.yaml tool configuration. Pipeline definitions
// live in their own files; this covers the machine-local concerns.
type Config struct {
	DataDir     string            `yaml:"data_dir" mapstructure:"data_dir"`
	Executor    string            `yaml:"executor" mapstructure:"executor"`
	Log         Log               `yaml:"log" mapstructure:"log"`
	Docker      Docker            `yaml:"docker" mapstructure:"docker"`
	Connections []IndexConnection `yaml:"connections" mapstructure:"connections"`
	Python      Python            `yaml:"python" mapstructure:"python"`
}

func Default() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		Executor: "host",
		Log:      Log{Level: "info", Format: "text"},
		Docker:   Docker{FallbackAPIVersion: "1.43", NegotiationTimeoutSeconds: 3},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "slipway")
	}
	// System installs keep history under /var/lib; everyone else under $HOME.
	if os.Geteuid() == 0 {
		if st, err := os.Stat("/var/lib"); err == nil && st.IsDir() {
			return "/var/lib/slipway"
		}
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./data"
	}
	return filepath.Join(home, ".slipway")
}

// UserConfigPath is where connection edits land.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".slipway", "slipfile.yaml"), nil
}

// Load reads the slipfile. An explicit path must exist; otherwise the
// usual locations are searched and a missing file just means defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("slipfile")
		v.SetConfigType("yaml")
		v.AddConfigPath(".") // Local development override
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			v.AddConfigPath(filepath.Join(home, ".slipway"))
		}
		v.AddConfigPath("/etc/slipway/") // System-wide config
	}

	v.SetEnvPrefix("SLIPWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{"data_dir", "executor", "log.level", "log.format"} {
		_ = v.BindEnv(key)
	}

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Credentials reference the environment so tokens stay out of the file.
	for i := range cfg.Connections {
		conn := &cfg.Connections[i]
		conn.Repository = os.ExpandEnv(conn.Repository)
		conn.Auth.Username = os.ExpandEnv(conn.Auth.Username)
		conn.Auth.Password = os.ExpandEnv(conn.Auth.Password)
		conn.Auth.Token = os.ExpandEnv(conn.Auth.Token)
	}
	for i := range cfg.Docker.Registries {
		reg := &cfg.Docker.Registries[i]
		reg.Auth.Username = os.ExpandEnv(reg.Auth.Username)
		reg.Auth.Password = os.ExpandEnv(reg.Auth.Password)
		reg.Auth.Token = os.ExpandEnv(reg.Auth.Token)
	}

	return cfg, nil
}

// LookupConnection resolves a named index connection. The method value
// is what the engine hands to tasks.
func (c *Config) LookupConnection(name string) (pypi.RepositoryConfig, error) {
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.Name == name {
			return conn.RepositoryConfig(), nil
		}
	}
	return pypi.RepositoryConfig{}, fmt.Errorf("index connection %q is not configured", name)
}

// DockerConfig maps the docker section onto the executor's config,
// layering configured image aliases over the built-in ones.
func (c *Config) DockerConfig() *docker.Config {
	images := docker.DefaultImages()
	for alias, ref := range c.Docker.Images {
		images[alias] = ref
	}

	return &docker.Config{
		APIVersion:                c.Docker.APIVersion,
		FallbackAPIVersion:        c.Docker.FallbackAPIVersion,
		NegotiationTimeoutSeconds: c.Docker.NegotiationTimeoutSeconds,
		Images:                    images,
		Registries:                c.Docker.Registries,
	}
}
