package pypi

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// TokenUsername is the username the index API expects for API-token
// authentication.
const TokenUsername = "__token__"

// DefaultRepositoryURLs are the well-known index URLs assumed when a
// .pypirc names a server without a repository key.
var DefaultRepositoryURLs = map[string]string{
	"pypi":     "https://upload.pypi.org/legacy/",
	"testpypi": "https://test.pypi.org/legacy/",
}

// RepositoryConfig is one resolved index-servers entry of a .pypirc.
type RepositoryConfig struct {
	// Name of the server as listed in index-servers
	Name string

	// URL of the upload endpoint
	URL string

	// Username for basic auth; empty means anonymous
	Username string

	// Password or API token
	Password string
}

// Pypirc is a parsed .pypirc file.
type Pypirc struct {
	// Servers in index-servers order
	Servers []string

	repos map[string]RepositoryConfig
}

// ParsePypirc reads a .pypirc file. Servers come from
// [distutils] index-servers; a file without that key exposes its
// sections directly. pypi and testpypi get their well-known URLs when
// the section omits repository.
func ParsePypirc(path string) (*Pypirc, error) {
	// index-servers lists one server per indented line, the way Python's
	// configparser writes it
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowPythonMultilineValues: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	p := &Pypirc{repos: make(map[string]RepositoryConfig)}

	raw := cfg.Section("distutils").Key("index-servers").String()
	p.Servers = append(p.Servers, strings.Fields(raw)...)

	if len(p.Servers) == 0 {
		for _, sec := range cfg.Sections() {
			name := sec.Name()
			if name == ini.DefaultSection || name == "distutils" {
				continue
			}
			p.Servers = append(p.Servers, name)
		}
		sort.Strings(p.Servers)
	}

	for _, name := range p.Servers {
		repo := RepositoryConfig{Name: name, URL: DefaultRepositoryURLs[name]}

		if sec, err := cfg.GetSection(name); err == nil {
			if v := sec.Key("repository").String(); v != "" {
				repo.URL = v
			}
			repo.Username = sec.Key("username").String()
			repo.Password = sec.Key("password").String()
		}

		if repo.URL == "" {
			return nil, fmt.Errorf("server %q in %s has no repository URL", name, path)
		}
		p.repos[name] = repo
	}

	if len(p.Servers) == 0 {
		return nil, fmt.Errorf("%s lists no index servers", path)
	}

	return p, nil
}

// Lookup resolves a server by its index-servers name. An empty name
// picks the first listed server.
func (p *Pypirc) Lookup(name string) (RepositoryConfig, error) {
	if name == "" {
		name = p.Servers[0]
	}

	repo, ok := p.repos[name]
	if !ok {
		return RepositoryConfig{}, fmt.Errorf("repository %q is not in index-servers (known: %s)",
			name, strings.Join(p.Servers, ", "))
	}
	return repo, nil
}

// Materialize writes a single-repository .pypirc into dir with owner-only
// permissions and returns its path. This is the credential handoff a
// publish step points twine-compatible tooling at.
func Materialize(dir string, repo RepositoryConfig) (string, error) {
	if repo.Name == "" {
		return "", fmt.Errorf("repository name is required")
	}
	if repo.URL == "" {
		return "", fmt.Errorf("repository %q has no URL", repo.Name)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	cfg := ini.Empty()

	dist, err := cfg.NewSection("distutils")
	if err != nil {
		return "", err
	}
	dist.Key("index-servers").SetValue(repo.Name)

	sec, err := cfg.NewSection(repo.Name)
	if err != nil {
		return "", err
	}
	sec.Key("repository").SetValue(repo.URL)
	if repo.Username != "" {
		sec.Key("username").SetValue(repo.Username)
	}
	if repo.Password != "" {
		sec.Key("password").SetValue(repo.Password)
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return "", err
	}

	path := filepath.Join(dir, ".pypirc")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", err
	}
	return path, nil
}
