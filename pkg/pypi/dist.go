// Package pypi implements the package-index side of a release: reading
// built distributions out of dist/, .pypirc handling, and uploads to
// the legacy index API.
package pypi

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// DistType is the index API filetype of a distribution.
type DistType string

const (
	// DistTypeWheel is a built wheel (bdist_wheel)
	DistTypeWheel DistType = "bdist_wheel"

	// DistTypeSdist is a source distribution (sdist)
	DistTypeSdist DistType = "sdist"
)

// DistFile is one distribution file ready for upload.
type DistFile struct {
	// Path on disk
	Path string `json:"path"`

	// Name of the project, normalized (lowercase, runs of -_. collapse to -)
	Name string `json:"name"`

	// Version as written in the filename
	Version string `json:"version"`

	// Type of distribution (bdist_wheel or sdist)
	Type DistType `json:"type"`

	// PyVersion is the wheel python tag; sdists use "source"
	PyVersion string `json:"pyVersion"`

	// Size in bytes
	Size int64 `json:"size"`

	// Hex digests the index API records for the file
	MD5        string `json:"md5"`
	SHA256     string `json:"sha256"`
	Blake2b256 string `json:"blake2b256"`

	// Metadata parsed from METADATA or PKG-INFO
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Filename returns the base name of the distribution file.
func (d *DistFile) Filename() string {
	return filepath.Base(d.Path)
}

// normalizeName applies the package-name normalization rule: lowercase
// with runs of hyphen, underscore and dot collapsed to single hyphens.
var nameSeparators = regexp.MustCompile(`[-_.]+`)

func normalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

// ParseFilename classifies a distribution file by its name alone.
//
// Wheels follow {dist}-{version}(-{build})?-{python}-{abi}-{platform}.whl
// and sdists follow {name}-{version}.tar.gz or .zip. Anything else is
// an error, matching what an upload tool would reject.
func ParseFilename(path string) (*DistFile, error) {
	base := filepath.Base(path)

	switch {
	case strings.HasSuffix(base, ".whl"):
		return parseWheelFilename(path, base)
	case strings.HasSuffix(base, ".tar.gz"):
		return parseSdistFilename(path, base, ".tar.gz")
	case strings.HasSuffix(base, ".zip"):
		return parseSdistFilename(path, base, ".zip")
	default:
		return nil, fmt.Errorf("unknown distribution format: %s", base)
	}
}

func parseWheelFilename(path, base string) (*DistFile, error) {
	stem := strings.TrimSuffix(base, ".whl")
	parts := strings.Split(stem, "-")

	// dist-version-pytag-abitag-plattag, optionally with a build tag
	if len(parts) != 5 && len(parts) != 6 {
		return nil, fmt.Errorf("malformed wheel filename: %s", base)
	}

	pyTag := parts[len(parts)-3]

	return &DistFile{
		Path:      path,
		Name:      normalizeName(parts[0]),
		Version:   parts[1],
		Type:      DistTypeWheel,
		PyVersion: pyTag,
	}, nil
}

func parseSdistFilename(path, base, ext string) (*DistFile, error) {
	stem := strings.TrimSuffix(base, ext)

	idx := strings.LastIndex(stem, "-")
	if idx <= 0 || idx == len(stem)-1 {
		return nil, fmt.Errorf("malformed sdist filename: %s", base)
	}

	return &DistFile{
		Path:      path,
		Name:      normalizeName(stem[:idx]),
		Version:   stem[idx+1:],
		Type:      DistTypeSdist,
		PyVersion: "source",
	}, nil
}

// Scan collects the distribution files matching the given globs,
// sorted by path, with digests and metadata populated. A glob that
// matches nothing contributes nothing; a matched file that is not a
// recognizable distribution is an error.
func Scan(globs ...string) ([]DistFile, error) {
	seen := make(map[string]bool)
	var paths []string

	for _, pattern := range globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}

	sort.Strings(paths)

	files := make([]DistFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			continue
		}

		df, err := ParseFilename(p)
		if err != nil {
			return nil, err
		}
		df.Size = info.Size()

		if err := df.computeDigests(); err != nil {
			return nil, fmt.Errorf("digesting %s: %w", p, err)
		}

		meta, err := ReadMetadata(df)
		if err != nil {
			return nil, fmt.Errorf("reading metadata from %s: %w", df.Filename(), err)
		}
		df.Metadata = meta

		files = append(files, *df)
	}

	return files, nil
}

// computeDigests fills MD5, SHA256 and Blake2b256 in one pass over the
// file contents.
func (d *DistFile) computeDigests() error {
	f, err := os.Open(d.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	md5h := md5.New()
	sha := sha256.New()
	blake, err := blake2b.New256(nil)
	if err != nil {
		return err
	}

	if _, err := io.Copy(io.MultiWriter(md5h, sha, blake), f); err != nil {
		return err
	}

	d.MD5 = hexDigest(md5h)
	d.SHA256 = hexDigest(sha)
	d.Blake2b256 = hexDigest(blake)
	return nil
}

func hexDigest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
