package pypi

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"strings"
)

// Metadata holds the core-metadata header block of a distribution
// (METADATA inside a wheel, PKG-INFO inside an sdist).
type Metadata struct {
	MetadataVersion string `json:"metadataVersion"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	Summary         string `json:"summary,omitempty"`
	Description     string `json:"description,omitempty"`
	Author          string `json:"author,omitempty"`
	AuthorEmail     string `json:"authorEmail,omitempty"`
	License         string `json:"license,omitempty"`
	HomePage        string `json:"homePage,omitempty"`
	RequiresPython  string `json:"requiresPython,omitempty"`

	Classifiers  []string `json:"classifiers,omitempty"`
	RequiresDist []string `json:"requiresDist,omitempty"`

	// Extra keeps headers the struct does not model, keyed by their
	// canonical header name
	Extra map[string][]string `json:"extra,omitempty"`
}

// ReadMetadata extracts and parses the metadata file for a
// distribution: *.dist-info/METADATA from wheels, <root>/PKG-INFO from
// sdists. A distribution without its metadata file is an error.
func ReadMetadata(d *DistFile) (*Metadata, error) {
	switch d.Type {
	case DistTypeWheel:
		return readWheelMetadata(d.Path)
	case DistTypeSdist:
		if strings.HasSuffix(d.Path, ".zip") {
			return readZipSdistMetadata(d.Path)
		}
		return readTarSdistMetadata(d.Path)
	default:
		return nil, fmt.Errorf("no metadata reader for distribution type %q", d.Type)
	}
}

func readWheelMetadata(path string) (*Metadata, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		dir, name, ok := splitArchivePath(f.Name)
		if !ok || name != "METADATA" || !strings.HasSuffix(dir, ".dist-info") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return parseMetadata(rc)
	}

	return nil, fmt.Errorf("wheel has no .dist-info/METADATA entry")
}

func readTarSdistMetadata(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if _, name, ok := splitArchivePath(hdr.Name); ok && name == "PKG-INFO" {
			return parseMetadata(tr)
		}
	}

	return nil, fmt.Errorf("sdist has no PKG-INFO entry")
}

func readZipSdistMetadata(path string) (*Metadata, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		if _, name, ok := splitArchivePath(f.Name); ok && name == "PKG-INFO" {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return parseMetadata(rc)
		}
	}

	return nil, fmt.Errorf("sdist has no PKG-INFO entry")
}

// splitArchivePath splits "root/FILE" into its two segments. Deeper or
// shallower paths report ok=false; the metadata files live exactly one
// directory down.
func splitArchivePath(p string) (dir, name string, ok bool) {
	p = strings.TrimPrefix(p, "./")
	parts := strings.Split(p, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// parseMetadata reads the RFC 822 style header block, folding known
// keys into struct fields and everything else into Extra. A body after
// the blank line becomes the description when no Description header
// was present.
func parseMetadata(r io.Reader) (*Metadata, error) {
	br := bufio.NewReader(r)
	tp := textproto.NewReader(br)

	hdr, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("malformed metadata header block: %w", err)
	}

	m := &Metadata{
		MetadataVersion: hdr.Get("Metadata-Version"),
		Name:            hdr.Get("Name"),
		Version:         hdr.Get("Version"),
		Summary:         hdr.Get("Summary"),
		Description:     hdr.Get("Description"),
		Author:          hdr.Get("Author"),
		AuthorEmail:     hdr.Get("Author-Email"),
		License:         hdr.Get("License"),
		HomePage:        hdr.Get("Home-Page"),
		RequiresPython:  hdr.Get("Requires-Python"),
		Classifiers:     hdr.Values("Classifier"),
		RequiresDist:    hdr.Values("Requires-Dist"),
	}

	if m.Name == "" || m.Version == "" {
		return nil, fmt.Errorf("metadata is missing Name or Version")
	}

	known := map[string]bool{
		"Metadata-Version": true, "Name": true, "Version": true,
		"Summary": true, "Description": true, "Author": true,
		"Author-Email": true, "License": true, "Home-Page": true,
		"Requires-Python": true, "Classifier": true, "Requires-Dist": true,
	}
	for key, values := range hdr {
		if known[key] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string][]string)
		}
		m.Extra[key] = values
	}

	// Newer metadata versions put the long description in the body.
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	if m.Description == "" {
		m.Description = strings.TrimSpace(string(body))
	}

	return m, nil
}
