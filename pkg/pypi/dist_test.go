package pypi

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testMetadata = `Metadata-Version: 2.1
Name: open-patch-miner
Version: 0.1.0
Summary: Patch mining for whole slide images
Author: OpenPatchMiner Developers
License: MIT
Classifier: Programming Language :: Python :: 3.7
Classifier: License :: OSI Approved :: MIT License
Requires-Dist: numpy
Requires-Dist: opencv-python
Requires-Python: >=3.7

Mines image patches out of whole slide scans.
`

// writeTestWheel builds a minimal wheel archive on disk and returns its path.
func writeTestWheel(t *testing.T, dir, filename, metadata string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wheel: %v", err)
	}
	defer f.Close()

	parts := strings.SplitN(strings.TrimSuffix(filename, ".whl"), "-", 3)
	prefix := parts[0] + "-" + parts[1]

	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		prefix + ".dist-info/METADATA": metadata,
		prefix + ".dist-info/WHEEL":    "Wheel-Version: 1.0\nGenerator: bdist_wheel\nRoot-Is-Purelib: true\nTag: py3-none-any\n",
		prefix + ".dist-info/RECORD":   "",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close wheel: %v", err)
	}
	return path
}

// writeTestSdist builds a minimal .tar.gz source distribution.
func writeTestSdist(t *testing.T, dir, filename, pkgInfo string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create sdist: %v", err)
	}
	defer f.Close()

	root := strings.TrimSuffix(filename, ".tar.gz")

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, body := range map[string]string{
		root + "/PKG-INFO": pkgInfo,
		root + "/setup.py": "from setuptools import setup\nsetup()\n",
	} {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return path
}

func TestParseFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		file        string
		wantErr     bool
		wantName    string
		wantVersion string
		wantType    DistType
		wantPy      string
	}{
		{
			name:        "pure wheel",
			file:        "open_patch_miner-0.1.0-py3-none-any.whl",
			wantName:    "open-patch-miner",
			wantVersion: "0.1.0",
			wantType:    DistTypeWheel,
			wantPy:      "py3",
		},
		{
			name:        "wheel with build tag",
			file:        "open_patch_miner-0.1.0-1-cp37-cp37m-linux_x86_64.whl",
			wantName:    "open-patch-miner",
			wantVersion: "0.1.0",
			wantType:    DistTypeWheel,
			wantPy:      "cp37",
		},
		{
			name:        "tar.gz sdist",
			file:        "open_patch_miner-0.1.0.tar.gz",
			wantName:    "open-patch-miner",
			wantVersion: "0.1.0",
			wantType:    DistTypeSdist,
			wantPy:      "source",
		},
		{
			name:        "zip sdist",
			file:        "OpenPatchMiner-0.1.0.zip",
			wantName:    "openpatchminer",
			wantVersion: "0.1.0",
			wantType:    DistTypeSdist,
			wantPy:      "source",
		},
		{
			name:        "name normalization collapses separators",
			file:        "Open_Patch.Miner-2.0-py3-none-any.whl",
			wantName:    "open-patch-miner",
			wantVersion: "2.0",
			wantType:    DistTypeWheel,
			wantPy:      "py3",
		},
		{
			name:    "wheel with too few segments",
			file:    "broken-0.1.whl",
			wantErr: true,
		},
		{
			name:    "sdist without version",
			file:    "noversion.tar.gz",
			wantErr: true,
		},
		{
			name:    "unknown extension",
			file:    "notes.txt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			df, err := ParseFilename(tt.file)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFilename(%q) expected error, got %+v", tt.file, df)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFilename(%q): %v", tt.file, err)
			}

			if df.Name != tt.wantName {
				t.Errorf("name = %q, want %q", df.Name, tt.wantName)
			}
			if df.Version != tt.wantVersion {
				t.Errorf("version = %q, want %q", df.Version, tt.wantVersion)
			}
			if df.Type != tt.wantType {
				t.Errorf("type = %q, want %q", df.Type, tt.wantType)
			}
			if df.PyVersion != tt.wantPy {
				t.Errorf("pyversion = %q, want %q", df.PyVersion, tt.wantPy)
			}
		})
	}
}

func TestScan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	distDir := filepath.Join(dir, "dist")
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeTestWheel(t, distDir, "open_patch_miner-0.1.0-py3-none-any.whl", testMetadata)
	writeTestSdist(t, distDir, "open_patch_miner-0.1.0.tar.gz", testMetadata)

	files, err := Scan(filepath.Join(distDir, "*"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 dist files, got %d", len(files))
	}

	// Sorted by path: "-py3..." sorts before ".tar.gz".
	if files[0].Type != DistTypeWheel || files[1].Type != DistTypeSdist {
		t.Errorf("unexpected order: %q then %q", files[0].Type, files[1].Type)
	}

	for _, df := range files {
		if df.Name != "open-patch-miner" || df.Version != "0.1.0" {
			t.Errorf("parsed identity = %s %s", df.Name, df.Version)
		}
		if df.Size == 0 {
			t.Errorf("%s: size not populated", df.Filename())
		}
		if df.Metadata == nil || df.Metadata.Summary != "Patch mining for whole slide images" {
			t.Errorf("%s: metadata not populated: %+v", df.Filename(), df.Metadata)
		}

		raw, err := os.ReadFile(df.Path)
		if err != nil {
			t.Fatal(err)
		}
		sum := sha256.Sum256(raw)
		if want := hex.EncodeToString(sum[:]); df.SHA256 != want {
			t.Errorf("%s: sha256 = %s, want %s", df.Filename(), df.SHA256, want)
		}
		if len(df.MD5) != 32 || len(df.Blake2b256) != 64 {
			t.Errorf("%s: digest lengths md5=%d blake2=%d", df.Filename(), len(df.MD5), len(df.Blake2b256))
		}
	}
}

func TestScanNoMatches(t *testing.T) {
	t.Parallel()

	files, err := Scan(filepath.Join(t.TempDir(), "dist", "*"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %d", len(files))
	}
}

func TestScanRejectsUnknownFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Scan(filepath.Join(dir, "*")); err == nil {
		t.Fatal("expected error for unknown distribution format")
	}
}

func TestScanDeduplicatesOverlappingGlobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestWheel(t, dir, "pkg-1.0-py3-none-any.whl", "Metadata-Version: 2.1\nName: pkg\nVersion: 1.0\n")

	files, err := Scan(filepath.Join(dir, "*"), filepath.Join(dir, "*.whl"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 file after dedup, got %d", len(files))
	}
}
