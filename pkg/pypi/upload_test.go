package pypi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rzbill/slipway/pkg/log"
)

func scanSingleWheel(t *testing.T) []DistFile {
	t.Helper()

	dir := t.TempDir()
	writeTestWheel(t, dir, "open_patch_miner-0.1.0-py3-none-any.whl", testMetadata)

	files, err := Scan(dir + "/*.whl")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	return files
}

func testUploader() *Uploader {
	return NewUploader(WithLogger(log.NewTestLogger()), WithUserAgent("slipway-test"))
}

func TestUploadPostsMultipartForm(t *testing.T) {
	t.Parallel()

	files := scanSingleWheel(t)

	var gotForm map[string][]string
	var gotUser, gotPass, gotAgent, gotContent string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		gotAgent = r.UserAgent()

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("bad multipart body: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotForm = r.MultipartForm.Value

		fhs := r.MultipartForm.File["content"]
		if len(fhs) == 1 {
			gotContent = fhs[0].Filename
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := RepositoryConfig{Name: "test", URL: srv.URL, Username: "bot", Password: "s3cret"}
	results := testUploader().Upload(context.Background(), repo, files, UploadOptions{})

	if len(results) != 1 || results[0].Status != UploadUploaded {
		t.Fatalf("results = %+v", results)
	}

	if gotUser != "bot" || gotPass != "s3cret" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotAgent != "slipway-test" {
		t.Errorf("user agent = %q", gotAgent)
	}
	if gotContent != "open_patch_miner-0.1.0-py3-none-any.whl" {
		t.Errorf("content filename = %q", gotContent)
	}

	want := map[string]string{
		":action":          "file_upload",
		"protocol_version": "1",
		"name":             "open-patch-miner",
		"version":          "0.1.0",
		"filetype":         "bdist_wheel",
		"pyversion":        "py3",
		"metadata_version": "2.1",
		"summary":          "Patch mining for whole slide images",
		"md5_digest":       files[0].MD5,
		"sha256_digest":    files[0].SHA256,
	}
	for key, val := range want {
		if got := gotForm[key]; len(got) != 1 || got[0] != val {
			t.Errorf("form[%s] = %v, want %q", key, got, val)
		}
	}
	if got := gotForm["classifiers"]; len(got) != 2 {
		t.Errorf("classifiers = %v", got)
	}
	if got := gotForm["blake2_256_digest"]; len(got) != 1 || got[0] != files[0].Blake2b256 {
		t.Errorf("blake2_256_digest = %v", got)
	}
}

func TestUploadSkipExisting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       int
		body         string
		skipExisting bool
		want         UploadStatus
	}{
		{
			name:         "pypi already exists",
			status:       http.StatusBadRequest,
			body:         "File already exists. See https://pypi.org/help/#file-name-reuse",
			skipExisting: true,
			want:         UploadSkipped,
		},
		{
			name:         "filename reuse phrasing",
			status:       http.StatusBadRequest,
			body:         "This filename has already been used, use a different version",
			skipExisting: true,
			want:         UploadSkipped,
		},
		{
			name:         "artifactory overwrite",
			status:       http.StatusForbidden,
			body:         "Not enough permissions to overwrite artifact",
			skipExisting: true,
			want:         UploadSkipped,
		},
		{
			name:         "nexus conflict",
			status:       http.StatusConflict,
			body:         "",
			skipExisting: true,
			want:         UploadSkipped,
		},
		{
			name:         "already exists without the flag fails",
			status:       http.StatusBadRequest,
			body:         "File already exists",
			skipExisting: false,
			want:         UploadFailed,
		},
		{
			name:         "unrelated 400 still fails",
			status:       http.StatusBadRequest,
			body:         "Invalid classifier",
			skipExisting: true,
			want:         UploadFailed,
		},
		{
			name:         "server error fails",
			status:       http.StatusInternalServerError,
			body:         "upstream broke",
			skipExisting: true,
			want:         UploadFailed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			files := scanSingleWheel(t)

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			repo := RepositoryConfig{Name: "test", URL: srv.URL}
			results := testUploader().Upload(context.Background(), repo, files, UploadOptions{SkipExisting: tt.skipExisting})

			if results[0].Status != tt.want {
				t.Errorf("status = %q (%s), want %q", results[0].Status, results[0].Message, tt.want)
			}
			if tt.want == UploadFailed && results[0].Message == "" {
				t.Error("failed result should carry a message")
			}
		})
	}
}

func TestUploadContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestWheel(t, dir, "aaa_pkg-1.0-py3-none-any.whl", "Metadata-Version: 2.1\nName: aaa-pkg\nVersion: 1.0\n")
	writeTestWheel(t, dir, "bbb_pkg-1.0-py3-none-any.whl", "Metadata-Version: 2.1\nName: bbb-pkg\nVersion: 1.0\n")

	files, err := Scan(dir + "/*.whl")
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	repo := RepositoryConfig{Name: "test", URL: srv.URL}
	results := testUploader().Upload(context.Background(), repo, files, UploadOptions{})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != UploadFailed || results[1].Status != UploadUploaded {
		t.Errorf("statuses = %q, %q", results[0].Status, results[1].Status)
	}
}

func TestUploadCanceledContext(t *testing.T) {
	t.Parallel()

	files := scanSingleWheel(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := RepositoryConfig{Name: "test", URL: "http://127.0.0.1:0"}
	results := testUploader().Upload(ctx, repo, files, UploadOptions{})

	if len(results) != 1 || results[0].Status != UploadFailed {
		t.Fatalf("results = %+v", results)
	}
}
