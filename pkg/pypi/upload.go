package pypi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rzbill/slipway/pkg/log"
)

// UploadStatus is the per-file outcome of an upload.
type UploadStatus string

const (
	// UploadUploaded means the index accepted the file
	UploadUploaded UploadStatus = "Uploaded"

	// UploadSkipped means the index already had the file and
	// skip-existing was on
	UploadSkipped UploadStatus = "Skipped"

	// UploadFailed means the index rejected the file
	UploadFailed UploadStatus = "Failed"
)

// UploadOptions tune a batch upload.
type UploadOptions struct {
	// SkipExisting turns already-exists rejections into Skipped results
	SkipExisting bool
}

// UploadResult is the outcome for one distribution file.
type UploadResult struct {
	// File is the distribution that was uploaded
	File DistFile

	// Status of the upload
	Status UploadStatus

	// StatusCode is the HTTP status the index answered with, when any
	StatusCode int

	// Message carries the skip reason or failure detail
	Message string
}

// Failed reports whether this result should fail the publishing step.
func (r UploadResult) Failed() bool {
	return r.Status == UploadFailed
}

// Uploader posts distribution files to a package index over the legacy
// upload API.
type Uploader struct {
	client    *http.Client
	userAgent string
	logger    log.Logger
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithHTTPClient sets the HTTP client used for uploads.
func WithHTTPClient(c *http.Client) UploaderOption {
	return func(u *Uploader) {
		u.client = c
	}
}

// WithUserAgent sets the User-Agent header sent to the index.
func WithUserAgent(ua string) UploaderOption {
	return func(u *Uploader) {
		u.userAgent = ua
	}
}

// WithLogger sets the logger for upload progress.
func WithLogger(logger log.Logger) UploaderOption {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// NewUploader creates an uploader with the given options.
func NewUploader(opts ...UploaderOption) *Uploader {
	u := &Uploader{
		client:    &http.Client{Timeout: 5 * time.Minute},
		userAgent: "slipway-upload",
		logger:    log.GetDefaultLogger().WithComponent("pypi"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload posts each file to the repository in order. One result per
// file; a failure does not stop the rest of the batch.
func (u *Uploader) Upload(ctx context.Context, repo RepositoryConfig, files []DistFile, opts UploadOptions) []UploadResult {
	results := make([]UploadResult, 0, len(files))

	for _, df := range files {
		if err := ctx.Err(); err != nil {
			results = append(results, UploadResult{
				File:    df,
				Status:  UploadFailed,
				Message: fmt.Sprintf("upload canceled: %v", err),
			})
			continue
		}

		res := u.uploadOne(ctx, repo, df, opts)
		results = append(results, res)

		switch res.Status {
		case UploadUploaded:
			u.logger.Info("Uploaded distribution",
				log.Str("file", df.Filename()),
				log.Str("repository", repo.Name))
		case UploadSkipped:
			u.logger.Info("Skipped existing distribution",
				log.Str("file", df.Filename()),
				log.Str("reason", res.Message))
		case UploadFailed:
			u.logger.Error("Upload failed",
				log.Str("file", df.Filename()),
				log.Int("status", res.StatusCode),
				log.Str("detail", res.Message))
		}
	}

	return results
}

func (u *Uploader) uploadOne(ctx context.Context, repo RepositoryConfig, df DistFile, opts UploadOptions) UploadResult {
	body, contentType, err := buildUploadForm(df)
	if err != nil {
		return UploadResult{File: df, Status: UploadFailed, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, repo.URL, body)
	if err != nil {
		return UploadResult{File: df, Status: UploadFailed, Message: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", u.userAgent)
	if repo.Username != "" || repo.Password != "" {
		req.SetBasicAuth(repo.Username, repo.Password)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return UploadResult{File: df, Status: UploadFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	detail := strings.TrimSpace(string(respBody))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return UploadResult{File: df, Status: UploadUploaded, StatusCode: resp.StatusCode}
	}

	if opts.SkipExisting && isAlreadyExists(resp.StatusCode, resp.Status, detail) {
		return UploadResult{
			File:       df,
			Status:     UploadSkipped,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s already exists on %s", df.Filename(), repo.Name),
		}
	}

	msg := resp.Status
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", resp.Status, detail)
	}
	return UploadResult{File: df, Status: UploadFailed, StatusCode: resp.StatusCode, Message: msg}
}

// isAlreadyExists recognizes the rejection shapes indexes use for a
// re-uploaded file: PyPI answers 400 with an "already exists" message,
// Artifactory 403 about overwriting, Nexus a plain 409.
func isAlreadyExists(code int, status, body string) bool {
	if code == http.StatusConflict {
		return true
	}

	text := strings.ToLower(status + " " + body)
	phrases := []string{
		"already exists",
		"filename has already been used",
		"file name has already been taken",
		"overwrite artifact",
	}

	if code == http.StatusBadRequest || code == http.StatusForbidden {
		for _, p := range phrases {
			if strings.Contains(text, p) {
				return true
			}
		}
	}
	return false
}

// buildUploadForm renders the multipart body for one file: the
// metadata fields the legacy API expects plus the file content.
func buildUploadForm(df DistFile) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string][]string{
		":action":           {"file_upload"},
		"protocol_version":  {"1"},
		"name":              {df.Name},
		"version":           {df.Version},
		"filetype":          {string(df.Type)},
		"pyversion":         {df.PyVersion},
		"md5_digest":        {df.MD5},
		"sha256_digest":     {df.SHA256},
		"blake2_256_digest": {df.Blake2b256},
	}

	if m := df.Metadata; m != nil {
		if m.Name != "" {
			fields["name"] = []string{m.Name}
		}
		if m.Version != "" {
			fields["version"] = []string{m.Version}
		}
		fields["metadata_version"] = []string{m.MetadataVersion}
		fields["summary"] = []string{m.Summary}
		fields["description"] = []string{m.Description}
		fields["author"] = []string{m.Author}
		fields["author_email"] = []string{m.AuthorEmail}
		fields["license"] = []string{m.License}
		fields["home_page"] = []string{m.HomePage}
		fields["requires_python"] = []string{m.RequiresPython}
		fields["classifiers"] = m.Classifiers
		fields["requires_dist"] = m.RequiresDist
	}

	for key, values := range fields {
		for _, v := range values {
			if v == "" {
				continue
			}
			if err := w.WriteField(key, v); err != nil {
				return nil, "", err
			}
		}
	}

	part, err := w.CreateFormFile("content", df.Filename())
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(df.Path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}
