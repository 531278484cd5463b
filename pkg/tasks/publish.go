package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/pypi"
)

// PublishTask uploads distribution files to a package index.
// Inputs: repository (index-servers name), dist (glob, default dist/*),
// configFile (default the PYPIRC_PATH exported by index-auth),
// skipExisting (default true).
type PublishTask struct{}

var _ Task = &PublishTask{}

func (t *PublishTask) Name() string {
	return "publish"
}

func (t *PublishTask) Run(ctx context.Context, tc *TaskContext) error {
	configFile := tc.input("configFile", "")
	if configFile == "" && tc.Vars != nil {
		if fromVar, ok := tc.Vars.Get("PYPIRC_PATH"); ok {
			configFile = fromVar
		}
	}
	if configFile == "" || strings.Contains(configFile, "$(") {
		return fmt.Errorf("publish: no .pypirc available; run the index-auth task first or set the configFile input")
	}

	pypirc, err := pypi.ParsePypirc(tc.HostPath(configFile))
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	repo, err := pypirc.Lookup(tc.input("repository", ""))
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	skipExisting, err := tc.boolInput("skipExisting", true)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	glob := tc.HostPath(tc.input("dist", "dist/*"))
	if !filepath.IsAbs(glob) {
		glob = filepath.Join(tc.WorkspaceDir, glob)
	}

	files, err := pypi.Scan(glob)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("publish: no distribution files match %s", glob)
	}

	tc.logger().Info("Uploading distributions",
		log.Str("repository", repo.Name),
		log.Int("files", len(files)),
		log.Bool("skip_existing", skipExisting))

	uploader := pypi.NewUploader(pypi.WithLogger(tc.logger()))
	results := uploader.Upload(ctx, repo, files, pypi.UploadOptions{SkipExisting: skipExisting})

	var uploaded, skipped int
	var failures []string
	for _, res := range results {
		switch res.Status {
		case pypi.UploadUploaded:
			uploaded++
		case pypi.UploadSkipped:
			skipped++
		case pypi.UploadFailed:
			failures = append(failures, fmt.Sprintf("%s: %s", res.File.Filename(), res.Message))
		}
	}

	tc.logger().Info("Upload finished",
		log.Int("uploaded", uploaded),
		log.Int("skipped", skipped),
		log.Int("failed", len(failures)))

	if len(failures) > 0 {
		return fmt.Errorf("publish: %d of %d uploads failed: %s",
			len(failures), len(results), strings.Join(failures, "; "))
	}
	return nil
}
