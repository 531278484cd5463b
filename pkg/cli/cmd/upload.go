package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/pypi"
)

var (
	// Upload command flags
	uploadRepository   string
	uploadConfigFile   string
	uploadSkipExisting bool
	uploadDryRun       bool
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload <files or globs>...",
	Short: "Upload distribution files to a package index",
	Long: `Upload Python distribution files to a package index.

Credentials resolve in order: the .pypirc passed with --config-file,
an index connection from the slipfile matching the repository name,
then ~/.pypirc.`,
	Args: cobra.MinimumNArgs(1),
	Example: `  # Upload everything in dist/ to the default repository
  slipway upload dist/*

  # Tolerate files the index already has
  slipway upload --skip-existing -r openpatchminer dist/*

  # Use an explicit .pypirc, the way a pipeline publish step does
  slipway upload -r openpatchminer --config-file ~/.pypirc dist/*

  # Show what would be uploaded without touching the index
  slipway upload --dry-run dist/*`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringVarP(&uploadRepository, "repository", "r", "pypi", "Repository to upload to (index-servers or connection name)")
	uploadCmd.Flags().StringVar(&uploadConfigFile, "config-file", "", "Path of a .pypirc holding the repository credentials")
	uploadCmd.Flags().BoolVar(&uploadSkipExisting, "skip-existing", false, "Treat files the index already has as skipped instead of failed")
	uploadCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "Resolve and list the files without uploading")
}

// runUpload is the entry point for the upload command
func runUpload(cmd *cobra.Command, args []string) error {
	logger := rootLogger()

	repo, err := resolveUploadRepository(uploadRepository)
	if err != nil {
		return err
	}

	files, err := pypi.Scan(args...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no distribution files match %s", strings.Join(args, " "))
	}

	fmt.Printf("\n📦 Uploading to %s\n", format.Highlight(repo.Name))
	fmt.Printf("- %s\n", format.Label("Endpoint", repo.URL))
	fmt.Printf("- %s\n", format.Label("Files", fmt.Sprintf("%d", len(files))))
	if uploadSkipExisting {
		fmt.Printf("- %s\n", format.Label("Skip existing", "yes"))
	}
	fmt.Println()

	if uploadDryRun {
		rows := [][]string{{"FILE", "PACKAGE", "VERSION", "SIZE"}}
		for _, df := range files {
			rows = append(rows, []string{df.Filename(), df.Name, df.Version, formatSize(df.Size)})
		}
		if err := newTable().WithData(rows).Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
		fmt.Println()
		fmt.Println(format.Dim("💬 Use without --dry-run to upload."))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	uploader := pypi.NewUploader(pypi.WithLogger(logger))
	results := uploader.Upload(ctx, repo, files, pypi.UploadOptions{SkipExisting: uploadSkipExisting})

	var uploaded, skipped, failed int
	for _, res := range results {
		name := res.File.Filename()
		dotCount := 52 - len(name)
		if dotCount < 3 {
			dotCount = 3
		}
		dots := strings.Repeat(".", dotCount)

		switch res.Status {
		case pypi.UploadUploaded:
			uploaded++
			fmt.Printf("  %s %s ✓ uploaded\n", name, dots)
		case pypi.UploadSkipped:
			skipped++
			fmt.Printf("  %s %s ↷ %s\n", name, dots, res.Message)
		case pypi.UploadFailed:
			failed++
			fmt.Printf("  %s %s ❌ %s\n", name, dots, res.Message)
		}
	}

	fmt.Println()
	elapsed := time.Since(startTime).Seconds()
	switch {
	case failed > 0:
		fmt.Printf("❌ %d of %d files rejected by %s\n", failed, len(results), repo.Name)
	case skipped > 0:
		fmt.Printf("🎉 Uploaded %d files to %s in %.1fs (%d already there)\n", uploaded, repo.Name, elapsed, skipped)
	default:
		fmt.Printf("🎉 Uploaded %d files to %s in %.1fs\n", uploaded, repo.Name, elapsed)
	}

	logger.Debug("Upload command finished",
		log.Str("repository", repo.Name),
		log.Int("uploaded", uploaded),
		log.Int("skipped", skipped),
		log.Int("failed", failed))

	if failed > 0 {
		return fmt.Errorf("upload failed: %d of %d files rejected", failed, len(results))
	}
	return nil
}

// resolveUploadRepository finds credentials for the repository name:
// an explicit --config-file wins, then slipfile connections, then
// ~/.pypirc.
func resolveUploadRepository(name string) (pypi.RepositoryConfig, error) {
	if uploadConfigFile != "" {
		pypirc, err := pypi.ParsePypirc(uploadConfigFile)
		if err != nil {
			return pypi.RepositoryConfig{}, err
		}
		return pypirc.Lookup(name)
	}

	if repo, err := cfg.LookupConnection(name); err == nil {
		return repo, nil
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		path := filepath.Join(home, ".pypirc")
		if _, err := os.Stat(path); err == nil {
			pypirc, err := pypi.ParsePypirc(path)
			if err != nil {
				return pypi.RepositoryConfig{}, err
			}
			return pypirc.Lookup(name)
		}
	}

	return pypi.RepositoryConfig{}, fmt.Errorf(
		"no credentials for repository %q: add an index connection (slipway connections add %s) or pass --config-file",
		name, name)
}
