package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rzbill/slipway/pkg/cli/watcher"
	"github.com/rzbill/slipway/pkg/types"
)

var (
	watchTimeout   string
	watchNoHeaders bool
)

// runsWatchCmd renders a live view of a pipeline's run history
var runsWatchCmd = &cobra.Command{
	Use:   "watch [pipeline]",
	Short: "Watch run history update in real time",
	Long: `Watch the run history of a pipeline update in real time.

The view reads the run snapshots written next to each run's staging
dir, so it keeps working while another Slipway process is executing
runs and holding the history database.`,
	Args: cobra.MaximumNArgs(1),
	Example: `  # Watch the pipeline defined in ./slipway.yaml
  slipway runs watch

  # Watch a named pipeline, stop after ten minutes
  slipway runs watch openpatchminer --timeout 10m`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRunsWatch,
}

func init() {
	runsCmd.AddCommand(runsWatchCmd)

	runsWatchCmd.Flags().StringVar(&watchTimeout, "timeout", "", "Stop watching after this duration (e.g., 30s, 5m, 1h)")
	runsWatchCmd.Flags().BoolVar(&watchNoHeaders, "no-headers", false, "Don't print table headers")
}

// runRunsWatch is the entry point for the runs watch command
func runRunsWatch(cmd *cobra.Command, args []string) error {
	pipeline, err := resolveHistoryPipeline(args)
	if err != nil {
		return err
	}

	w := watcher.NewRunWatcher(pipeline)
	w.ShowHeaders = !watchNoHeaders
	if err := w.SetTimeout(watchTimeout); err != nil {
		return err
	}

	return w.Watch(context.Background(), &snapshotSource{dir: runsPath()})
}

// snapshotSource reads the run.json snapshots the engine writes into
// each run's staging dir. Unlike the history store these can be read
// while a run is executing in another process.
type snapshotSource struct {
	dir string
}

func (s *snapshotSource) List(ctx context.Context, pipeline string) ([]types.Run, error) {
	pattern := filepath.Join(s.dir, pipeline, "*", "run.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var runs []types.Run
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			// Pruned between glob and read
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		var run types.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("bad run snapshot %s: %w", path, err)
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Number > runs[j].Number
	})
	return runs, nil
}
