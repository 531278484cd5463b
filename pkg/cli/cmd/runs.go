package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/store/repos"
	"github.com/rzbill/slipway/pkg/types"
)

var (
	// Runs command flags
	runsPipeline      string
	runsOutputFormat  string
	runsLimit         int
	runsShowEvents    bool
	runsKeepSucceeded int
	runsKeepFailed    int
)

// runsCmd represents the runs command group
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long: `Inspect the run history recorded by previous pipeline runs.

History is stored per pipeline under the Slipway data directory, so
these commands work without the pipeline file as long as the pipeline
name is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// runsListCmd lists recorded runs of a pipeline
var runsListCmd = &cobra.Command{
	Use:     "list [pipeline]",
	Aliases: []string{"ls"},
	Short:   "List recorded runs of a pipeline",
	Args:    cobra.MaximumNArgs(1),
	Example: `  # List runs of the pipeline defined in ./slipway.yaml
  slipway runs list

  # List runs of a named pipeline
  slipway runs list openpatchminer

  # Last five runs as JSON
  slipway runs list openpatchminer --limit 5 --output json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRunsList,
}

// runsShowCmd shows one run in detail
var runsShowCmd = &cobra.Command{
	Use:   "show [run]",
	Short: "Show one run in detail",
	Long: `Show one run in detail: legs, steps, artifacts and, with --events,
the recorded event timeline.

The run can be referenced by number, by a unique run ID prefix, or by
"last" (the default) for the most recent run.`,
	Args: cobra.MaximumNArgs(1),
	Example: `  # Show the most recent run
  slipway runs show

  # Show run 12 with its event timeline
  slipway runs show 12 --events

  # Show a run of a named pipeline
  slipway runs show 12 --pipeline openpatchminer`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRunsShow,
}

// runsPruneCmd deletes old finished runs
var runsPruneCmd = &cobra.Command{
	Use:   "prune [pipeline]",
	Short: "Delete old finished runs",
	Long: `Delete finished runs beyond the configured keep limits.

Pending and running runs are never pruned. Negative limits keep
everything of that class.`,
	Args: cobra.MaximumNArgs(1),
	Example: `  # Keep the default window (20 succeeded, 10 failed)
  slipway runs prune

  # Keep only the last 5 succeeded runs, drop all failed ones
  slipway runs prune --keep-succeeded 5 --keep-failed 0`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRunsPrune,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsPruneCmd)

	runsCmd.PersistentFlags().StringVarP(&runsPipeline, "pipeline", "p", "", "Pipeline name (default: discovered from the pipeline file)")

	runsListCmd.Flags().StringVarP(&runsOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 0, "Maximum number of runs to list (0 for unlimited)")

	runsShowCmd.Flags().StringVarP(&runsOutputFormat, "output", "o", "text", "Output format (text, json, yaml)")
	runsShowCmd.Flags().BoolVar(&runsShowEvents, "events", false, "Include the recorded event timeline")

	runsPruneCmd.Flags().IntVar(&runsKeepSucceeded, "keep-succeeded", 20, "How many succeeded runs to keep (negative keeps all)")
	runsPruneCmd.Flags().IntVar(&runsKeepFailed, "keep-failed", 10, "How many failed or canceled runs to keep (negative keeps all)")
}

// resolveHistoryPipeline picks the pipeline whose history a runs
// subcommand operates on: explicit argument, then the --pipeline flag,
// then discovery through the pipeline file in the working directory.
func resolveHistoryPipeline(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if runsPipeline != "" {
		return runsPipeline, nil
	}

	filename, err := resolvePipelineFile(nil)
	if err != nil {
		return "", err
	}
	pipelines, err := loadPipelines(filename)
	if err != nil {
		return "", err
	}
	if len(pipelines) == 1 {
		return pipelines[0].Name, nil
	}

	names := make([]string, 0, len(pipelines))
	for _, p := range pipelines {
		names = append(names, p.Name)
	}
	return "", fmt.Errorf("%s defines %d pipelines; pick one of: %s", filename, len(pipelines), strings.Join(names, ", "))
}

// runRunsList is the entry point for the runs list command
func runRunsList(cmd *cobra.Command, args []string) error {
	pipeline, err := resolveHistoryPipeline(args)
	if err != nil {
		return err
	}

	logger := rootLogger()
	history, err := openHistoryStore(logger)
	if err != nil {
		return err
	}
	defer history.Close()

	repo := repos.NewRunRepo(history)
	runs, err := repo.List(context.Background(), pipeline)
	if err != nil {
		return fmt.Errorf("failed to list runs of %s: %w", pipeline, err)
	}

	// Apply limit if specified
	if runsLimit > 0 && len(runs) > runsLimit {
		runs = runs[:runsLimit]
	}

	switch runsOutputFormat {
	case "json":
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal runs to JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(runs)
		if err != nil {
			return fmt.Errorf("failed to marshal runs to YAML: %w", err)
		}
		fmt.Print(string(data))
		return nil
	case "table", "":
	default:
		return fmt.Errorf("unsupported output format: %s", runsOutputFormat)
	}

	if len(runs) == 0 {
		fmt.Printf("No runs recorded for %s\n", format.Highlight(pipeline))
		fmt.Println(format.Dim("💬 Start one with: slipway run"))
		return nil
	}

	rows := [][]string{{"RUN", "STATUS", "REASON", "BRANCH", "COMMIT", "AGE", "DURATION"}}
	for _, run := range runs {
		rows = append(rows, []string{
			fmt.Sprintf("#%d", run.Number),
			format.PTermStatusLabel(string(run.Status)),
			string(run.Reason),
			run.Branch,
			shortCommit(run.Commit),
			formatAge(run.CreatedAt),
			formatRunDuration(run.StartTime, run.CompletionTime),
		})
	}

	fmt.Printf("\nRuns of %s:\n\n", format.Highlight(pipeline))
	if err := newTable().WithData(rows).Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// runDetail bundles everything known about a run for structured output.
type runDetail struct {
	Run       *types.Run       `json:"run" yaml:"run"`
	Legs      []types.LegRun   `json:"legs,omitempty" yaml:"legs,omitempty"`
	Artifacts []types.Artifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Events    []types.Event    `json:"events,omitempty" yaml:"events,omitempty"`
}

// runRunsShow is the entry point for the runs show command
func runRunsShow(cmd *cobra.Command, args []string) error {
	pipeline, err := resolveHistoryPipeline(nil)
	if err != nil {
		return err
	}

	ref := "last"
	if len(args) > 0 {
		ref = args[0]
	}

	logger := rootLogger()
	history, err := openHistoryStore(logger)
	if err != nil {
		return err
	}
	defer history.Close()

	ctx := context.Background()
	repo := repos.NewRunRepo(history)

	run, err := repo.Find(ctx, pipeline, ref)
	if err != nil {
		return fmt.Errorf("failed to find run %q of %s: %w", ref, pipeline, err)
	}

	legs, err := repo.Legs(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to load legs of run #%d: %w", run.Number, err)
	}
	artifacts, err := repo.Artifacts(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to load artifacts of run #%d: %w", run.Number, err)
	}

	var events []types.Event
	if runsShowEvents || runsOutputFormat != "text" {
		events, err = repo.Events(ctx, run)
		if err != nil {
			return fmt.Errorf("failed to load events of run #%d: %w", run.Number, err)
		}
	}

	switch runsOutputFormat {
	case "json":
		data, err := json.MarshalIndent(runDetail{run, legs, artifacts, events}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal run to JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(runDetail{run, legs, artifacts, events})
		if err != nil {
			return fmt.Errorf("failed to marshal run to YAML: %w", err)
		}
		fmt.Print(string(data))
		return nil
	case "text", "":
	default:
		return fmt.Errorf("unsupported output format: %s", runsOutputFormat)
	}

	printRunDetail(run, legs, artifacts, events)
	return nil
}

// printRunDetail renders the human-readable run view.
func printRunDetail(run *types.Run, legs []types.LegRun, artifacts []types.Artifact, events []types.Event) {
	fmt.Printf("\n🔍 Run %s of %s\n\n", format.Highlight(fmt.Sprintf("#%d", run.Number)), format.Highlight(run.PipelineName))

	fmt.Printf("- %s\n", format.Label("Status", format.StatusLabel(string(run.Status))))
	if run.StatusMessage != "" {
		fmt.Printf("- %s\n", format.Label("Note", run.StatusMessage))
	}
	fmt.Printf("- %s\n", format.Label("Reason", string(run.Reason)))
	if run.Branch != "" {
		branch := run.Branch
		if run.Commit != "" {
			branch = fmt.Sprintf("%s (%s)", branch, shortCommit(run.Commit))
		}
		fmt.Printf("- %s\n", format.Label("Branch", branch))
	}
	if run.StartTime != nil {
		fmt.Printf("- %s\n", format.Label("Started", fmt.Sprintf("%s (%s ago)", run.StartTime.Format("2006-01-02 15:04:05"), formatAge(*run.StartTime))))
	}
	fmt.Printf("- %s\n", format.Label("Duration", formatRunDuration(run.StartTime, run.CompletionTime)))
	fmt.Printf("- %s\n", format.Label("ID", run.ID))

	if len(legs) > 0 {
		rows := [][]string{{"LEG", "STATUS", "EXECUTOR", "IMAGE", "STEPS", "DURATION"}}
		for _, leg := range legs {
			image := leg.Image
			if image == "" {
				image = "-"
			}
			rows = append(rows, []string{
				leg.Name,
				format.PTermStatusLabel(string(leg.Status)),
				leg.Executor,
				image,
				stepTally(leg.Steps),
				formatRunDuration(leg.StartTime, leg.CompletionTime),
			})
		}

		fmt.Println()
		newTable().WithData(rows).Render()

		for _, leg := range legs {
			if len(leg.Steps) == 0 {
				continue
			}
			fmt.Printf("\nSteps of %s:\n", format.Highlight(leg.Name))
			for _, step := range leg.Steps {
				name := step.DisplayName
				if name == "" {
					name = step.Name
				}
				switch step.Status {
				case types.StepStatusSucceeded:
					fmt.Printf("  %s %s (%s)\n", format.StatusSymbol(true), name, formatRunDuration(step.StartTime, step.CompletionTime))
				case types.StepStatusSkipped:
					fmt.Printf("  ↷ %s skipped", name)
					if step.Message != "" {
						fmt.Printf(" (%s)", step.Message)
					}
					fmt.Println()
				case types.StepStatusFailed:
					fmt.Printf("  %s %s: %s\n", format.StatusSymbol(false), name, step.Message)
				default:
					fmt.Printf("  • %s (%s)\n", name, strings.ToLower(string(step.Status)))
				}
			}
			if leg.LogFile != "" {
				fmt.Printf("  %s\n", format.Dim("log: %s", leg.LogFile))
			}
		}
	}

	if len(artifacts) > 0 {
		rows := [][]string{{"ARTIFACT", "KIND", "VERSION", "SIZE"}}
		for _, artifact := range artifacts {
			version := artifact.Version
			if version == "" {
				version = "-"
			}
			rows = append(rows, []string{
				artifact.Name,
				string(artifact.Kind),
				version,
				formatSize(artifact.Size),
			})
		}

		fmt.Println()
		newTable().WithData(rows).Render()
	}

	if runsShowEvents && len(events) > 0 {
		fmt.Printf("\nEvents:\n")
		for _, event := range events {
			line := fmt.Sprintf("  %s  %-14s", event.Timestamp.Format("15:04:05"), event.Type)
			if event.Leg != "" {
				line += fmt.Sprintf(" [%s]", event.Leg)
			}
			if event.Message != "" {
				line += " " + event.Message
			}
			fmt.Println(line)
		}
	}

	fmt.Println()
}

// runRunsPrune is the entry point for the runs prune command
func runRunsPrune(cmd *cobra.Command, args []string) error {
	pipeline, err := resolveHistoryPipeline(args)
	if err != nil {
		return err
	}

	logger := rootLogger()
	history, err := openHistoryStore(logger)
	if err != nil {
		return err
	}
	defer history.Close()

	ctx := context.Background()
	repo := repos.NewRunRepo(history)

	before, err := repo.List(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("failed to list runs of %s: %w", pipeline, err)
	}

	pruned, err := repo.Prune(ctx, pipeline, repos.PruneOptions{
		KeepSucceeded: runsKeepSucceeded,
		KeepFailed:    runsKeepFailed,
	})
	if err != nil {
		return fmt.Errorf("failed to prune runs of %s: %w", pipeline, err)
	}

	if pruned == 0 {
		fmt.Printf("Run history of %s is already within limits; nothing pruned.\n", format.Highlight(pipeline))
		return nil
	}

	pruneStagingDirs(ctx, repo, pipeline, before, logger)

	fmt.Printf("🧹 Pruned %d runs of %s (keeping %s succeeded, %s failed)\n",
		pruned, format.Highlight(pipeline), keepLimitLabel(runsKeepSucceeded), keepLimitLabel(runsKeepFailed))
	return nil
}

// pruneStagingDirs removes the staging dirs (logs, artifacts, run
// snapshots) of runs that were just pruned from the store.
func pruneStagingDirs(ctx context.Context, repo *repos.RunRepo, pipeline string, before []types.Run, logger log.Logger) {
	after, err := repo.List(ctx, pipeline)
	if err != nil {
		logger.Warn("Could not list runs after prune; staging dirs left in place", log.Err(err))
		return
	}

	kept := make(map[int64]bool, len(after))
	for _, run := range after {
		kept[run.Number] = true
	}

	for _, run := range before {
		if kept[run.Number] {
			continue
		}
		dir := filepath.Join(runsPath(), pipeline, strconv.FormatInt(run.Number, 10))
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Could not remove staging dir", log.Str("dir", dir), log.Err(err))
		}
	}
}

// keepLimitLabel renders a prune keep limit for the summary line.
func keepLimitLabel(keep int) string {
	if keep < 0 {
		return "all"
	}
	return fmt.Sprintf("%d", keep)
}
