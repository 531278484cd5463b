package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/engine"
	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/store"
	"github.com/rzbill/slipway/pkg/trigger"
	"github.com/rzbill/slipway/pkg/types"
)

var (
	// Run command flags
	runBranch      string
	runCommit      string
	runEvent       string
	runForce       bool
	runJob         string
	runLeg         string
	runExecutor    string
	runMaxParallel int
	runSource      string
	runDryRun      bool
	runNoHistory   bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [pipeline file]",
	Short: "Run a release pipeline",
	Long: `Run a release pipeline against the local checkout.
For example:
  slipway run
  slipway run release.yaml
  slipway run --branch feature/wheels --force
  slipway run --job build --executor docker
  slipway run --leg linux --max-parallel 1
  slipway run --dry-run`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runBranch, "branch", "", "Branch the run is for (default: current git branch, falling back to main)")
	runCmd.Flags().StringVar(&runCommit, "commit", "", "Commit SHA recorded on the run")
	runCmd.Flags().StringVar(&runEvent, "event", "push", "Event starting the run (push, manual, schedule)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Run even when the trigger does not match the branch")
	runCmd.Flags().StringVar(&runJob, "job", "", "Run only this job; its dependencies are treated as succeeded")
	runCmd.Flags().StringVar(&runLeg, "leg", "", "Run only matrix legs with this name")
	runCmd.Flags().StringVar(&runExecutor, "executor", "", "Step executor (host, docker; default from config)")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Cap concurrent legs per job on top of the pipeline strategy")
	runCmd.Flags().StringVar(&runSource, "source", ".", "Project checkout the steps run against")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate and show the plan without running anything")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not persist the run to the history store")
}

// runRun is the main entry point for the run command
func runRun(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	logger := rootLogger()

	reason, err := parseRunReason(runEvent)
	if err != nil {
		return err
	}

	filename, err := resolvePipelineFile(args)
	if err != nil {
		return err
	}

	pipelines, err := loadPipelines(filename)
	if err != nil {
		return err
	}

	branch := runBranch
	if branch == "" {
		branch = currentGitBranch(runSource)
	}
	ev := trigger.PushEvent{Branch: branch, Commit: runCommit}

	printRunBanner(filename, branch, len(pipelines))

	// Plan only; nothing is persisted or executed
	if runDryRun {
		planner := engine.New(engine.WithLogger(logger))
		for _, pipeline := range pipelines {
			plan, err := planner.Plan(pipeline, ev)
			if err != nil {
				return err
			}
			renderPlan(plan, pipeline)
		}
		fmt.Println("✅ Validation successful!")
		fmt.Println("💬 Use without --dry-run to run.")
		return nil
	}

	var history store.Store
	if runNoHistory {
		history = store.NewMemoryStore()
	} else {
		history, err = openHistoryStore(logger)
		if err != nil {
			return err
		}
	}
	defer history.Close()

	stepExecutor, err := buildExecutor(runExecutor, logger)
	if err != nil {
		return err
	}

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithStore(history),
		engine.WithExecutor(stepExecutor),
		engine.WithConsole(newRunConsole(verbose)),
		engine.WithRunsDir(runsPath()),
		engine.WithConnections(cfg.LookupConnection),
		engine.WithPythonDirs(cfg.Python.Candidates),
	)

	opts := engine.RunOptions{
		Reason:      reason,
		Force:       runForce,
		Job:         runJob,
		Leg:         runLeg,
		MaxParallel: runMaxParallel,
		Workspace:   runSource,
	}

	// Ctrl+C cancels the run; legs finish as Canceled
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var failed []string
	for _, pipeline := range pipelines {
		result, err := eng.Run(ctx, pipeline, ev, opts)
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", pipeline.Name, err)
		}

		if !result.Triggered {
			continue
		}
		if result.Run.Status != types.RunStatusSucceeded {
			failed = append(failed, fmt.Sprintf("%s #%d %s",
				pipeline.Name, result.Run.Number, strings.ToLower(string(result.Run.Status))))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("run failed: %s", strings.Join(failed, ", "))
	}

	logger.Debug("Run command finished",
		log.Str("file", filename),
		log.Duration("elapsed", time.Since(startTime)))
	return nil
}

// printRunBanner prints the initial banner for the run command
func printRunBanner(filename, branch string, pipelineCount int) {
	fmt.Println("\n⚓ Slipway Run Initiated")
	fmt.Println()
	fmt.Println("- Source:", format.Highlight(filename))
	fmt.Println("- Branch:", format.Highlight(branch))
	if pipelineCount > 1 {
		fmt.Printf("- Pipelines: %d\n", pipelineCount)
	}
}
