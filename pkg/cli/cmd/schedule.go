package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/engine"
	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/store/repos"
	"github.com/rzbill/slipway/pkg/trigger"
	"github.com/rzbill/slipway/pkg/types"
)

var (
	// Schedule command flags
	scheduleBranch      string
	scheduleExecutor    string
	scheduleMaxParallel int
	scheduleSource      string
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule [pipeline file]",
	Short: "Run pipelines on their cron schedules",
	Long: `Stay in the foreground and start runs when the pipeline's
schedules fire. The branch filter of each schedule is applied to the
branch the checkout is on at fire time, and a schedule without
always: true skips firing when the commit has not changed since its
last successful run.

Examples:
  slipway schedule
  slipway schedule release.yaml
  slipway schedule --branch main --executor docker`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringVar(&scheduleBranch, "branch", "", "Branch scheduled runs are for (default: current git branch at fire time)")
	scheduleCmd.Flags().StringVar(&scheduleExecutor, "executor", "", "Step executor (host, docker; default from config)")
	scheduleCmd.Flags().IntVar(&scheduleMaxParallel, "max-parallel", 0, "Cap concurrent legs per job on top of the pipeline strategy")
	scheduleCmd.Flags().StringVar(&scheduleSource, "source", ".", "Project checkout the steps run against")
}

// runSchedule is the main entry point for the schedule command
func runSchedule(cmd *cobra.Command, args []string) error {
	logger := rootLogger()

	filename, err := resolvePipelineFile(args)
	if err != nil {
		return err
	}

	pipelines, err := loadPipelines(filename)
	if err != nil {
		return err
	}

	total := 0
	for _, pipeline := range pipelines {
		total += len(pipeline.Schedules)
	}
	if total == 0 {
		return fmt.Errorf("%s defines no schedules; add a schedules: section to a pipeline", filename)
	}

	history, err := openHistoryStore(logger)
	if err != nil {
		return err
	}
	defer history.Close()
	repo := repos.NewRunRepo(history)

	stepExecutor, err := buildExecutor(scheduleExecutor, logger)
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

	// Ctrl+C stops the scheduler; an in-flight run finishes as Canceled
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := trigger.NewScheduler(logger)

	// Fires run one at a time; overlapping schedules queue here
	var fireMu sync.Mutex

	rows := [][]string{{"PIPELINE", "SCHEDULE", "CRON", "NEXT FIRE"}}
	for _, pipeline := range pipelines {
		pipeline := pipeline
		for _, spec := range pipeline.Schedules {
			spec := spec
			if _, err := sched.Add(pipeline.Name, spec, func() {
				fireMu.Lock()
				defer fireMu.Unlock()
				fireScheduledRun(ctx, eng, repo, pipeline, spec, logger)
			}); err != nil {
				return err
			}

			rows = append(rows, []string{
				pipeline.Name, scheduleLabel(spec), spec.Cron, nextFireLabel(spec),
			})
		}
	}

	fmt.Println("\n📅 Slipway Scheduler")
	fmt.Println()
	fmt.Println("- Source:", format.Highlight(filename))
	fmt.Printf("- Schedules: %d\n", total)
	fmt.Println()
	if err := newTable().WithData(rows).Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to exit.")

	sched.Start()
	<-ctx.Done()

	fmt.Println("\nScheduler interrupted; waiting for the current run to finish...")
	sched.Stop()
	return nil
}

// fireScheduledRun starts one scheduled run, applying the schedule's
// branch filter and change detection at fire time.
func fireScheduledRun(ctx context.Context, eng *engine.Engine, repo *repos.RunRepo, pipeline *types.Pipeline, spec types.ScheduleSpec, logger log.Logger) {
	if ctx.Err() != nil {
		return
	}

	branch := scheduleBranch
	if branch == "" {
		branch = currentGitBranch(scheduleSource)
	}
	commit := currentGitCommit(scheduleSource)

	name := scheduleLabel(spec)
	logger = logger.WithField("pipeline", pipeline.Name).WithField("schedule", name)

	filter := &types.TriggerSpec{Branches: spec.Branches}
	if decision := trigger.Matches(filter, trigger.PushEvent{Branch: branch}); !decision.Matched {
		logger.Info("Skipping scheduled run", log.Str("branch", branch), log.Str("reason", decision.Reason))
		return
	}

	if !spec.Always && alreadyBuilt(ctx, repo, pipeline.Name, branch, commit) {
		logger.Info("Skipping scheduled run, commit unchanged since the last successful one",
			log.Str("branch", branch), log.Str("commit", commit))
		return
	}

	fmt.Printf("\n📅 Schedule %s fired for %s\n", format.Highlight(name), format.Highlight(pipeline.Name))

	result, err := eng.Run(ctx, pipeline, trigger.PushEvent{Branch: branch, Commit: commit}, engine.RunOptions{
		Reason:      types.RunReasonSchedule,
		Force:       true,
		MaxParallel: scheduleMaxParallel,
		Workspace:   scheduleSource,
	})
	if err != nil {
		logger.Error("Scheduled run failed to start", log.Err(err))
		return
	}

	if result.Triggered && result.Run.Status != types.RunStatusSucceeded {
		logger.Error("Scheduled run did not succeed",
			log.Str("run", fmt.Sprintf("#%d", result.Run.Number)),
			log.Str("status", string(result.Run.Status)))
	}
}

// alreadyBuilt reports whether the newest scheduled run of the pipeline
// on this branch succeeded for the same commit.
func alreadyBuilt(ctx context.Context, repo *repos.RunRepo, pipeline, branch, commit string) bool {
	if commit == "" {
		return false
	}

	runs, err := repo.List(ctx, pipeline)
	if err != nil {
		return false
	}
	for _, run := range runs {
		if run.Reason != types.RunReasonSchedule || run.Branch != branch {
			continue
		}
		return run.Status == types.RunStatusSucceeded && run.Commit == commit
	}
	return false
}

// scheduleLabel is the display name of a schedule, falling back to its
// cron expression.
func scheduleLabel(spec types.ScheduleSpec) string {
	if spec.DisplayName != "" {
		return spec.DisplayName
	}
	return spec.Cron
}

// nextFireLabel formats the next fire time of a schedule.
func nextFireLabel(spec types.ScheduleSpec) string {
	next, err := trigger.NextRuns(spec, time.Now(), 1)
	if err != nil || len(next) == 0 {
		return "-"
	}
	return next[0].Format("2006-01-02 15:04:05")
}
