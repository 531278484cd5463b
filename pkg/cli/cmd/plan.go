package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/engine"
	"github.com/rzbill/slipway/pkg/trigger"
	"github.com/rzbill/slipway/pkg/types"
)

var (
	// Plan command flags
	planBranch string
	planCommit string
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan [pipeline file]",
	Short: "Show what a run would do without running it",
	Long: `Evaluate a pipeline against a push event and show the trigger
decision, the job order, and the matrix legs each job expands to.
For example:
  slipway plan
  slipway plan release.yaml --branch feature/wheels`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVar(&planBranch, "branch", "", "Branch to evaluate the trigger against (default: current git branch)")
	planCmd.Flags().StringVar(&planCommit, "commit", "", "Commit SHA for the event")
}

func runPlan(cmd *cobra.Command, args []string) error {
	filename, err := resolvePipelineFile(args)
	if err != nil {
		return err
	}

	pipelines, err := loadPipelines(filename)
	if err != nil {
		return err
	}

	branch := planBranch
	if branch == "" {
		branch = currentGitBranch(".")
	}
	ev := trigger.PushEvent{Branch: branch, Commit: planCommit}

	planner := engine.New(engine.WithLogger(rootLogger()))
	for _, pipeline := range pipelines {
		plan, err := planner.Plan(pipeline, ev)
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", pipeline.Name, err)
		}
		renderPlan(plan, pipeline)
	}

	return nil
}

// renderPlan prints one pipeline's plan: trigger decision, schedules,
// and the per-job leg table.
func renderPlan(plan *engine.Plan, pipeline *types.Pipeline) {
	fmt.Printf("\n📋 Plan for %s\n\n", format.Highlight(plan.Pipeline))

	if plan.Decision.Matched {
		fmt.Printf("%s Trigger: a push would start a run (%s)\n",
			format.StatusSymbol(true), plan.Decision.Reason)
	} else {
		fmt.Printf("⏭ Trigger: would not run (%s)\n", plan.Decision.Reason)
	}

	for _, spec := range pipeline.Schedules {
		name := scheduleLabel(spec)

		next, err := trigger.NextRuns(spec, time.Now(), 3)
		if err != nil {
			fmt.Printf("⏰ Schedule %s: %v\n", name, err)
			continue
		}

		fireTimes := make([]string, 0, len(next))
		for _, t := range next {
			fireTimes = append(fireTimes, t.Format("Mon 15:04"))
		}
		fmt.Printf("⏰ Schedule %s (%s): next %s\n", name, spec.Cron, strings.Join(fireTimes, ", "))
	}

	fmt.Println()

	for i, job := range plan.Jobs {
		header := fmt.Sprintf("%d. Job %s", i+1, format.Highlight(job.Name))
		if len(job.DependsOn) > 0 {
			header += fmt.Sprintf(" (after %s)", strings.Join(job.DependsOn, ", "))
		}
		if job.MaxParallel > 0 && len(job.Legs) > 1 {
			header += fmt.Sprintf(" [maxParallel %d]", job.MaxParallel)
		}
		fmt.Println(header)

		rows := [][]string{{"LEG", "IMAGE", "VARIABLES"}}
		for _, leg := range job.Legs {
			image := leg.Image
			if image == "" {
				image = "-"
			}
			rows = append(rows, []string{leg.Name, image, formatLegVars(leg.Vars)})
		}
		if err := newTable().WithData(rows).Render(); err != nil {
			fmt.Println("Error rendering table:", err)
		}
		fmt.Println()
	}

	fmt.Printf("Total: %d jobs, %d legs\n", len(plan.Jobs), plan.Legs())
}

// formatLegVars renders matrix variables as sorted key=value pairs.
func formatLegVars(vars map[string]string) string {
	if len(vars) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, vars[k]))
	}
	return strings.Join(pairs, ", ")
}
