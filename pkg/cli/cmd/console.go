package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/engine"
	"github.com/rzbill/slipway/pkg/types"
)

// runConsole renders live run progress to the terminal. Legs run
// concurrently, so every print goes through the mutex.
type runConsole struct {
	mu         sync.Mutex
	showOutput bool
	startTime  time.Time
}

var _ engine.Console = (*runConsole)(nil)

// newRunConsole creates the terminal renderer for a run. When
// showOutput is set, raw step output is streamed through as well.
func newRunConsole(showOutput bool) *runConsole {
	return &runConsole{showOutput: showOutput}
}

func (c *runConsole) RunStarted(run *types.Run, pipeline *types.Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()

	fmt.Printf("\n🚀 Run %s of %s started\n",
		format.Highlight("#%d", run.Number),
		format.Highlight(pipeline.Name))
	fmt.Println("- Reason:", string(run.Reason))
	if run.Branch != "" {
		if run.Commit != "" {
			fmt.Printf("- Branch: %s (%s)\n", run.Branch, shortCommit(run.Commit))
		} else {
			fmt.Println("- Branch:", run.Branch)
		}
	}
	fmt.Println()
}

func (c *runConsole) LegStarted(run *types.Run, leg *types.LegRun) {
	c.mu.Lock()
	defer c.mu.Unlock()

	detail := leg.Executor
	if leg.Image != "" {
		detail = fmt.Sprintf("%s, %s", leg.Executor, leg.Image)
	}
	fmt.Printf("▶ Leg %s started (%s)\n", format.Highlight(leg.Name), detail)
}

// LegOutput tees raw step output to the terminal in verbose mode.
// Concurrent legs interleave, so by default output stays in the log
// files only.
func (c *runConsole) LegOutput(leg *types.LegRun) io.Writer {
	if !c.showOutput {
		return nil
	}
	return os.Stdout
}

func (c *runConsole) StepFinished(run *types.Run, leg *types.LegRun, step *types.StepRun) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := step.DisplayName
	if name == "" {
		name = step.Name
	}

	label := fmt.Sprintf("  [%s] %s ", leg.Name, name)
	fmt.Print(label)

	// Dot-align the outcome column
	dotCount := 52 - len(label)
	if dotCount < 3 {
		dotCount = 3
	}
	fmt.Print(strings.Repeat(".", dotCount))

	switch step.Status {
	case types.StepStatusSucceeded:
		fmt.Printf(" ✓ (%s)\n", formatRunDuration(step.StartTime, step.CompletionTime))
	case types.StepStatusSkipped:
		if step.Message != "" {
			fmt.Printf(" ↷ skipped (%s)\n", step.Message)
		} else {
			fmt.Println(" ↷ skipped")
		}
	default:
		fmt.Printf(" ❌ %s\n", step.Message)
	}
}

func (c *runConsole) LegFinished(run *types.Run, leg *types.LegRun) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch leg.Status {
	case types.RunStatusSucceeded:
		fmt.Printf("%s Leg %s succeeded in %s\n",
			format.StatusSymbol(true), leg.Name,
			formatRunDuration(leg.StartTime, leg.CompletionTime))
	case types.RunStatusSkipped:
		fmt.Printf("↷ Leg %s skipped: %s\n", leg.Name, leg.StatusMessage)
	default:
		fmt.Printf("%s Leg %s %s: %s\n",
			format.StatusSymbol(false), leg.Name,
			strings.ToLower(string(leg.Status)), leg.StatusMessage)
	}
}

func (c *runConsole) RunFinished(run *types.Run, legs []*types.LegRun) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime).Seconds()

	fmt.Println()
	switch run.Status {
	case types.RunStatusSucceeded:
		fmt.Printf("🎉 Run #%d succeeded in %.1fs\n", run.Number, elapsed)
	case types.RunStatusCanceled:
		fmt.Printf("🛑 Run #%d canceled after %.1fs\n", run.Number, elapsed)
	default:
		fmt.Printf("❌ Run #%d failed in %.1fs: %s\n", run.Number, elapsed, run.StatusMessage)
	}

	for _, leg := range legs {
		fmt.Printf("- %s: %s\n", leg.Name, format.StatusLabel(string(leg.Status)))
	}

	fmt.Println()
	fmt.Printf("💬 Inspect: slipway runs show %d\n", run.Number)
}

func (c *runConsole) Notice(msg string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Printf("💬 "+msg+"\n", args...)
}
