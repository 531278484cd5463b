package watcher

import (
	"fmt"
	"sort"

	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/types"
)

// DefaultRunRows converts runs to table rows, newest run first.
func DefaultRunRows(runs []types.Run) [][]string {
	sorted := make([]types.Run, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Number > sorted[j].Number
	})

	rows := [][]string{{"RUN", "STATUS", "REASON", "BRANCH", "COMMIT", "AGE", "DURATION"}}

	for _, run := range sorted {
		commit := run.Commit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		if commit == "" {
			commit = "-"
		}

		rows = append(rows, []string{
			fmt.Sprintf("#%d", run.Number),
			format.PTermStatusLabel(string(run.Status)),
			string(run.Reason),
			truncateString(run.Branch, 30),
			commit,
			formatAge(run.CreatedAt),
			formatDuration(run.StartTime, run.CompletionTime),
		})
	}

	return rows
}

// DefaultRunEventRenderer returns a default renderer for run events
func DefaultRunEventRenderer(events []Event) []string {
	var lines []string
	for _, event := range events {
		var symbol, color string
		var eventPrefix string

		switch event.EventType {
		case "ADDED":
			symbol = "+"
			color = format.Green
			eventPrefix = "STARTED"
		case "MODIFIED":
			symbol = "~"
			color = format.Yellow
			eventPrefix = string(event.Run.Status)
		case "DELETED":
			symbol = "-"
			color = format.Red
			eventPrefix = "PRUNED"
		}

		eventText := fmt.Sprintf("[%s] %s run %s",
			format.Colorize(color, symbol),
			eventPrefix,
			format.Colorize(format.Bold, fmt.Sprintf("#%d", event.Run.Number)))

		lines = append(lines, eventText)
	}
	return lines
}
