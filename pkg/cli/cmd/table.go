package cmd

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/rzbill/slipway/pkg/types"
)

// newTable creates a pterm table with the shared header style.
func newTable() *pterm.TablePrinter {
	table := pterm.DefaultTable.WithHasHeader(true)
	headerStyle := pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	return table.WithHeaderStyle(headerStyle)
}

// formatAge formats a timestamp as a compact human-readable age.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	duration := time.Since(t)
	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh", int(duration.Hours()))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%dd", int(duration.Hours()/24))
	case duration < 365*24*time.Hour:
		return fmt.Sprintf("%dmo", int(duration.Hours()/24/30))
	}
	return fmt.Sprintf("%dy", int(duration.Hours()/24/365))
}

// formatRunDuration renders how long a run or leg took.
func formatRunDuration(start, end *time.Time) string {
	if start == nil {
		return "-"
	}

	var d time.Duration
	if end != nil {
		d = end.Sub(*start)
	} else {
		d = time.Since(*start)
	}

	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

// shortCommit truncates a commit SHA for table display.
func shortCommit(commit string) string {
	if commit == "" {
		return "-"
	}
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

// formatSize renders an artifact size in bytes as a compact string.
func formatSize(bytes int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/kb)
	}
	return fmt.Sprintf("%d B", bytes)
}

// stepTally summarizes a leg's steps as succeeded/total.
func stepTally(steps []types.StepRun) string {
	if len(steps) == 0 {
		return "-"
	}

	succeeded := 0
	for _, step := range steps {
		if step.Status == types.StepStatusSucceeded {
			succeeded++
		}
	}
	return fmt.Sprintf("%d/%d", succeeded, len(steps))
}
