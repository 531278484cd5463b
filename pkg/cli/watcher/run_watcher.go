package watcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/rzbill/slipway/pkg/types"
)

// RunWatcher renders a live view of a pipeline's run history. It polls
// a RunSource and redraws the terminal whenever runs appear, change
// state, or get pruned.
type RunWatcher struct {
	// Configuration
	Pipeline        string
	ShowHeaders     bool
	PollInterval    time.Duration
	RefreshInterval time.Duration
	WatchTimeout    time.Duration

	// Internal state
	runs                  map[int64]types.Run
	events                []Event
	lastUpdateTime        time.Time
	initialSyncComplete   bool
	retryDelay            time.Duration
	maxRetryDelay         time.Duration
	tableRenderer         *pterm.TablePrinter
	termWidth, termHeight int
	maxEvents             int
	rowsRenderer          func(runs []types.Run) [][]string
	eventRenderer         func(events []Event) []string
}

// Event represents a run change event for display
type Event struct {
	EventType string    // "ADDED", "MODIFIED", "DELETED"
	Run       types.Run // The run that changed
	Timestamp time.Time // When the change was observed
}

// RunSource is the slice of run history the watcher polls.
// *repos.RunRepo satisfies it.
type RunSource interface {
	List(ctx context.Context, pipeline string) ([]types.Run, error)
}

// NewRunWatcher creates a new watcher with default configuration
func NewRunWatcher(pipeline string) *RunWatcher {
	w := &RunWatcher{
		Pipeline:        pipeline,
		ShowHeaders:     true,
		PollInterval:    1 * time.Second,
		RefreshInterval: 2 * time.Second,
		runs:            make(map[int64]types.Run),
		events:          make([]Event, 0, 10),
		maxEvents:       10,
		retryDelay:      1 * time.Second,
		maxRetryDelay:   30 * time.Second,
		lastUpdateTime:  time.Now(),
	}

	// Initialize terminal size
	w.updateTerminalSize()

	return w
}

// SetRowsRenderer sets a custom function to convert runs to table rows
func (w *RunWatcher) SetRowsRenderer(renderer func(runs []types.Run) [][]string) {
	w.rowsRenderer = renderer
}

// SetEventRenderer sets a custom function to render events
func (w *RunWatcher) SetEventRenderer(renderer func(events []Event) []string) {
	w.eventRenderer = renderer
}

// SetTimeout sets the watch timeout duration
func (w *RunWatcher) SetTimeout(timeout string) error {
	if timeout == "" {
		w.WatchTimeout = 0
		return nil
	}

	duration, err := time.ParseDuration(timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout value: %w", err)
	}
	w.WatchTimeout = duration
	return nil
}

// Watch polls the source until interrupted or the timeout elapses.
func (w *RunWatcher) Watch(ctx context.Context, source RunSource) error {
	// Set up a channel to handle OS signals for graceful termination
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	// Create context with timeout if specified
	var cancel context.CancelFunc
	if w.WatchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.WatchTimeout)
	} else {
		// No timeout specified, create a cancellable context
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// First poll seeds the table without generating events
	if _, err := w.poll(ctx, source); err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}
	w.initialSyncComplete = true
	w.refreshScreen()

	pollTicker := time.NewTicker(w.PollInterval)
	defer pollTicker.Stop()

	refreshTicker := time.NewTicker(w.RefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-pollTicker.C:
			changed, err := w.poll(ctx, source)
			if err != nil {
				// Transient store errors get retried with backoff
				fmt.Printf("\nFailed to read run history: %v. Retrying in %v...\n", err, w.retryDelay)
				time.Sleep(w.retryDelay)
				w.retryDelay = min(w.retryDelay*2, w.maxRetryDelay)
				continue
			}
			w.retryDelay = 1 * time.Second
			if changed {
				w.lastUpdateTime = time.Now()
				w.refreshScreen()
			}

		case <-refreshTicker.C:
			// Redraw even without changes so ages stay current
			w.refreshScreen()

		case <-sig:
			fmt.Println("\nWatch interrupted")
			return nil

		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				fmt.Println("\nWatch timeout reached")
				return nil
			}
			return ctx.Err()
		}
	}
}

// poll reads the current run list, diffs it against the last observed
// state, and reports whether anything changed. Changes after the
// initial sync also append display events.
func (w *RunWatcher) poll(ctx context.Context, source RunSource) (bool, error) {
	runs, err := source.List(ctx, w.Pipeline)
	if err != nil {
		return false, err
	}

	changed := false
	seen := make(map[int64]bool, len(runs))
	for _, run := range runs {
		seen[run.Number] = true

		old, exists := w.runs[run.Number]
		w.runs[run.Number] = run

		if !exists {
			changed = true
			if w.initialSyncComplete {
				w.appendEvent(Event{EventType: "ADDED", Run: run, Timestamp: time.Now()})
			}
			continue
		}
		if runChanged(old, run) {
			changed = true
			w.appendEvent(Event{EventType: "MODIFIED", Run: run, Timestamp: time.Now()})
		}
	}

	// Runs that disappeared were pruned
	for number, run := range w.runs {
		if !seen[number] {
			delete(w.runs, number)
			changed = true
			if w.initialSyncComplete {
				w.appendEvent(Event{EventType: "DELETED", Run: run, Timestamp: time.Now()})
			}
		}
	}

	return changed, nil
}

// runChanged reports whether a run moved since it was last observed.
func runChanged(old, current types.Run) bool {
	if old.Status != current.Status {
		return true
	}
	return !old.UpdatedAt.Equal(current.UpdatedAt)
}

func (w *RunWatcher) appendEvent(event Event) {
	w.events = append(w.events, event)

	// Limit recent events to max events
	if len(w.events) > w.maxEvents {
		w.events = w.events[len(w.events)-w.maxEvents:]
	}
}

// refreshScreen clears the screen and redraws the current state
func (w *RunWatcher) refreshScreen() {
	// Update terminal size for proper display
	w.updateTerminalSize()

	// Clear screen without adding to scrollback
	fmt.Print("\033[1;1H\033[J")

	fmt.Println()
	fmt.Printf("Watching runs of %s (updated %s)\n", w.Pipeline, w.lastUpdateTime.Format("15:04:05"))
	fmt.Println()

	// Convert map to slice for sorting and rendering
	var runsList []types.Run
	for _, run := range w.runs {
		runsList = append(runsList, run)
	}

	// Print table with current run state
	if len(runsList) > 0 {
		if w.rowsRenderer != nil {
			rows := w.rowsRenderer(runsList)
			w.renderTable(rows)
		} else {
			w.renderTable(DefaultRunRows(runsList))
		}
		fmt.Println()
	} else {
		fmt.Println("No runs recorded yet")
		fmt.Println()
	}

	// Print recent events if there are any
	if len(w.events) > 0 {
		lines := DefaultRunEventRenderer(w.events)
		if w.eventRenderer != nil {
			lines = w.eventRenderer(w.events)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
	}

	fmt.Println()
	fmt.Println("Press Ctrl+C to exit.")
}

// renderTable renders a table with the provided rows
func (w *RunWatcher) renderTable(rows [][]string) {
	if len(rows) == 0 {
		return
	}

	// Create a new table if we don't have one yet
	if w.tableRenderer == nil {
		table := pterm.DefaultTable.WithHasHeader(w.ShowHeaders)
		headerStyle := pterm.NewStyle(pterm.FgCyan, pterm.Bold)
		table = table.WithHeaderStyle(headerStyle)
		w.tableRenderer = table
	}

	// Calculate how many rows we can display based on terminal height
	// Account for header, footer, event display etc.
	headerLines := 3                // Header text + blank line + table header
	footerLines := 3                // Blank line + "Press Ctrl+C" + buffer
	eventLines := len(w.events) + 1 // +1 for blank line
	if eventLines == 1 {
		eventLines = 0 // No blank line if no events
	}

	maxTableLines := w.termHeight - headerLines - footerLines - eventLines - 1
	displayRows := rows

	// Ensure maxTableLines is at least 1 to avoid slice bounds errors
	if maxTableLines < 1 {
		maxTableLines = 1
	}

	// If we have more rows than can fit, truncate and add a message
	if len(rows) > maxTableLines {
		displayRows = rows[:maxTableLines]
		fmt.Printf("... %d more runs not shown (limited by terminal height) ...\n", len(rows)-maxTableLines)
	}

	// Render the table
	err := w.tableRenderer.WithData(displayRows).Render()
	if err != nil {
		fmt.Println("Error rendering table:", err)
	}
}

// updateTerminalSize updates the cached terminal dimensions
func (w *RunWatcher) updateTerminalSize() {
	width, height, err := getTerminalSize()
	if err != nil {
		// Default if can't determine
		width, height = 100, 24
	}
	w.termWidth = width
	w.termHeight = height
}
