package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rzbill/slipway/pkg/types"
)

type fakeRunSource struct {
	runs         []types.Run
	err          error
	lastPipeline string
}

func (f *fakeRunSource) List(ctx context.Context, pipeline string) ([]types.Run, error) {
	f.lastPipeline = pipeline
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Run, len(f.runs))
	copy(out, f.runs)
	return out, nil
}

func TestPollSeedsWithoutEvents(t *testing.T) {
	src := &fakeRunSource{runs: []types.Run{
		{Number: 1, Status: types.RunStatusSucceeded},
		{Number: 2, Status: types.RunStatusRunning},
	}}

	w := NewRunWatcher("openpatchminer")
	changed, err := w.poll(context.Background(), src)
	if err != nil {
		t.Fatalf("poll returned error: %v", err)
	}
	if !changed {
		t.Fatalf("seed poll should report a change")
	}
	if src.lastPipeline != "openpatchminer" {
		t.Fatalf("source queried for %q", src.lastPipeline)
	}
	if len(w.runs) != 2 {
		t.Fatalf("expected 2 tracked runs, got %d", len(w.runs))
	}
	// Pre-existing runs are state, not news
	if len(w.events) != 0 {
		t.Fatalf("seed poll should not emit events, got %d", len(w.events))
	}
}

func TestPollDiffsRunChanges(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	src := &fakeRunSource{runs: []types.Run{
		{Number: 1, Status: types.RunStatusSucceeded, UpdatedAt: now},
	}}

	w := NewRunWatcher("openpatchminer")
	if _, err := w.poll(ctx, src); err != nil {
		t.Fatalf("seed poll: %v", err)
	}
	w.initialSyncComplete = true

	// Nothing changed since the seed
	changed, err := w.poll(ctx, src)
	if err != nil {
		t.Fatalf("steady poll: %v", err)
	}
	if changed || len(w.events) != 0 {
		t.Fatalf("steady state should not report changes (changed=%v events=%d)", changed, len(w.events))
	}

	// A new run appears
	src.runs = append(src.runs, types.Run{Number: 2, Status: types.RunStatusPending, UpdatedAt: now})
	changed, err = w.poll(ctx, src)
	if err != nil {
		t.Fatalf("poll after add: %v", err)
	}
	if !changed || len(w.events) != 1 || w.events[0].EventType != "ADDED" {
		t.Fatalf("expected one ADDED event, got changed=%v events=%v", changed, w.events)
	}

	// The run moves through a status change
	src.runs[1].Status = types.RunStatusRunning
	src.runs[1].UpdatedAt = now.Add(time.Second)
	changed, err = w.poll(ctx, src)
	if err != nil {
		t.Fatalf("poll after modify: %v", err)
	}
	if !changed || w.events[len(w.events)-1].EventType != "MODIFIED" {
		t.Fatalf("expected MODIFIED event, got changed=%v events=%v", changed, w.events)
	}

	// An UpdatedAt bump alone counts as movement
	src.runs[1].UpdatedAt = now.Add(2 * time.Second)
	changed, err = w.poll(ctx, src)
	if err != nil {
		t.Fatalf("poll after touch: %v", err)
	}
	if !changed {
		t.Fatalf("UpdatedAt change should report a change")
	}

	// The first run gets pruned
	src.runs = src.runs[1:]
	changed, err = w.poll(ctx, src)
	if err != nil {
		t.Fatalf("poll after prune: %v", err)
	}
	if !changed || w.events[len(w.events)-1].EventType != "DELETED" {
		t.Fatalf("expected DELETED event, got changed=%v events=%v", changed, w.events)
	}
	if _, still := w.runs[1]; still {
		t.Fatalf("pruned run still tracked")
	}
}

func TestPollSurfacesSourceErrors(t *testing.T) {
	src := &fakeRunSource{err: errors.New("history unavailable")}

	w := NewRunWatcher("openpatchminer")
	if _, err := w.poll(context.Background(), src); err == nil {
		t.Fatalf("expected source error to surface")
	}
}

func TestEventLogKeepsNewest(t *testing.T) {
	w := NewRunWatcher("openpatchminer")
	for i := 1; i <= 15; i++ {
		w.appendEvent(Event{EventType: "ADDED", Run: types.Run{Number: int64(i)}})
	}

	if len(w.events) != w.maxEvents {
		t.Fatalf("expected %d events, got %d", w.maxEvents, len(w.events))
	}
	if got := w.events[len(w.events)-1].Run.Number; got != 15 {
		t.Fatalf("newest event lost, tail is #%d", got)
	}
	if got := w.events[0].Run.Number; got != 6 {
		t.Fatalf("oldest kept event should be #6, got #%d", got)
	}
}

func TestSetTimeout(t *testing.T) {
	w := NewRunWatcher("openpatchminer")

	if err := w.SetTimeout(""); err != nil || w.WatchTimeout != 0 {
		t.Fatalf("empty timeout: err=%v timeout=%v", err, w.WatchTimeout)
	}
	if err := w.SetTimeout("5m"); err != nil || w.WatchTimeout != 5*time.Minute {
		t.Fatalf("5m timeout: err=%v timeout=%v", err, w.WatchTimeout)
	}
	if err := w.SetTimeout("soon"); err == nil {
		t.Fatalf("expected error for invalid timeout")
	}
}

func TestWatchStopsOnTimeout(t *testing.T) {
	src := &fakeRunSource{}

	w := NewRunWatcher("openpatchminer")
	w.PollInterval = 10 * time.Millisecond
	w.RefreshInterval = time.Hour
	w.WatchTimeout = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- w.Watch(context.Background(), src) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned error on timeout: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not stop at the timeout")
	}
}
