package store

import (
	"context"
	"testing"

	"github.com/rzbill/slipway/pkg/log"
)

type testRun struct {
	ID     string `json:"id"`
	Number int64  `json:"number"`
	Status string `json:"status"`
}

// setupBadgerStore opens a BadgerStore over a per-test directory.
func setupBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	s := NewBadgerStore(log.NewTestLogger())
	if err := s.Open(t.TempDir()); err != nil {
		t.Fatalf("open badger store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// storeSuite exercises the Store contract against any implementation.
func storeSuite(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	run := testRun{ID: "a1b2", Number: 1, Status: "Pending"}

	if err := s.Create(ctx, ResourceTypeRun, "openpatchminer", "000000000001", run); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Creating the same key again is an error.
	err := s.Create(ctx, ResourceTypeRun, "openpatchminer", "000000000001", run)
	if !IsAlreadyExistsError(err) {
		t.Fatalf("expected already-exists error, got %v", err)
	}

	var got testRun
	if err := s.Get(ctx, ResourceTypeRun, "openpatchminer", "000000000001", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != run {
		t.Fatalf("get returned %+v, want %+v", got, run)
	}

	run.Status = "Succeeded"
	if err := s.Update(ctx, ResourceTypeRun, "openpatchminer", "000000000001", run); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Get(ctx, ResourceTypeRun, "openpatchminer", "000000000001", &got); err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != "Succeeded" {
		t.Fatalf("update not visible, got %+v", got)
	}

	// Updating a missing resource is an error.
	err = s.Update(ctx, ResourceTypeRun, "openpatchminer", "000000000099", run)
	if !IsNotFoundError(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	// List returns resources for the pipeline in key order, and
	// nothing for other pipelines.
	second := testRun{ID: "c3d4", Number: 2, Status: "Pending"}
	if err := s.Create(ctx, ResourceTypeRun, "openpatchminer", "000000000002", second); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if err := s.Create(ctx, ResourceTypeRun, "otherpipeline", "000000000001", testRun{ID: "zz", Number: 1}); err != nil {
		t.Fatalf("create other pipeline: %v", err)
	}

	var listed []testRun
	if err := s.List(ctx, ResourceTypeRun, "openpatchminer", &listed); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("list returned %d runs, want 2", len(listed))
	}
	if listed[0].Number != 1 || listed[1].Number != 2 {
		t.Fatalf("list out of key order: %+v", listed)
	}

	if err := s.Delete(ctx, ResourceTypeRun, "openpatchminer", "000000000002"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = s.Get(ctx, ResourceTypeRun, "openpatchminer", "000000000002", &got)
	if !IsNotFoundError(err) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}

	// Sequences are per pipeline and start at 1.
	for want := uint64(1); want <= 3; want++ {
		n, err := s.NextSequence("seq-pipeline")
		if err != nil {
			t.Fatalf("next sequence: %v", err)
		}
		if n != want {
			t.Fatalf("sequence = %d, want %d", n, want)
		}
	}
	n, err := s.NextSequence("seq-other")
	if err != nil {
		t.Fatalf("next sequence other: %v", err)
	}
	if n != 1 {
		t.Fatalf("sequences should be independent per pipeline, got %d", n)
	}
}

func TestBadgerStoreSuite(t *testing.T) {
	storeSuite(t, setupBadgerStore(t))
}

func TestMemoryStoreSuite(t *testing.T) {
	storeSuite(t, NewMemoryStore())
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := NewBadgerStore(log.NewTestLogger())
	if err := s.Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Create(ctx, ResourceTypeRun, "openpatchminer", "000000000001", testRun{ID: "a", Number: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.NextSequence("openpatchminer"); err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewBadgerStore(log.NewTestLogger())
	if err := reopened.Open(dir); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	var got testRun
	if err := reopened.Get(ctx, ResourceTypeRun, "openpatchminer", "000000000001", &got); err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Number != 1 {
		t.Fatalf("unexpected run after reopen: %+v", got)
	}

	// The released sequence resumes past the last handed-out number.
	n, err := reopened.NextSequence("openpatchminer")
	if err != nil {
		t.Fatalf("sequence after reopen: %v", err)
	}
	if n < 2 {
		t.Fatalf("sequence went backwards after reopen: %d", n)
	}
}

func TestMakeKeyAndPrefix(t *testing.T) {
	t.Parallel()

	if got := string(MakeKey(ResourceTypeRun, "openpatchminer", "000000000007")); got != "runs/openpatchminer/000000000007" {
		t.Fatalf("MakeKey = %q", got)
	}
	if got := string(MakePrefix(ResourceTypeRun, "openpatchminer")); got != "runs/openpatchminer/" {
		t.Fatalf("MakePrefix = %q", got)
	}
	if got := string(MakePrefix(ResourceTypeRun, "")); got != "runs/" {
		t.Fatalf("MakePrefix all = %q", got)
	}

	rt, pipeline, name, ok := ParseKey([]byte("legruns/openpatchminer/000000000007-leg1"))
	if !ok || rt != "legruns" || pipeline != "openpatchminer" || name != "000000000007-leg1" {
		t.Fatalf("ParseKey = %q %q %q %v", rt, pipeline, name, ok)
	}
}
