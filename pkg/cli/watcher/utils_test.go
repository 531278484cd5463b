package watcher

import (
	"testing"
	"time"
)

func TestFormatAge(t *testing.T) {
	if got := formatAge(time.Time{}); got != "Unknown" {
		t.Fatalf("formatAge zero: got %q", got)
	}
	if got := formatAge(time.Now().Add(-10 * time.Second)); got != "Just now" {
		t.Fatalf("formatAge <1m: got %q", got)
	}
	if got := formatAge(time.Now().Add(-2 * time.Minute)); got != "2m" {
		t.Fatalf("formatAge minutes: got %q", got)
	}
	if got := formatAge(time.Now().Add(-3 * time.Hour)); got != "3h" {
		t.Fatalf("formatAge hours: got %q", got)
	}
	if got := formatAge(time.Now().Add(-2 * 24 * time.Hour)); got != "2d" {
		t.Fatalf("formatAge days: got %q", got)
	}
	if got := formatAge(time.Now().Add(-3 * 30 * 24 * time.Hour)); got != "3mo" {
		t.Fatalf("formatAge months: got %q", got)
	}
	if got := formatAge(time.Now().Add(-2 * 365 * 24 * time.Hour)); got != "2y" {
		t.Fatalf("formatAge years: got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := formatDuration(nil, nil); got != "-" {
		t.Fatalf("formatDuration never started: got %q", got)
	}

	end := base.Add(250 * time.Millisecond)
	if got := formatDuration(&base, &end); got != "250ms" {
		t.Fatalf("formatDuration ms: got %q", got)
	}

	end = base.Add(42*time.Second + 300*time.Millisecond)
	if got := formatDuration(&base, &end); got != "42.3s" {
		t.Fatalf("formatDuration seconds: got %q", got)
	}

	end = base.Add(5*time.Minute + 7*time.Second)
	if got := formatDuration(&base, &end); got != "5m07s" {
		t.Fatalf("formatDuration minutes: got %q", got)
	}

	end = base.Add(2*time.Hour + 3*time.Minute)
	if got := formatDuration(&base, &end); got != "2h03m" {
		t.Fatalf("formatDuration hours: got %q", got)
	}

	// Still running: elapsed since start
	start := time.Now().Add(-90 * time.Second)
	if got := formatDuration(&start, nil); got != "1m30s" {
		t.Fatalf("formatDuration in flight: got %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("short", 10); got != "short" {
		t.Fatalf("unexpected truncate for short string: %q", got)
	}
	if got := truncateString("longstring", 5); got != "lo..." {
		t.Fatalf("unexpected truncate: %q", got)
	}
}
