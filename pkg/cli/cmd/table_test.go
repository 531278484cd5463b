package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rzbill/slipway/pkg/types"
)

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"just now", 30 * time.Second, "just now"},
		{"minutes", 2 * time.Minute, "2m"},
		{"hours", time.Hour, "1h"},
		{"days", 24 * time.Hour, "1d"},
		{"months", 30 * 24 * time.Hour, "1mo"},
		{"years", 365 * 24 * time.Hour, "1y"},
	}

	now := time.Now()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, formatAge(now.Add(-tc.duration)))
		})
	}

	t.Run("zero time", func(t *testing.T) {
		assert.Equal(t, "unknown", formatAge(time.Time{}))
	})
}

func TestFormatRunDuration(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		tt := base.Add(d)
		return &tt
	}

	tests := []struct {
		name     string
		start    *time.Time
		end      *time.Time
		expected string
	}{
		{"never started", nil, nil, "-"},
		{"milliseconds", &base, at(150 * time.Millisecond), "150ms"},
		{"seconds", &base, at(3*time.Second + 500*time.Millisecond), "3.5s"},
		{"minutes", &base, at(12*time.Minute + 4*time.Second), "12m04s"},
		{"hours", &base, at(time.Hour + 30*time.Minute), "1h30m"},
		{"clock skew clamps to zero", &base, at(-time.Second), "0ms"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, formatRunDuration(tc.start, tc.end))
		})
	}
}

func TestShortCommit(t *testing.T) {
	tests := []struct {
		name     string
		commit   string
		expected string
	}{
		{"empty", "", "-"},
		{"short enough", "abc123", "abc123"},
		{"full sha", "0123456789abcdef0123456789abcdef01234567", "01234567"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, shortCommit(tc.commit))
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name     string
		bytes    int64
		expected string
	}{
		{"bytes", 512, "512 B"},
		{"kilobytes", 4 << 10, "4.0 KiB"},
		{"megabytes", 3 << 20, "3.0 MiB"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, formatSize(tc.bytes))
		})
	}
}

func TestStepTally(t *testing.T) {
	assert.Equal(t, "-", stepTally(nil))

	steps := []types.StepRun{
		{Status: types.StepStatusSucceeded},
		{Status: types.StepStatusFailed},
		{Status: types.StepStatusSucceeded},
		{Status: types.StepStatusSkipped},
	}
	assert.Equal(t, "2/4", stepTally(steps))
}
