package trigger

import (
	"testing"

	"github.com/rzbill/slipway/pkg/types"
)

func TestMatchesNilTrigger(t *testing.T) {
	t.Parallel()

	d := Matches(nil, PushEvent{Branch: "main"})
	if !d.Matched {
		t.Fatalf("nil trigger should match any branch, got %+v", d)
	}
}

func TestMatchesDisabledTrigger(t *testing.T) {
	t.Parallel()

	trig := &types.TriggerSpec{Disabled: true}
	d := Matches(trig, PushEvent{Branch: "main"})
	if d.Matched {
		t.Fatalf("disabled trigger should never match, got %+v", d)
	}
}

func TestMatchesBranchRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		include []string
		exclude []string
		branch  string
		want    bool
	}{
		{
			name:    "exact include",
			include: []string{"main"},
			branch:  "main",
			want:    true,
		},
		{
			name:    "include misses other branch",
			include: []string{"main"},
			branch:  "develop",
			want:    false,
		},
		{
			name:    "refs/heads prefix on event",
			include: []string{"main"},
			branch:  "refs/heads/main",
			want:    true,
		},
		{
			name:    "refs/heads prefix on rule",
			include: []string{"refs/heads/main"},
			branch:  "main",
			want:    true,
		},
		{
			name:    "star spans path segments",
			include: []string{"releases/*"},
			branch:  "releases/2023/hotfix",
			want:    true,
		},
		{
			name:    "question mark matches one character",
			include: []string{"v?"},
			branch:  "v2",
			want:    true,
		},
		{
			name:    "question mark does not span",
			include: []string{"v?"},
			branch:  "v22",
			want:    false,
		},
		{
			name:    "empty include matches any",
			include: nil,
			branch:  "feature/anything",
			want:    true,
		},
		{
			name:    "exclude wins over include",
			include: []string{"*"},
			exclude: []string{"wip/*"},
			branch:  "wip/spike",
			want:    false,
		},
		{
			name:    "exclude leaves other branches alone",
			include: []string{"*"},
			exclude: []string{"wip/*"},
			branch:  "main",
			want:    true,
		},
		{
			name:    "literal dot is not a wildcard",
			include: []string{"release-1.0"},
			branch:  "release-1x0",
			want:    false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			trig := &types.TriggerSpec{
				Branches: types.BranchFilter{
					Include: tt.include,
					Exclude: tt.exclude,
				},
			}

			d := Matches(trig, PushEvent{Branch: tt.branch})
			if d.Matched != tt.want {
				t.Errorf("Matches(%q) = %v (%s), want %v", tt.branch, d.Matched, d.Reason, tt.want)
			}
		})
	}
}

func TestMatchesReportsRule(t *testing.T) {
	t.Parallel()

	trig := &types.TriggerSpec{
		Branches: types.BranchFilter{
			Include: []string{"main", "releases/*"},
			Exclude: []string{"releases/old/*"},
		},
	}

	d := Matches(trig, PushEvent{Branch: "releases/2024"})
	if !d.Matched || d.Rule != "releases/*" {
		t.Fatalf("expected match on releases/*, got %+v", d)
	}

	d = Matches(trig, PushEvent{Branch: "releases/old/1.0"})
	if d.Matched || d.Rule != "releases/old/*" {
		t.Fatalf("expected exclusion by releases/old/*, got %+v", d)
	}
}
