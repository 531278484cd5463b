// Package trigger evaluates push rules and cron schedules for pipelines.
package trigger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rzbill/slipway/pkg/types"
)

// PushEvent describes a branch push being tested against a trigger.
type PushEvent struct {
	// Branch name, with or without a refs/heads/ prefix
	Branch string

	// Commit SHA of the push, when known
	Commit string
}

// Decision is the outcome of matching a push against a trigger.
type Decision struct {
	// Matched reports whether the push starts a run
	Matched bool

	// Rule is the include/exclude glob that decided the outcome
	Rule string

	// Reason is a human-readable explanation for plan output
	Reason string
}

// Matches tests a push event against a pipeline trigger.
//
// A nil trigger matches every branch. Exclude rules win over include
// rules. An empty include list means "any branch".
func Matches(t *types.TriggerSpec, ev PushEvent) Decision {
	branch := normalizeBranch(ev.Branch)

	if t == nil {
		return Decision{Matched: true, Reason: "no trigger configured, any branch starts a run"}
	}

	if t.Disabled {
		return Decision{Matched: false, Reason: "trigger is set to none"}
	}

	for _, pattern := range t.Branches.Exclude {
		if branchGlobMatch(pattern, branch) {
			return Decision{
				Matched: false,
				Rule:    pattern,
				Reason:  fmt.Sprintf("branch %q excluded by %q", branch, pattern),
			}
		}
	}

	if len(t.Branches.Include) == 0 {
		return Decision{Matched: true, Reason: "no include rules, any branch starts a run"}
	}

	for _, pattern := range t.Branches.Include {
		if branchGlobMatch(pattern, branch) {
			return Decision{
				Matched: true,
				Rule:    pattern,
				Reason:  fmt.Sprintf("branch %q matched include %q", branch, pattern),
			}
		}
	}

	return Decision{
		Matched: false,
		Reason:  fmt.Sprintf("branch %q matched no include rule", branch),
	}
}

// normalizeBranch strips the refs/heads/ prefix git tooling sometimes adds.
func normalizeBranch(branch string) string {
	return strings.TrimPrefix(strings.TrimSpace(branch), "refs/heads/")
}

// branchGlobMatch matches a branch against a glob where * spans any
// characters (including /) and ? matches a single character.
func branchGlobMatch(pattern, branch string) bool {
	pattern = normalizeBranch(pattern)

	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(branch)
}
