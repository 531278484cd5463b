package types

// Helpers for building and validating job dependency graphs within a pipeline

import (
	"fmt"
	"strings"
)

// BuildJobAdjacency constructs an adjacency list of job dependency edges.
// Dependencies on jobs not present in the slice are ignored; Validate
// reports those separately.
func BuildJobAdjacency(jobs []JobSpec) map[string][]string {
	present := make(map[string]bool, len(jobs))
	for i := range jobs {
		present[jobs[i].Name] = true
	}

	adj := make(map[string][]string, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if _, ok := adj[job.Name]; !ok {
			adj[job.Name] = nil
		}
		for _, dep := range job.DependsOn {
			if present[dep] {
				adj[job.Name] = append(adj[job.Name], dep)
			}
		}
	}
	return adj
}

// DetectJobCycles runs cycle detection on an adjacency list of job dependency edges.
// It returns one error per cycle detected with a human-readable path; returns empty slice if no cycles.
func DetectJobCycles(adj map[string][]string) []error {
	const (
		colorWhite = 0 // unvisited
		colorGray  = 1 // visiting
		colorBlack = 2 // visited
	)
	color := make(map[string]int)
	stack := make([]string, 0, len(adj))
	var cycleErrs []error

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = colorGray
		stack = append(stack, u)
		for _, v := range adj[u] {
			if color[v] == colorGray {
				// cycle found: extract stack from first occurrence of v
				start := 0
				for i := range stack {
					if stack[i] == v {
						start = i
						break
					}
				}
				path := append(stack[start:], v)
				cycleErrs = append(cycleErrs, fmt.Errorf("job dependency cycle detected: %s", strings.Join(path, " -> ")))
				return true
			}
			if color[v] == colorWhite {
				if dfs(v) {
					return true
				}
			}
		}
		color[u] = colorBlack
		stack = stack[:len(stack)-1]
		return false
	}

	for u := range adj {
		if color[u] == colorWhite {
			dfs(u) // continue scanning to report additional cycles
		}
	}
	return cycleErrs
}
