// Package vars implements the layered variable table behind $(name)
// macro expansion in pipeline definitions.
package vars

import (
	"strings"

	"github.com/spf13/cast"
)

// Built-in variable names set by the engine for every leg.
const (
	BuiltinRunID        = "run.id"
	BuiltinRunNumber    = "run.number"
	BuiltinRunBranch    = "run.branch"
	BuiltinRunCommit    = "run.commit"
	BuiltinPipelineName = "pipeline.name"
	BuiltinJobName      = "job.name"
	BuiltinLegName      = "leg.name"
	BuiltinLegImage     = "leg.image"
	BuiltinWorkspaceDir = "workspace.dir"
	BuiltinStagingDir   = "staging.dir"
)

// EnvName maps a variable name onto its environment form: uppercased,
// with dots and dashes turned into underscores. python.interpreter
// becomes PYTHON_INTERPRETER.
func EnvName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '.', '-':
			return '_'
		}
		return r
	}, name)
	return strings.ToUpper(mapped)
}

// entry keeps the name as first written so listings show the author's casing.
type entry struct {
	name  string
	value string
}

// Table is an ordered, case-insensitive variable map. Later Set calls
// override earlier ones, which is how scope layering works: built-ins,
// then pipeline variables, then job variables, then matrix leg variables,
// then values exported by tasks at runtime.
type Table struct {
	entries map[string]entry
	order   []string
}

// New creates an empty variable table.
func New() *Table {
	return &Table{
		entries: make(map[string]entry),
	}
}

// Set stores a variable, overriding any earlier value for the same name.
// Lookup is case-insensitive.
func (t *Table) Set(name, value string) {
	key := strings.ToLower(name)
	if _, ok := t.entries[key]; !ok {
		t.order = append(t.order, key)
	}
	t.entries[key] = entry{name: name, value: value}
}

// SetValue stores a non-string scalar, normalized through cast.
func (t *Table) SetValue(name string, value interface{}) {
	t.Set(name, cast.ToString(value))
}

// Merge layers a whole map onto the table.
func (t *Table) Merge(values map[string]string) {
	for name, value := range values {
		t.Set(name, value)
	}
}

// Get returns the value for a name, case-insensitively.
func (t *Table) Get(name string) (string, bool) {
	e, ok := t.entries[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return e.value, true
}

// Names returns variable names in insertion order, using the casing they
// were first written with.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.order))
	for _, key := range t.order {
		names = append(names, t.entries[key].name)
	}
	return names
}

// Snapshot returns a copy of the table as a plain map.
func (t *Table) Snapshot() map[string]string {
	m := make(map[string]string, len(t.entries))
	for _, key := range t.order {
		e := t.entries[key]
		m[e.name] = e.value
	}
	return m
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	c := New()
	for _, key := range t.order {
		e := t.entries[key]
		c.Set(e.name, e.value)
	}
	return c
}

// Expand replaces $(name) macros in s with values from the table.
// Unknown macros are left verbatim so the output shows exactly what did
// not resolve. $$( escapes a literal $(.
func (t *Table) Expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}

		// $$( escapes a literal $(
		if strings.HasPrefix(s[i:], "$$(") {
			b.WriteString("$(")
			i += 3
			continue
		}

		if strings.HasPrefix(s[i:], "$(") {
			if end := strings.IndexByte(s[i+2:], ')'); end >= 0 {
				name := s[i+2 : i+2+end]
				if value, ok := t.Get(name); ok {
					b.WriteString(value)
					i += 2 + end + 1
					continue
				}
			}
		}

		b.WriteByte(c)
		i++
	}

	return b.String()
}

// ExpandMap expands every value in a map, returning a new map.
func (t *Table) ExpandMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = t.Expand(v)
	}
	return out
}

// ExpandSlice expands every element of a slice, returning a new slice.
func (t *Table) ExpandSlice(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = t.Expand(item)
	}
	return out
}
