package types

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// PipelineFile represents a YAML file that defines one or more pipelines.
//
// Two layouts are accepted: a bare pipeline spec at the top level (the
// common single-pipeline case, like a checked-in release.yaml), or
// explicit 'pipeline' / 'pipelines' keys for files that bundle several.
type PipelineFile struct {
	Pipelines []PipelineSpec `yaml:"pipelines,omitempty"`
	// Internal tracking for line numbers (not serialized)
	lineInfo map[string]int `json:"-" yaml:"-"`
	// Collection of parsing errors (not serialized)
	parseErrors []error `json:"-" yaml:"-"`
	// Source path the file was parsed from, for error messages
	path string `json:"-" yaml:"-"`
}

// ParsePipelineFile reads and parses a pipeline file.
func ParsePipelineFile(filename string) (*PipelineFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	pf, err := ParsePipelineFileFromBytes(data)
	if err != nil {
		return nil, err
	}
	pf.path = filename
	return pf, nil
}

// ParsePipelineFileFromBytes parses pipeline YAML content from memory.
func ParsePipelineFileFromBytes(data []byte) (*PipelineFile, error) {
	// Initialize empty pipeline file and line info
	var pf PipelineFile
	pf.lineInfo = make(map[string]int)

	// Parse the YAML structure
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse YAML structure: %w", err)
	}

	root := documentRoot(&node)
	if root == nil {
		return &pf, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("pipeline file must be a YAML mapping at the top level")
	}

	// Validate top-level keys are known nodes
	if err := validateTopLevelKeys(root); err != nil {
		return nil, err
	}

	collectPipelines(root, &pf)

	return &pf, nil
}

// IsPipelineFile performs a lightweight detection to determine if a YAML
// file appears to define a pipeline. It does not validate structure; it
// only checks for presence of known keys.
func IsPipelineFile(filename string) (bool, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return false, err
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	keys := []string{"pipeline", "pipelines", "jobs", "steps", "trigger"}
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true, nil
		}
	}
	return false, nil
}

// documentRoot descends through document nodes to the content root.
func documentRoot(node *yaml.Node) *yaml.Node {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}
		return documentRoot(node.Content[0])
	}
	return node
}

// collectPipelines traverses the YAML AST and appends all pipelines,
// whether declared bare, under 'pipeline', or under 'pipelines'.
func collectPipelines(root *yaml.Node, pf *PipelineFile) {
	wrapped := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		val := root.Content[i+1]

		if key.Value == "pipeline" && val.Kind == yaml.MappingNode {
			wrapped = true
			pf.appendPipelineNode(val, "pipeline")
		}
		if key.Value == "pipelines" && val.Kind == yaml.SequenceNode {
			wrapped = true
			for _, item := range val.Content {
				if item.Kind == yaml.MappingNode {
					pf.appendPipelineNode(item, "pipelines entry")
				}
			}
		}
	}

	// Bare layout: the whole document is a single pipeline spec
	if !wrapped {
		pf.appendPipelineNode(root, "pipeline")
	}
}

// appendPipelineNode decodes one pipeline mapping node into a spec and
// records its source line.
func (pf *PipelineFile) appendPipelineNode(node *yaml.Node, context string) {
	var spec PipelineSpec
	b, err := yaml.Marshal(node)
	if err != nil {
		pf.AddParseError(fmt.Errorf("failed to marshal %s at line %d: %w", context, node.Line, err))
		return
	}
	if err := yaml.Unmarshal(b, &spec); err != nil {
		pf.AddParseError(fmt.Errorf("failed to unmarshal %s at line %d: %w", context, node.Line, err))
		return
	}
	spec.rawNode = node
	if spec.Skip {
		return
	}
	pf.Pipelines = append(pf.Pipelines, spec)
	pf.lineInfo[makeLineKey("Pipeline", extractName(node))] = node.Line
}

// validTopLevelKeys lists keys accepted at the top of a pipeline file.
// The bare layout exposes the pipeline spec fields directly.
var validTopLevelKeys = map[string]bool{
	"pipeline":  true,
	"pipelines": true,

	"name":        true,
	"description": true,
	"trigger":     true,
	"schedules":   true,
	"pool":        true,
	"strategy":    true,
	"variables":   true,
	"jobs":        true,
	"steps":       true,
	"artifacts":   true,
	"skip":        true,
}

// validateTopLevelKeys ensures only known top-level keys are present in the pipeline file
func validateTopLevelKeys(root *yaml.Node) error {
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if !validTopLevelKeys[key.Value] {
			return fmt.Errorf("unknown top-level key '%s' at line %d", key.Value, key.Line)
		}
	}
	return nil
}

// GetLineInfo returns the approximate line number for a spec by kind/name
func (pf *PipelineFile) GetLineInfo(kind, name string) (int, bool) {
	if pf == nil || pf.lineInfo == nil {
		return 0, false
	}
	line, ok := pf.lineInfo[makeLineKey(kind, name)]
	return line, ok
}

func makeLineKey(kind, name string) string {
	return kind + "/" + name
}

// extractName scans a YAML mapping node for its "name" scalar
func extractName(m *yaml.Node) string {
	if m == nil || m.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i]
		v := m.Content[i+1]
		if k.Value == "name" && v.Kind == yaml.ScalarNode {
			return v.Value
		}
	}
	return ""
}

// GetPipelineSpecs returns all pipeline specs defined in the file.
func (pf *PipelineFile) GetPipelineSpecs() []*PipelineSpec {
	var result []*PipelineSpec
	for i := range pf.Pipelines {
		result = append(result, &pf.Pipelines[i])
	}
	return result
}

// GetPipelines converts pipeline specs to concrete Pipeline objects.
func (pf *PipelineFile) GetPipelines() ([]*Pipeline, error) {
	specs := pf.GetPipelineSpecs()
	if len(specs) == 0 {
		return nil, nil
	}
	var result []*Pipeline
	for _, spec := range specs {
		pipeline, err := spec.ToPipeline()
		if err != nil {
			return nil, err
		}
		result = append(result, pipeline)
	}
	return result, nil
}

// Lint validates all pipelines in the file and returns a list of errors.
// It does not stop on first error; all validation errors are collected.
func (pf *PipelineFile) Lint() []error {
	var errs []error

	// Include parsing errors first
	if pf.HasParseErrors() {
		errs = append(errs, pf.GetParseErrors()...)
	}

	if len(pf.Pipelines) == 0 && !pf.HasParseErrors() {
		errs = append(errs, fmt.Errorf("no pipelines defined"))
	}

	seen := make(map[string]bool)
	for i := range pf.Pipelines {
		spec := &pf.Pipelines[i]
		if err := spec.Validate(); err != nil {
			if line, ok := pf.GetLineInfo("Pipeline", spec.GetName()); ok {
				errs = append(errs, fmt.Errorf("Pipeline %q at line %d: %w", spec.GetName(), line, err))
			} else {
				errs = append(errs, fmt.Errorf("Pipeline %q: %w", spec.GetName(), err))
			}
		}

		if spec.Name != "" {
			if seen[spec.Name] {
				errs = append(errs, fmt.Errorf("duplicate pipeline name %q", spec.Name))
			}
			seen[spec.Name] = true
		}

		// Dependency-aware validation within each pipeline
		if len(spec.Jobs) > 0 {
			adj := BuildJobAdjacency(spec.Jobs)
			for _, cycleErr := range DetectJobCycles(adj) {
				errs = append(errs, fmt.Errorf("Pipeline %q: %w", spec.GetName(), cycleErr))
			}
		}
	}

	return errs
}

// Validate runs Lint and returns a single error if any issues are found.
func (pf *PipelineFile) Validate() error {
	errs := pf.Lint()
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return fmt.Errorf("pipeline file validation failed:\n%s", strings.Join(parts, "\n"))
}

// Path returns the source path the file was parsed from, if any.
func (pf *PipelineFile) Path() string {
	return pf.path
}

// AddParseError adds a parsing error to the collection
func (pf *PipelineFile) AddParseError(err error) {
	if pf.parseErrors == nil {
		pf.parseErrors = make([]error, 0)
	}
	pf.parseErrors = append(pf.parseErrors, err)
}

// GetParseErrors returns all parsing errors collected during file parsing
func (pf *PipelineFile) GetParseErrors() []error {
	if pf.parseErrors == nil {
		return []error{}
	}
	return pf.parseErrors
}

// HasParseErrors returns true if any parsing errors were encountered
func (pf *PipelineFile) HasParseErrors() bool {
	return len(pf.parseErrors) > 0
}
