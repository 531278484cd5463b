package types

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Test parsing the bare layout used by checked-in release pipelines.
func TestParsePipelineFile_BareLayout(t *testing.T) {
	t.Parallel()

	yamlContent := `
name: openpatchminer-release
trigger:
  branches:
    include:
      - main
strategy:
  matrix:
    linux:
      image: ubuntu-22.04
      python.version: "3.7"
    mac:
      image: macos-13
      python.version: "3.7"
    windows:
      image: windows-2022
      python.version: "3.7"
  maxParallel: 3
steps:
  - script: pip install .
    displayName: Install package
  - script: python setup.py bdist_wheel sdist
    displayName: Build distributions
`

	pf, err := ParsePipelineFileFromBytes([]byte(yamlContent))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if len(pf.Pipelines) != 1 {
		t.Fatalf("expected 1 pipeline, got %d", len(pf.Pipelines))
	}

	spec := &pf.Pipelines[0]
	if spec.Name != "openpatchminer-release" {
		t.Errorf("unexpected pipeline name %q", spec.Name)
	}
	if spec.Trigger == nil || len(spec.Trigger.Branches.Include) != 1 || spec.Trigger.Branches.Include[0] != "main" {
		t.Errorf("unexpected trigger: %+v", spec.Trigger)
	}
	if spec.Strategy == nil {
		t.Fatal("expected strategy to be parsed")
	}
	legs := spec.Strategy.Matrix.Legs
	if len(legs) != 3 {
		t.Fatalf("expected 3 matrix legs, got %d", len(legs))
	}

	// Legs keep document order
	wantOrder := []string{"linux", "mac", "windows"}
	for i, want := range wantOrder {
		if legs[i].Name != want {
			t.Errorf("leg %d: expected %q, got %q", i, want, legs[i].Name)
		}
	}

	if errs := pf.Lint(); len(errs) != 0 {
		t.Errorf("expected clean lint, got %v", errs)
	}
}

// Test parsing the wrapped layouts for files bundling several pipelines.
func TestParsePipelineFile_WrappedLayouts(t *testing.T) {
	t.Parallel()

	yamlContent := `
pipeline:
  name: release
  steps:
    - script: python -m twine upload --skip-existing dist/*

pipelines:
  - name: nightly
    schedules:
      - cron: "0 2 * * *"
        displayName: Nightly build
    steps:
      - script: pip install .
  - name: ignored
    skip: true
    steps:
      - script: "true"
`

	pf, err := ParsePipelineFileFromBytes([]byte(yamlContent))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if len(pf.Pipelines) != 2 {
		t.Fatalf("expected 2 pipelines (skip honored), got %d", len(pf.Pipelines))
	}

	names := []string{pf.Pipelines[0].Name, pf.Pipelines[1].Name}
	if names[0] != "release" || names[1] != "nightly" {
		t.Errorf("unexpected pipeline names: %v", names)
	}

	if line, ok := pf.GetLineInfo("Pipeline", "nightly"); !ok || line == 0 {
		t.Errorf("expected line info for nightly, got %d, %v", line, ok)
	}
}

func TestParsePipelineFile_UnknownTopLevelKey(t *testing.T) {
	t.Parallel()

	yamlContent := `
name: release
stepz:
  - script: pip install .
`

	_, err := ParsePipelineFileFromBytes([]byte(yamlContent))
	if err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
	if !strings.Contains(err.Error(), "stepz") {
		t.Errorf("expected error to name the unknown key, got: %v", err)
	}
}

func TestPipelineFile_LintUnknownStepField(t *testing.T) {
	t.Parallel()

	yamlContent := `
name: release
jobs:
  - name: build
    steps:
      - script: pip install .
        displyName: typo
`

	pf, err := ParsePipelineFileFromBytes([]byte(yamlContent))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	errs := pf.Lint()
	if len(errs) == 0 {
		t.Fatal("expected lint errors for unknown step field")
	}

	found := false
	for _, e := range errs {
		if strings.Contains(e.Error(), "displyName") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error naming 'displyName', got %v", errs)
	}
}

func TestPipelineFile_LintJobCycle(t *testing.T) {
	t.Parallel()

	yamlContent := `
name: release
jobs:
  - name: build
    dependsOn: publish
    steps:
      - script: "true"
  - name: publish
    dependsOn: build
    steps:
      - script: "true"
`

	pf, err := ParsePipelineFileFromBytes([]byte(yamlContent))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	errs := pf.Lint()
	found := false
	for _, e := range errs {
		if strings.Contains(e.Error(), "cycle") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a cycle error, got %v", errs)
	}
}

func TestParsePipelineFile_FromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "release.yaml")
	content := `
name: release
steps:
  - script: pip install .
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	pf, err := ParsePipelineFile(path)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if pf.Path() != path {
		t.Errorf("expected source path %q, got %q", path, pf.Path())
	}
	if len(pf.Pipelines) != 1 {
		t.Fatalf("expected 1 pipeline, got %d", len(pf.Pipelines))
	}

	ok, err := IsPipelineFile(path)
	if err != nil || !ok {
		t.Errorf("expected IsPipelineFile to detect the file, got %v, %v", ok, err)
	}
}
