package types

import (
	"testing"

	yaml "gopkg.in/yaml.v3"
)

func TestMatrixSpec_UnmarshalKeepsScalarText(t *testing.T) {
	yamlContent := `
matrix:
  linux:
    python.version: 3.10
    count: 3
    fast: true
    label: plain
`

	var s StrategySpec
	if err := yaml.Unmarshal([]byte(yamlContent), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(s.Matrix.Legs) != 1 {
		t.Fatalf("expected 1 leg, got %d", len(s.Matrix.Legs))
	}

	vars := s.Matrix.Legs[0].Variables

	// 3.10 must not collapse to the float 3.1
	if vars["python.version"] != "3.10" {
		t.Errorf("expected python.version to stay '3.10', got %q", vars["python.version"])
	}
	if vars["count"] != "3" {
		t.Errorf("expected count '3', got %q", vars["count"])
	}
	if vars["fast"] != "true" {
		t.Errorf("expected fast 'true', got %q", vars["fast"])
	}
	if vars["label"] != "plain" {
		t.Errorf("expected label 'plain', got %q", vars["label"])
	}
}

func TestMatrixSpec_RoundTrip(t *testing.T) {
	spec := StrategySpec{
		Matrix: MatrixSpec{Legs: []MatrixLeg{
			{Name: "linux", Variables: map[string]string{"python.version": "3.7"}},
			{Name: "windows", Variables: map[string]string{"python.version": "3.7"}},
		}},
		MaxParallel: 2,
	}

	data, err := yaml.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded StrategySpec
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(decoded.Matrix.Legs) != 2 {
		t.Fatalf("expected 2 legs after round trip, got %d", len(decoded.Matrix.Legs))
	}
	if decoded.Matrix.Legs[0].Name != "linux" || decoded.Matrix.Legs[1].Name != "windows" {
		t.Errorf("leg order not preserved: %+v", decoded.Matrix.Legs)
	}
	if decoded.MaxParallel != 2 {
		t.Errorf("expected maxParallel 2, got %d", decoded.MaxParallel)
	}
}

func TestStrategySpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    *StrategySpec
		wantErr bool
	}{
		{
			name: "valid",
			spec: &StrategySpec{
				Matrix: MatrixSpec{Legs: []MatrixLeg{
					{Name: "linux"},
					{Name: "mac"},
				}},
			},
			wantErr: false,
		},
		{
			name: "duplicate leg",
			spec: &StrategySpec{
				Matrix: MatrixSpec{Legs: []MatrixLeg{
					{Name: "linux"},
					{Name: "linux"},
				}},
			},
			wantErr: true,
		},
		{
			name:    "negative maxParallel",
			spec:    &StrategySpec{MaxParallel: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTriggerSpec_UnmarshalForms(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		wantDisabled bool
		wantInclude  []string
		wantExclude  []string
	}{
		{
			name:         "none",
			yamlContent:  `trigger: none`,
			wantDisabled: true,
		},
		{
			name:        "sequence shorthand",
			yamlContent: "trigger:\n  - main\n  - releases/*",
			wantInclude: []string{"main", "releases/*"},
		},
		{
			name: "full mapping",
			yamlContent: `
trigger:
  branches:
    include:
      - main
    exclude:
      - wip/*
`,
			wantInclude: []string{"main"},
			wantExclude: []string{"wip/*"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc struct {
				Trigger *TriggerSpec `yaml:"trigger"`
			}
			if err := yaml.Unmarshal([]byte(tt.yamlContent), &doc); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.Trigger == nil {
				t.Fatal("expected trigger to be parsed")
			}
			if doc.Trigger.Disabled != tt.wantDisabled {
				t.Errorf("disabled = %v, want %v", doc.Trigger.Disabled, tt.wantDisabled)
			}
			if len(doc.Trigger.Branches.Include) != len(tt.wantInclude) {
				t.Fatalf("include = %v, want %v", doc.Trigger.Branches.Include, tt.wantInclude)
			}
			for i := range tt.wantInclude {
				if doc.Trigger.Branches.Include[i] != tt.wantInclude[i] {
					t.Errorf("include[%d] = %q, want %q", i, doc.Trigger.Branches.Include[i], tt.wantInclude[i])
				}
			}
			for i := range tt.wantExclude {
				if doc.Trigger.Branches.Exclude[i] != tt.wantExclude[i] {
					t.Errorf("exclude[%d] = %q, want %q", i, doc.Trigger.Branches.Exclude[i], tt.wantExclude[i])
				}
			}
		})
	}
}

func TestStringList_UnmarshalForms(t *testing.T) {
	var scalar struct {
		DependsOn StringList `yaml:"dependsOn"`
	}
	if err := yaml.Unmarshal([]byte(`dependsOn: build`), &scalar); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scalar.DependsOn) != 1 || scalar.DependsOn[0] != "build" {
		t.Errorf("scalar form: got %v", scalar.DependsOn)
	}

	var seq struct {
		DependsOn StringList `yaml:"dependsOn"`
	}
	if err := yaml.Unmarshal([]byte("dependsOn:\n  - build\n  - test"), &seq); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seq.DependsOn) != 2 {
		t.Errorf("sequence form: got %v", seq.DependsOn)
	}
}
