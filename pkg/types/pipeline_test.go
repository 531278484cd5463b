package types

import (
	"testing"
)

func TestPipelineSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    *PipelineSpec
		wantErr bool
	}{
		{
			name: "valid pipeline with steps",
			spec: &PipelineSpec{
				Name: "release",
				Steps: []StepSpec{
					{Script: "pip install ."},
				},
			},
			wantErr: false,
		},
		{
			name: "valid pipeline with jobs",
			spec: &PipelineSpec{
				Name: "release",
				Jobs: []JobSpec{
					{
						Name: "build",
						Steps: []StepSpec{
							{Script: "python setup.py bdist_wheel sdist"},
						},
					},
				},
			},
			wantErr: false,
		},
		{
			name: "missing name",
			spec: &PipelineSpec{
				Steps: []StepSpec{
					{Script: "pip install ."},
				},
			},
			wantErr: true,
		},
		{
			name:    "no jobs or steps",
			spec:    &PipelineSpec{Name: "release"},
			wantErr: true,
		},
		{
			name: "both jobs and steps",
			spec: &PipelineSpec{
				Name:  "release",
				Steps: []StepSpec{{Script: "true"}},
				Jobs: []JobSpec{
					{Name: "build", Steps: []StepSpec{{Script: "true"}}},
				},
			},
			wantErr: true,
		},
		{
			name: "duplicate job names",
			spec: &PipelineSpec{
				Name: "release",
				Jobs: []JobSpec{
					{Name: "build", Steps: []StepSpec{{Script: "true"}}},
					{Name: "build", Steps: []StepSpec{{Script: "false"}}},
				},
			},
			wantErr: true,
		},
		{
			name: "dependency on unknown job",
			spec: &PipelineSpec{
				Name: "release",
				Jobs: []JobSpec{
					{Name: "publish", DependsOn: StringList{"build"}, Steps: []StepSpec{{Script: "true"}}},
				},
			},
			wantErr: true,
		},
		{
			name: "schedule without cron",
			spec: &PipelineSpec{
				Name:      "release",
				Schedules: []ScheduleSpec{{DisplayName: "nightly"}},
				Steps:     []StepSpec{{Script: "true"}},
			},
			wantErr: true,
		},
		{
			name: "valid schedule",
			spec: &PipelineSpec{
				Name:      "release",
				Schedules: []ScheduleSpec{{Cron: "0 0 * * *", DisplayName: "nightly"}},
				Steps:     []StepSpec{{Script: "true"}},
			},
			wantErr: false,
		},
		{
			name: "schedule with malformed cron",
			spec: &PipelineSpec{
				Name:      "release",
				Schedules: []ScheduleSpec{{Cron: "0 0 * *", DisplayName: "nightly"}},
				Steps:     []StepSpec{{Script: "true"}},
			},
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

func TestStepSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    *StepSpec
		wantErr bool
	}{
		{
			name:    "script step",
			spec:    &StepSpec{Script: "pip install ."},
			wantErr: false,
		},
		{
			name:    "task step",
			spec:    &StepSpec{Task: "use-python", Inputs: map[string]string{"version": "3.7"}},
			wantErr: false,
		},
		{
			name:    "neither script nor task",
			spec:    &StepSpec{Name: "empty"},
			wantErr: true,
		},
		{
			name:    "both script and task",
			spec:    &StepSpec{Script: "true", Task: "publish"},
			wantErr: true,
		},
		{
			name:    "valid condition",
			spec:    &StepSpec{Script: "true", Condition: ConditionAlways},
			wantErr: false,
		},
		{
			name:    "unknown condition",
			spec:    &StepSpec{Script: "true", Condition: "whenever"},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			spec:    &StepSpec{Script: "true", TimeoutMinutes: -5},
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

func TestStepSpec_IsEnabled(t *testing.T) {
	enabled := true
	disabled := false

	if !(&StepSpec{Script: "true"}).IsEnabled() {
		t.Error("step without enabled flag should be enabled")
	}
	if !(&StepSpec{Script: "true", Enabled: &enabled}).IsEnabled() {
		t.Error("step with enabled: true should be enabled")
	}
	if (&StepSpec{Script: "true", Enabled: &disabled}).IsEnabled() {
		t.Error("step with enabled: false should be disabled")
	}
}

func TestPipelineSpec_ToPipeline(t *testing.T) {
	spec := &PipelineSpec{
		Name: "release",
		Steps: []StepSpec{
			{Script: "pip install ."},
			{Script: "python setup.py bdist_wheel sdist"},
		},
		Strategy: &StrategySpec{
			Matrix: MatrixSpec{Legs: []MatrixLeg{
				{Name: "linux", Variables: map[string]string{"python.version": "3.7"}},
			}},
		},
	}

	pipeline, err := spec.ToPipeline()
	if err != nil {
		t.Fatalf("ToPipeline() unexpected error: %v", err)
	}

	if pipeline.ID == "" {
		t.Error("expected pipeline ID to be generated")
	}

	// Implicit step form normalizes to a single job carrying the strategy
	if len(pipeline.Jobs) != 1 {
		t.Fatalf("expected 1 normalized job, got %d", len(pipeline.Jobs))
	}
	if pipeline.Jobs[0].Name != "default" {
		t.Errorf("expected implicit job to be named 'default', got %q", pipeline.Jobs[0].Name)
	}
	if pipeline.Jobs[0].Strategy == nil || len(pipeline.Jobs[0].Strategy.Matrix.Legs) != 1 {
		t.Error("expected strategy to be carried onto the implicit job")
	}

	if len(pipeline.Artifacts) != 1 || pipeline.Artifacts[0] != "dist/*" {
		t.Errorf("expected default artifact globs, got %v", pipeline.Artifacts)
	}
}

func TestPipelineSpec_ToPipelineJobArtifactsSuppressDefault(t *testing.T) {
	spec := &PipelineSpec{
		Name: "release",
		Jobs: []JobSpec{
			{
				Name:      "build",
				Steps:     []StepSpec{{Script: "python setup.py bdist_wheel"}},
				Artifacts: []string{"build/*.whl"},
			},
		},
	}

	pipeline, err := spec.ToPipeline()
	if err != nil {
		t.Fatalf("ToPipeline() unexpected error: %v", err)
	}

	if len(pipeline.Artifacts) != 0 {
		t.Errorf("job-level globs should suppress the dist/* default, got %v", pipeline.Artifacts)
	}
	if got := pipeline.Jobs[0].Artifacts; len(got) != 1 || got[0] != "build/*.whl" {
		t.Errorf("expected job artifacts to survive conversion, got %v", got)
	}
}

func TestRun_CreateLegRun(t *testing.T) {
	run := NewRun("release", 7, RunReasonManual, "main", "abc123")

	if run.Status != RunStatusPending {
		t.Errorf("expected new run to be pending, got %s", run.Status)
	}
	if run.Number != 7 {
		t.Errorf("expected run number 7, got %d", run.Number)
	}

	leg := run.CreateLegRun("build", "linux", map[string]string{"python.version": "3.7"})
	if leg.RunID != run.ID {
		t.Error("expected leg to reference its run")
	}
	if leg.Name != "build/linux" {
		t.Errorf("expected composite leg name, got %q", leg.Name)
	}

	bare := run.CreateLegRun("build", "", nil)
	if bare.Name != "build" {
		t.Errorf("expected bare leg name, got %q", bare.Name)
	}
}

func TestDetectJobCycles(t *testing.T) {
	jobs := []JobSpec{
		{Name: "a", DependsOn: StringList{"b"}, Steps: []StepSpec{{Script: "true"}}},
		{Name: "b", DependsOn: StringList{"a"}, Steps: []StepSpec{{Script: "true"}}},
	}

	errs := DetectJobCycles(BuildJobAdjacency(jobs))
	if len(errs) == 0 {
		t.Fatal("expected a cycle error")
	}

	acyclic := []JobSpec{
		{Name: "build", Steps: []StepSpec{{Script: "true"}}},
		{Name: "publish", DependsOn: StringList{"build"}, Steps: []StepSpec{{Script: "true"}}},
	}
	if errs := DetectJobCycles(BuildJobAdjacency(acyclic)); len(errs) != 0 {
		t.Fatalf("expected no cycle errors, got %v", errs)
	}
}
