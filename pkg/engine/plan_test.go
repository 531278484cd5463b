package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/slipway/pkg/trigger"
	"github.com/rzbill/slipway/pkg/types"
)

func TestPlanOrdersJobsByDependency(t *testing.T) {
	_, _, _, eng := setupTestEngine(t)

	// publish is declared first but depends on build
	pipeline := parsePipeline(t, `
name: openpatchminer
trigger:
  - main
pool:
  vmImage: ubuntu-latest
jobs:
  - name: publish
    dependsOn: build
    steps:
      - script: twine upload --skip-existing dist/*
  - name: build
    steps:
      - script: python setup.py bdist_wheel sdist
`)

	plan, err := eng.Plan(pipeline, pushMain)
	require.NoError(t, err)

	require.Len(t, plan.Jobs, 2)
	assert.Equal(t, "build", plan.Jobs[0].Name)
	assert.Equal(t, "publish", plan.Jobs[1].Name)
	assert.Equal(t, []string{"build"}, plan.Jobs[1].DependsOn)
	assert.True(t, plan.Decision.Matched)
	assert.Equal(t, 2, plan.Legs())
}

func TestPlanKeepsDocumentOrderForIndependentJobs(t *testing.T) {
	_, _, _, eng := setupTestEngine(t)

	pipeline := parsePipeline(t, `
name: openpatchminer
trigger:
  - main
pool:
  vmImage: ubuntu-latest
jobs:
  - name: lint
    steps:
      - script: flake8 .
  - name: build
    steps:
      - script: python setup.py bdist_wheel
  - name: docs
    steps:
      - script: sphinx-build docs docs/_build
  - name: publish
    dependsOn: build
    steps:
      - script: twine upload dist/*
`)

	plan, err := eng.Plan(pipeline, pushMain)
	require.NoError(t, err)

	names := make([]string, 0, len(plan.Jobs))
	for _, job := range plan.Jobs {
		names = append(names, job.Name)
	}
	assert.Equal(t, []string{"lint", "build", "docs", "publish"}, names,
		"Unconstrained jobs keep their document order")
}

func TestPlanToleratesRepeatedDependencies(t *testing.T) {
	_, _, _, eng := setupTestEngine(t)

	pipeline := &types.Pipeline{
		Name: "openpatchminer",
		Jobs: []types.JobSpec{
			{Name: "build", Pool: &types.PoolSpec{VMImage: "ubuntu-latest"},
				Steps: []types.StepSpec{{Script: "python setup.py sdist"}}},
			{Name: "publish", DependsOn: types.StringList{"build", "build"},
				Pool:  &types.PoolSpec{VMImage: "ubuntu-latest"},
				Steps: []types.StepSpec{{Script: "twine upload dist/*"}}},
		},
	}

	plan, err := eng.Plan(pipeline, pushMain)
	require.NoError(t, err, "A repeated dependsOn entry is harmless")
	require.Len(t, plan.Jobs, 2)
	assert.Equal(t, "publish", plan.Jobs[1].Name)
}

func TestPlanExpandsMatrixLegs(t *testing.T) {
	_, _, _, eng := setupTestEngine(t)

	pipeline := parsePipeline(t, `
name: openpatchminer
trigger:
  - main
jobs:
  - name: build
    strategy:
      maxParallel: 2
      matrix:
        linux:
          imageName: ubuntu-latest
          python.version: "3.7"
        mac:
          imageName: macOS-13
          python.version: "3.7"
        windows:
          imageName: windows-2022
          python.version: "3.7"
    steps:
      - script: python setup.py bdist_wheel
`)

	plan, err := eng.Plan(pipeline, pushMain)
	require.NoError(t, err)

	require.Len(t, plan.Jobs, 1)
	job := plan.Jobs[0]
	require.Len(t, job.Legs, 3)
	assert.Equal(t, 3, plan.Legs())
	assert.Equal(t, 2, job.MaxParallel)

	assert.Equal(t, "linux", job.Legs[0].Name)
	assert.Equal(t, "ubuntu-latest", job.Legs[0].Image)
	assert.Equal(t, "mac", job.Legs[1].Name)
	assert.Equal(t, "macOS-13", job.Legs[1].Image)
	assert.Equal(t, "windows", job.Legs[2].Name)
	assert.Equal(t, "windows-2022", job.Legs[2].Image)
	assert.Equal(t, "3.7", job.Legs[0].Vars["python.version"],
		"Matrix values stay literal strings")
}

func TestPlanInheritsPipelinePool(t *testing.T) {
	_, _, _, eng := setupTestEngine(t)

	pipeline := parsePipeline(t, `
name: openpatchminer
trigger:
  - main
pool:
  vmImage: ubuntu-latest
jobs:
  - name: build
    steps:
      - script: python setup.py bdist_wheel
  - name: smoke
    container: python:3.7-slim
    steps:
      - script: pip install dist/*.whl
  - name: macbuild
    pool:
      vmImage: macOS-13
    steps:
      - script: python setup.py bdist_wheel
`)

	plan, err := eng.Plan(pipeline, pushMain)
	require.NoError(t, err)
	require.Len(t, plan.Jobs, 3)

	assert.Equal(t, "ubuntu-latest", plan.Jobs[0].Legs[0].Image,
		"A job without its own pool inherits the pipeline pool")
	assert.Equal(t, "python:3.7-slim", plan.Jobs[1].Legs[0].Image,
		"A container job keeps its image")
	assert.Equal(t, "macOS-13", plan.Jobs[2].Legs[0].Image,
		"A job pool overrides the pipeline pool")
}

func TestPlanRejectsDependencyCycle(t *testing.T) {
	_, _, _, eng := setupTestEngine(t)

	pipeline := &types.Pipeline{
		Name: "openpatchminer",
		Jobs: []types.JobSpec{
			{Name: "build", DependsOn: types.StringList{"publish"},
				Pool:  &types.PoolSpec{VMImage: "ubuntu-latest"},
				Steps: []types.StepSpec{{Script: "python setup.py sdist"}}},
			{Name: "publish", DependsOn: types.StringList{"build"},
				Pool:  &types.PoolSpec{VMImage: "ubuntu-latest"},
				Steps: []types.StepSpec{{Script: "twine upload dist/*"}}},
		},
	}

	_, err := eng.Plan(pipeline, pushMain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestPlanRejectsUnknownDependency(t *testing.T) {
	_, _, _, eng := setupTestEngine(t)

	pipeline := &types.Pipeline{
		Name: "openpatchminer",
		Jobs: []types.JobSpec{
			{Name: "publish", DependsOn: types.StringList{"compile"},
				Pool:  &types.PoolSpec{VMImage: "ubuntu-latest"},
				Steps: []types.StepSpec{{Script: "twine upload dist/*"}}},
		},
	}

	_, err := eng.Plan(pipeline, pushMain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `depends on unknown job "compile"`)
}

func TestPlanRejectsDuplicateJobNames(t *testing.T) {
	_, _, _, eng := setupTestEngine(t)

	pipeline := &types.Pipeline{
		Name: "openpatchminer",
		Jobs: []types.JobSpec{
			{Name: "build", Pool: &types.PoolSpec{VMImage: "ubuntu-latest"},
				Steps: []types.StepSpec{{Script: "python setup.py sdist"}}},
			{Name: "build", Pool: &types.PoolSpec{VMImage: "ubuntu-latest"},
				Steps: []types.StepSpec{{Script: "python setup.py bdist_wheel"}}},
		},
	}

	_, err := eng.Plan(pipeline, pushMain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate job name "build"`)
}

func TestPlanRecordsTriggerDecisionWithoutRunning(t *testing.T) {
	_, fake, _, eng := setupTestEngine(t)

	pipeline := parsePipeline(t, `
name: openpatchminer
trigger:
  - main
pool:
  vmImage: ubuntu-latest
steps:
  - script: pip install .
`)

	ev := trigger.PushEvent{Branch: "refs/heads/feature/tiling", Commit: testCommit}
	plan, err := eng.Plan(pipeline, ev)
	require.NoError(t, err)

	assert.False(t, plan.Decision.Matched, "The plan reports the mismatch")
	require.Len(t, plan.Jobs, 1, "Jobs are still resolved for a dry run")
	assert.Equal(t, "default", plan.Jobs[0].Name)
	assert.Empty(t, fake.Prepared, "Planning must not touch the executor")
}
