package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/slipway/pkg/executor"
	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/matrix"
	"github.com/rzbill/slipway/pkg/pypi"
	"github.com/rzbill/slipway/pkg/tasks"
	"github.com/rzbill/slipway/pkg/trigger"
	"github.com/rzbill/slipway/pkg/types"
	"github.com/rzbill/slipway/pkg/vars"
)

// mountPoints is implemented by executors that present the workspace
// and staging dirs at fixed paths inside the execution environment.
type mountPoints interface {
	MountPoints() (workspace, staging string)
}

// Run executes a pipeline for a push event and records the outcome.
//
// The returned error covers run setup only. Step and leg failures land
// in the run record, not the error: inspect RunResult for those.
func (e *Engine) Run(ctx context.Context, pipeline *types.Pipeline, ev trigger.PushEvent, opts RunOptions) (*RunResult, error) {
	decision := trigger.Matches(pipeline.Trigger, ev)
	result := &RunResult{Decision: decision}

	if !decision.Matched && !opts.Force {
		e.logger.Info("Run not triggered",
			log.Pipeline(pipeline.Name),
			log.Str("branch", ev.Branch),
			log.Str("reason", decision.Reason))
		e.console.Notice("not running: %s", decision.Reason)
		return result, nil
	}

	reason := opts.Reason
	if reason == "" {
		reason = types.RunReasonPush
	}

	number, err := e.repo.NextNumber(pipeline.Name)
	if err != nil {
		return nil, fmt.Errorf("allocating run number: %w", err)
	}

	branch := strings.TrimPrefix(ev.Branch, "refs/heads/")
	run := types.NewRun(pipeline.Name, number, reason, branch, ev.Commit)
	if err := e.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	e.snapshotRun(run)
	result.Run = run
	result.Triggered = true
	e.recordEvent(ctx, run, types.EventRunQueued, "", fmt.Sprintf("run #%d queued (%s)", run.Number, reason))

	ordered, err := orderJobs(pipeline)
	if err != nil {
		e.finishRun(ctx, run, types.RunStatusFailed, err.Error())
		return result, err
	}

	if opts.Job != "" && jobByName(ordered, opts.Job) == nil {
		err := fmt.Errorf("job %q not found in pipeline %s", opts.Job, pipeline.Name)
		e.finishRun(ctx, run, types.RunStatusFailed, err.Error())
		return result, err
	}

	workspace := opts.Workspace
	if workspace == "" {
		if workspace, err = os.Getwd(); err != nil {
			e.finishRun(ctx, run, types.RunStatusFailed, err.Error())
			return result, err
		}
	}
	if workspace, err = filepath.Abs(workspace); err != nil {
		e.finishRun(ctx, run, types.RunStatusFailed, err.Error())
		return result, err
	}

	now := time.Now()
	run.Status = types.RunStatusRunning
	run.StartTime = &now
	e.persistRun(ctx, run)
	e.recordEvent(ctx, run, types.EventRunStarted, "", "")
	e.console.RunStarted(run, pipeline)
	e.logger.Info("Run started",
		log.Pipeline(pipeline.Name),
		log.RunID(run.ID),
		log.Int64("number", run.Number),
		log.Str("branch", branch),
		log.Str("executor", e.executor.Name()))

	outcomes := make(map[string]types.RunStatus, len(ordered))
	var legs []*types.LegRun

	for _, job := range ordered {
		switch {
		case ctx.Err() != nil:
			outcomes[job.Name] = types.RunStatusCanceled
			legs = append(legs, e.skipJob(ctx, run, pipeline, job, opts, types.RunStatusCanceled, "run canceled")...)

		case opts.Job != "" && job.Name != opts.Job:
			// Filtered-out jobs gate as succeeded so the selected job runs.
			outcomes[job.Name] = types.RunStatusSucceeded

		default:
			if dep, blocked := blockedBy(job, outcomes); blocked {
				outcomes[job.Name] = types.RunStatusSkipped
				legs = append(legs, e.skipJob(ctx, run, pipeline, job, opts, types.RunStatusSkipped,
					fmt.Sprintf("dependency %q did not succeed", dep))...)
				continue
			}

			status, jobLegs := e.runJob(ctx, run, pipeline, job, workspace, opts)
			outcomes[job.Name] = status
			legs = append(legs, jobLegs...)
		}
	}

	var failed, ran int
	for _, leg := range legs {
		switch leg.Status {
		case types.RunStatusFailed:
			failed++
		case types.RunStatusSucceeded:
			ran++
		}
	}

	status := types.RunStatusSucceeded
	note := ""
	switch {
	case ctx.Err() != nil:
		status = types.RunStatusCanceled
		note = "run canceled"
	case failed > 0:
		status = types.RunStatusFailed
		note = fmt.Sprintf("%d of %d legs failed", failed, len(legs))
	case len(legs) == 0:
		note = "no legs matched the run filters"
	case ran == 0:
		note = "all legs were skipped"
	}

	e.finishRun(ctx, run, status, note)
	e.console.RunFinished(run, legs)
	e.logger.Info("Run finished",
		log.Pipeline(pipeline.Name),
		log.RunID(run.ID),
		log.Int64("number", run.Number),
		log.Str("status", string(status)),
		log.Duration("duration", run.Duration()))

	result.Legs = legs
	return result, nil
}

// runJob expands a job into legs and runs them under the job's
// concurrency bound. Leg failures are collected in the records, never
// propagated through the group, so sibling legs always finish.
func (e *Engine) runJob(ctx context.Context, run *types.Run, pipeline *types.Pipeline, job *types.JobSpec, workspace string, opts RunOptions) (types.RunStatus, []*types.LegRun) {
	legs, err := legsFor(pipeline, job)
	if err != nil {
		e.logger.Error("Matrix expansion failed",
			log.Pipeline(pipeline.Name),
			log.Str("job", job.Name),
			log.Err(err))
		e.recordEvent(ctx, run, types.EventLegFinished, job.Name, err.Error())
		return types.RunStatusFailed, nil
	}

	legs = filterLegs(legs, opts.Leg)
	if len(legs) == 0 {
		return types.RunStatusSucceeded, nil
	}

	records := make([]*types.LegRun, len(legs))
	for i, leg := range legs {
		records[i] = newLegRecord(run, job, leg)
		e.saveLeg(ctx, run, records[i])
	}

	bound := matrix.MaxParallel(job, len(legs))
	if opts.MaxParallel > 0 && opts.MaxParallel < bound {
		bound = opts.MaxParallel
	}

	var g errgroup.Group
	g.SetLimit(bound)
	for i := range legs {
		leg, rec := legs[i], records[i]
		g.Go(func() error {
			e.runLeg(ctx, run, pipeline, job, leg, rec, workspace)
			return nil
		})
	}
	_ = g.Wait()

	status := types.RunStatusSucceeded
	for _, rec := range records {
		switch rec.Status {
		case types.RunStatusFailed:
			status = types.RunStatusFailed
		case types.RunStatusCanceled:
			if status != types.RunStatusFailed {
				status = types.RunStatusCanceled
			}
		}
	}
	return status, records
}

// runLeg drives one leg: prepare, steps in order, artifact staging,
// cleanup. All outcomes land in rec.
func (e *Engine) runLeg(ctx context.Context, run *types.Run, pipeline *types.Pipeline, job *types.JobSpec, leg matrix.Leg, rec *types.LegRun, workspace string) {
	logger := e.logger.With(log.Pipeline(pipeline.Name), log.RunID(run.ID), log.Leg(rec.Name))

	if !e.executor.CanRun(leg.Image) {
		rec.Status = types.RunStatusSkipped
		rec.StatusMessage = fmt.Sprintf("executor %s cannot run image %q on this machine", e.executor.Name(), leg.Image)
		e.saveLeg(ctx, run, rec)
		e.recordEvent(ctx, run, types.EventLegFinished, rec.Name, rec.StatusMessage)
		e.console.LegFinished(run, rec)
		logger.Info("Leg skipped", log.Str("image", leg.Image))
		return
	}

	runCtx := ctx
	if job.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutMinutes)*time.Minute)
		defer cancel()
	}

	staging := filepath.Join(e.runsDir, pipeline.Name, strconv.FormatInt(run.Number, 10), legDirName(rec.Name))

	rec.Executor = e.executor.Name()
	rec.WorkspaceDir = workspace
	rec.LogFile = filepath.Join(staging, "console.log")

	failLeg := func(message string) {
		now := time.Now()
		rec.Status = types.RunStatusFailed
		rec.StatusMessage = message
		rec.CompletionTime = &now
		e.saveLeg(ctx, run, rec)
		e.recordEvent(ctx, run, types.EventLegFinished, rec.Name, message)
		e.console.LegFinished(run, rec)
		logger.Error("Leg failed", log.Str("reason", message))
	}

	if err := os.MkdirAll(staging, 0o755); err != nil {
		failLeg(fmt.Sprintf("creating staging dir: %v", err))
		return
	}

	consoleFile, err := os.Create(rec.LogFile)
	if err != nil {
		failLeg(fmt.Sprintf("opening leg log: %v", err))
		return
	}
	defer consoleFile.Close()

	consoleOut := io.Writer(consoleFile)
	if w := e.console.LegOutput(rec); w != nil {
		consoleOut = io.MultiWriter(consoleFile, w)
	}

	stepWorkspace, stepStaging := workspace, staging
	if m, ok := e.executor.(mountPoints); ok {
		stepWorkspace, stepStaging = m.MountPoints()
	}

	table := vars.New()
	table.Set(vars.BuiltinRunID, run.ID)
	table.SetValue(vars.BuiltinRunNumber, run.Number)
	table.Set(vars.BuiltinRunBranch, run.Branch)
	table.Set(vars.BuiltinRunCommit, run.Commit)
	table.Set(vars.BuiltinPipelineName, pipeline.Name)
	table.Set(vars.BuiltinJobName, job.Name)
	table.Set(vars.BuiltinLegName, rec.Name)
	table.Set(vars.BuiltinLegImage, leg.Image)
	table.Set(vars.BuiltinWorkspaceDir, stepWorkspace)
	table.Set(vars.BuiltinStagingDir, stepStaging)
	table.Merge(pipeline.Variables)
	table.Merge(job.Variables)
	table.Merge(leg.Vars)

	env := make(map[string]string)
	for name, value := range table.Snapshot() {
		env[vars.EnvName(name)] = value
	}

	legCtx := &executor.LegContext{
		RunID:        run.ID,
		Pipeline:     pipeline.Name,
		JobName:      job.Name,
		LegName:      rec.Name,
		Image:        leg.Image,
		WorkspaceDir: workspace,
		StagingDir:   staging,
		Env:          env,
		Console:      consoleOut,
	}

	start := time.Now()
	rec.Status = types.RunStatusRunning
	rec.StartTime = &start
	e.saveLeg(ctx, run, rec)
	e.recordEvent(ctx, run, types.EventLegStarted, rec.Name, "")
	e.console.LegStarted(run, rec)
	logger.Info("Leg started", log.Str("image", leg.Image), log.Str("executor", rec.Executor))

	defer func() {
		if err := e.executor.Cleanup(ctx, legCtx); err != nil {
			logger.Warn("Leg cleanup failed", log.Err(err))
		}
	}()

	if err := e.executor.Prepare(runCtx, legCtx); err != nil {
		failLeg(fmt.Sprintf("preparing leg: %v", err))
		return
	}

	legFailed := false
	failMessage := ""

	for i := range job.Steps {
		step := &job.Steps[i]
		label := table.Expand(step.Label(i))

		if runCtx.Err() != nil {
			break
		}

		srec := types.StepRun{Name: step.Name, DisplayName: label, Status: types.StepStatusPending}
		if srec.Name == "" {
			srec.Name = label
		}

		if !step.IsEnabled() {
			srec.Status = types.StepStatusSkipped
			srec.Message = "step disabled"
			rec.Steps = append(rec.Steps, srec)
			e.saveLeg(ctx, run, rec)
			e.console.StepFinished(run, rec, &rec.Steps[len(rec.Steps)-1])
			continue
		}

		if !shouldRun(step, legFailed) {
			cond := step.Condition
			if cond == "" {
				cond = types.ConditionSucceeded
			}
			srec.Status = types.StepStatusSkipped
			srec.Message = fmt.Sprintf("condition %q not met", cond)
			rec.Steps = append(rec.Steps, srec)
			e.saveLeg(ctx, run, rec)
			e.console.StepFinished(run, rec, &rec.Steps[len(rec.Steps)-1])
			continue
		}

		stepStart := time.Now()
		srec.Status = types.StepStatusRunning
		srec.StartTime = &stepStart
		rec.Steps = append(rec.Steps, srec)
		sp := &rec.Steps[len(rec.Steps)-1]
		e.saveLeg(ctx, run, rec)

		var exitCode int
		var runErr error
		if step.Task != "" {
			exitCode, runErr = e.runTaskStep(runCtx, legCtx, table, env, step, i, consoleOut)
		} else {
			exitCode, runErr = e.executor.RunStep(runCtx, legCtx, executor.StepExec{
				Index:       i,
				Name:        label,
				DisplayName: label,
				Script:      table.Expand(step.Script),
				WorkingDir:  table.Expand(step.WorkingDirectory),
				Env:         table.ExpandMap(step.Env),
				Timeout:     time.Duration(step.TimeoutMinutes) * time.Minute,
			})
		}

		stepDone := time.Now()
		sp.CompletionTime = &stepDone
		sp.ExitCode = exitCode

		switch {
		case runErr != nil && runCtx.Err() != nil:
			sp.Status = types.StepStatusFailed
			if ctx.Err() != nil {
				sp.Message = "run canceled"
			} else {
				sp.Message = fmt.Sprintf("job timed out after %dm", job.TimeoutMinutes)
			}
		case runErr != nil:
			sp.Status = types.StepStatusFailed
			sp.Message = runErr.Error()
		case exitCode != 0:
			sp.Status = types.StepStatusFailed
			sp.Message = fmt.Sprintf("exited with code %d", exitCode)
		default:
			sp.Status = types.StepStatusSucceeded
		}

		if sp.Status == types.StepStatusFailed && runCtx.Err() == nil && !step.ContinueOnError && !legFailed {
			legFailed = true
			failMessage = fmt.Sprintf("step %q failed: %s", label, sp.Message)
		}

		e.saveLeg(ctx, run, rec)
		e.recordEvent(ctx, run, types.EventStepFinished, rec.Name, fmt.Sprintf("%s: %s", label, sp.Status))
		e.console.StepFinished(run, rec, sp)
	}

	if !legFailed && runCtx.Err() == nil {
		if err := e.stageArtifacts(ctx, run, pipeline, job, rec, legCtx, table); err != nil {
			legFailed = true
			failMessage = fmt.Sprintf("staging artifacts: %v", err)
		}
	}

	end := time.Now()
	rec.CompletionTime = &end
	switch {
	case ctx.Err() != nil:
		rec.Status = types.RunStatusCanceled
		rec.StatusMessage = "run canceled"
	case runCtx.Err() != nil:
		rec.Status = types.RunStatusFailed
		rec.StatusMessage = fmt.Sprintf("job timed out after %dm", job.TimeoutMinutes)
	case legFailed:
		rec.Status = types.RunStatusFailed
		rec.StatusMessage = failMessage
	default:
		rec.Status = types.RunStatusSucceeded
	}

	e.saveLeg(ctx, run, rec)
	e.recordEvent(ctx, run, types.EventLegFinished, rec.Name, string(rec.Status))
	e.console.LegFinished(run, rec)
	logger.Info("Leg finished", log.Str("status", string(rec.Status)))
}

// runTaskStep runs a built-in task in-process, writing its transcript
// to the step log like a script step would.
func (e *Engine) runTaskStep(ctx context.Context, legCtx *executor.LegContext, table *vars.Table, env map[string]string, step *types.StepSpec, index int, consoleOut io.Writer) (int, error) {
	task, ok := tasks.Lookup(step.Task)
	if !ok {
		return -1, fmt.Errorf("unknown task %q (available: %s)", step.Task, strings.Join(tasks.Names(), ", "))
	}

	logFile, err := executor.OpenStepLog(legCtx, executor.StepExec{Index: index, Name: step.Label(index)})
	if err != nil {
		return -1, err
	}
	defer logFile.Close()

	out := io.Writer(logFile)
	if consoleOut != nil {
		out = io.MultiWriter(logFile, consoleOut)
	}

	transcript := log.NewLogger(
		log.WithLevel(log.DebugLevel),
		log.WithFormatter(&log.TextFormatter{TimestampFormat: "15:04:05", DisableColors: true}),
		log.WithOutput(log.NewConsoleOutput(log.WithCustomWriter(out), log.WithCustomErrorWriter(out))),
	)

	var workspaceMount, stagingMount string
	if m, ok := e.executor.(mountPoints); ok {
		workspaceMount, stagingMount = m.MountPoints()
	}

	tc := &tasks.TaskContext{
		Inputs:         table.ExpandMap(step.Inputs),
		Vars:           table,
		Env:            env,
		WorkspaceDir:   legCtx.WorkspaceDir,
		StagingDir:     legCtx.StagingDir,
		WorkspaceMount: workspaceMount,
		StagingMount:   stagingMount,
		ExecutorName:   e.executor.Name(),
		PythonDirs:     e.pythonDirs,
		Connection:     e.connections,
		Logger:         transcript,
	}

	if err := task.Run(ctx, tc); err != nil {
		transcript.Error("Task failed", log.Str("task", step.Task), log.Err(err))
		return 1, err
	}
	return 0, nil
}

// stageArtifacts copies the pipeline's and the job's artifact globs out
// of the leg workspace and records them. Recognized distribution files
// carry parsed package metadata and digests; anything else gets a sha256.
func (e *Engine) stageArtifacts(ctx context.Context, run *types.Run, pipeline *types.Pipeline, job *types.JobSpec, rec *types.LegRun, legCtx *executor.LegContext, table *vars.Table) error {
	patterns := make([]string, 0, len(pipeline.Artifacts)+len(job.Artifacts))
	patterns = append(patterns, pipeline.Artifacts...)
	patterns = append(patterns, job.Artifacts...)
	globs := table.ExpandSlice(patterns)

	seen := make(map[string]bool)
	var files []string
	for _, g := range globs {
		pattern := g
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(legCtx.WorkspaceDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("bad artifact glob %q: %w", g, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil
	}

	if err := os.MkdirAll(legCtx.ArtifactsDir(), 0o755); err != nil {
		return err
	}

	for _, src := range files {
		info, err := os.Stat(src)
		if err != nil {
			return err
		}
		if info.IsDir() {
			continue
		}

		dst := filepath.Join(legCtx.ArtifactsDir(), filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copying %s: %w", filepath.Base(src), err)
		}

		art := types.NewArtifact(run.ID, rec.ID, filepath.Base(src), dst, types.ArtifactKindFile)
		if _, err := pypi.ParseFilename(src); err == nil {
			dists, err := pypi.Scan(dst)
			if err != nil {
				return fmt.Errorf("inspecting %s: %w", filepath.Base(src), err)
			}
			if len(dists) == 1 {
				df := dists[0]
				if df.Type == pypi.DistTypeWheel {
					art.Kind = types.ArtifactKindWheel
				} else {
					art.Kind = types.ArtifactKindSdist
				}
				art.Package = df.Name
				art.Version = df.Version
				art.Size = df.Size
				art.MD5 = df.MD5
				art.SHA256 = df.SHA256
				art.Blake2b256 = df.Blake2b256
			}
		} else {
			art.Size = info.Size()
			digest, err := fileSHA256(dst)
			if err != nil {
				return err
			}
			art.SHA256 = digest
		}

		if err := e.repo.SaveArtifact(ctx, run, art); err != nil {
			return err
		}
		e.logger.Debug("Staged artifact",
			log.RunID(run.ID),
			log.Leg(rec.Name),
			log.Str("file", art.Name),
			log.Int64("size", art.Size))
	}
	return nil
}

// skipJob records every leg of a job with a terminal status without
// running anything.
func (e *Engine) skipJob(ctx context.Context, run *types.Run, pipeline *types.Pipeline, job *types.JobSpec, opts RunOptions, status types.RunStatus, message string) []*types.LegRun {
	legs, err := legsFor(pipeline, job)
	if err != nil {
		e.logger.Warn("Cannot expand skipped job", log.Str("job", job.Name), log.Err(err))
		return nil
	}
	legs = filterLegs(legs, opts.Leg)

	records := make([]*types.LegRun, 0, len(legs))
	for _, leg := range legs {
		rec := newLegRecord(run, job, leg)
		rec.Status = status
		rec.StatusMessage = message
		e.saveLeg(ctx, run, rec)
		e.recordEvent(ctx, run, types.EventLegFinished, rec.Name, message)
		e.console.LegFinished(run, rec)
		records = append(records, rec)
	}
	return records
}

// newLegRecord creates the pending leg record for a matrix leg.
func newLegRecord(run *types.Run, job *types.JobSpec, leg matrix.Leg) *types.LegRun {
	legName := leg.Name
	if legName == job.Name {
		legName = ""
	}
	rec := run.CreateLegRun(job.Name, legName, leg.Vars)
	rec.Image = leg.Image
	return rec
}

// shouldRun evaluates a step condition against the leg state so far.
func shouldRun(step *types.StepSpec, legFailed bool) bool {
	switch step.Condition {
	case "", types.ConditionSucceeded:
		return !legFailed
	case types.ConditionAlways, types.ConditionSucceededOrFailed:
		return true
	case types.ConditionFailed:
		return legFailed
	default:
		return !legFailed
	}
}

// blockedBy returns the first dependency that did not succeed.
func blockedBy(job *types.JobSpec, outcomes map[string]types.RunStatus) (string, bool) {
	for _, dep := range job.DependsOn {
		if outcomes[dep] != types.RunStatusSucceeded {
			return dep, true
		}
	}
	return "", false
}

// filterLegs keeps legs matching the run's leg filter.
func filterLegs(legs []matrix.Leg, name string) []matrix.Leg {
	if name == "" {
		return legs
	}
	var keep []matrix.Leg
	for _, leg := range legs {
		if leg.Name == name {
			keep = append(keep, leg)
		}
	}
	return keep
}

func jobByName(jobs []*types.JobSpec, name string) *types.JobSpec {
	for _, job := range jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}

var unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// legDirName maps a leg name onto a filesystem-safe directory name.
func legDirName(name string) string {
	return unsafeDirChars.ReplaceAllString(name, "-")
}

func (e *Engine) persistRun(ctx context.Context, run *types.Run) {
	run.UpdatedAt = time.Now()
	if err := e.repo.Update(ctx, run); err != nil {
		e.logger.Error("Failed to persist run", log.RunID(run.ID), log.Err(err))
	}
	e.snapshotRun(run)
}

// snapshotRun mirrors the run record into its staging dir as JSON.
// The history store is locked by the running process, so this file is
// what other processes (runs watch) read to follow progress.
func (e *Engine) snapshotRun(run *types.Run) {
	dir := filepath.Join(e.runsDir, run.PipelineName, strconv.FormatInt(run.Number, 10))

	fail := func(err error) {
		e.logger.Warn("Failed to write run snapshot", log.RunID(run.ID), log.Err(err))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fail(err)
		return
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		fail(err)
		return
	}

	// Write-then-rename keeps readers from ever seeing a partial file.
	tmp := filepath.Join(dir, ".run.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		fail(err)
		return
	}
	if err := os.Rename(tmp, filepath.Join(dir, "run.json")); err != nil {
		fail(err)
	}
}

func (e *Engine) saveLeg(ctx context.Context, run *types.Run, leg *types.LegRun) {
	leg.UpdatedAt = time.Now()
	if err := e.repo.SaveLeg(ctx, run, leg); err != nil {
		e.logger.Error("Failed to persist leg", log.RunID(run.ID), log.Leg(leg.Name), log.Err(err))
	}
}

func (e *Engine) recordEvent(ctx context.Context, run *types.Run, typ types.EventType, leg, message string) {
	if err := e.repo.RecordEvent(ctx, run, types.NewEvent(run.ID, typ, leg, message)); err != nil {
		e.logger.Warn("Failed to record event", log.RunID(run.ID), log.Str("event", string(typ)), log.Err(err))
	}
}

func (e *Engine) finishRun(ctx context.Context, run *types.Run, status types.RunStatus, message string) {
	now := time.Now()
	run.Status = status
	run.StatusMessage = message
	run.CompletionTime = &now
	e.persistRun(ctx, run)
	e.recordEvent(ctx, run, types.EventRunFinished, "", string(status))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
