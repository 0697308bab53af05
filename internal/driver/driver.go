// Package driver implements the three-phase iteration loop that fuses
// task-document validation, a commit-gated implementation subprocess, and
// post-session completion verification into the unit of work the rest of
// the system schedules: one iteration of one (project, spec) pair.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/orchestrator/taskrunner/internal/commitgate"
	"github.com/orchestrator/taskrunner/internal/completion"
	"github.com/orchestrator/taskrunner/internal/obslog"
	"github.com/orchestrator/taskrunner/internal/orcherr"
	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/runner"
	"github.com/orchestrator/taskrunner/internal/store"
	"github.com/orchestrator/taskrunner/internal/taskdoc"
)

// DefaultNoCommitLimit is the consecutive-timeout ceiling before the driver
// halts a spec with Stalled.
const DefaultNoCommitLimit = 3

// IterationRequest describes one (project, spec) unit of work.
type IterationRequest struct {
	ProjectPath  string
	SpecName     string
	TasksPath    string
	LogDir       string
	ProviderName string
	Model        string
	Overrides    map[string]string
	ConfigHash   string
	Prompt       string // the implementation-only prompt directive
}

// Outcome is the terminal classifier of one Run call.
type Outcome string

const (
	OutcomeIterationDone Outcome = "iteration_done"
	OutcomeStalled       Outcome = "stalled"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeError         Outcome = "error"
)

// RunResult summarizes a full Run (possibly many iterations).
type RunResult struct {
	Outcome    Outcome
	Iterations int
	LastStats  taskdoc.Stats
}

// Driver composes the validator, runner manager, completion checker, and
// commit gate into the three documented phases.
type Driver struct {
	validator *taskdoc.Validator
	manager   *runner.Manager
	probes    *probe.Probes
	checker   *completion.Checker
	fs        taskdoc.FileExister
	limiter   *Limiter

	noCommitLimit int
}

// New builds a Driver. fs supplies the filesystem-existence capability
// ResetUnimplemented needs; limiter may be nil to disable concurrency
// capping.
func New(validator *taskdoc.Validator, manager *runner.Manager, probes *probe.Probes, checker *completion.Checker, fs taskdoc.FileExister, limiter *Limiter) *Driver {
	return &Driver{
		validator:     validator,
		manager:       manager,
		probes:        probes,
		checker:       checker,
		fs:            fs,
		limiter:       limiter,
		noCommitLimit: DefaultNoCommitLimit,
	}
}

func iterationKey(req IterationRequest) string {
	return req.ProjectPath + "\x00" + req.SpecName
}

// Run executes Phase 1/2/3 repeatedly until the spec is done, stalled,
// cancelled, or an unrecoverable error occurs.
func (d *Driver) Run(ctx context.Context, req IterationRequest) (RunResult, error) {
	key := iterationKey(req)
	if d.limiter != nil {
		ok, reason := d.limiter.TryAcquire(key)
		switch {
		case ok:
			defer d.limiter.Release(key)
		case reason == SkipReasonConcurrency:
			// The cap is soft: a breach is reported, and the run proceeds.
			obslog.Event("driver_concurrency_limit_exceeded").With("project", req.ProjectPath).With("spec", req.SpecName).With("reason", string(reason)).Warn()
		default:
			return RunResult{}, fmt.Errorf("driver: %s skipped: %s", key, reason)
		}
	}

	noCommitStreak := 0
	var lastStats taskdoc.Stats
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return RunResult{Outcome: OutcomeCancelled, Iterations: i, LastStats: lastStats}, ctx.Err()
		default:
		}
		iterStart := time.Now()

		done, stats, err := d.phaseOne(req, i)
		if err != nil {
			return RunResult{Outcome: OutcomeError, Iterations: i, LastStats: stats}, err
		}
		lastStats = stats
		if done {
			return RunResult{Outcome: OutcomeIterationDone, Iterations: i + 1, LastStats: stats}, nil
		}

		baseline, err := d.phaseTwo(ctx, req, i)
		if err != nil {
			return RunResult{Outcome: OutcomeError, Iterations: i + 1, LastStats: stats}, err
		}

		progressed, checkResult, statusChanged, err := d.phaseThree(ctx, req, i, baseline)
		if err != nil {
			return RunResult{Outcome: OutcomeError, Iterations: i + 1, LastStats: lastStats}, err
		}
		lastStats = d.emitSummary(req, i, checkResult, time.Since(iterStart))
		if progressed {
			noCommitStreak = 0
		} else if checkResult.StatusCode == completion.StatusTimeout && !statusChanged {
			noCommitStreak++
			if noCommitStreak >= d.noCommitLimit {
				return RunResult{Outcome: OutcomeStalled, Iterations: i + 1, LastStats: lastStats}, orcherr.New(orcherr.KindStalled, fmt.Errorf("no progress for %d consecutive iterations", noCommitStreak))
			}
		}
	}
}

// emitSummary re-counts tasks.md after Phase 3 and emits the per-iteration
// Summary event that replaces the original's standalone metrics/coverage
// collection scripts, returning the freshly counted stats for RunResult.
func (d *Driver) emitSummary(req IterationRequest, iteration int, result completion.Result, elapsed time.Duration) taskdoc.Stats {
	var stats taskdoc.Stats
	if data, err := os.ReadFile(req.TasksPath); err == nil {
		tasks, _ := taskdoc.Parse(string(data))
		stats = taskdoc.Count(tasks)
	}
	obslog.Event("summary").
		With("project", req.ProjectPath).
		With("spec", req.SpecName).
		With("iteration", iteration).
		With("tasks_total", stats.Total).
		With("tasks_completed", stats.Completed).
		With("new_commits", result.NewCommits).
		With("probes_used", result.ProbesUsed).
		With("duration_seconds", elapsed.Seconds()).
		Info()
	return stats
}

// phaseOne is Pre-session Validation: parse, validate, reset_unimplemented,
// and a done-check. It never spawns a subprocess.
func (d *Driver) phaseOne(req IterationRequest, iteration int) (done bool, stats taskdoc.Stats, err error) {
	data, err := os.ReadFile(req.TasksPath)
	if err != nil {
		return false, stats, orcherr.New(orcherr.KindFSReadError, err)
	}
	text := string(data)

	tasks, parseIssues := taskdoc.Parse(text)
	if hasUnparseable(parseIssues) {
		return false, stats, orcherr.New(orcherr.KindTaskFormatInvalid, fmt.Errorf("tasks.md contains unparseable lines"))
	}

	issues := d.validator.Validate(text)
	d.writeLog(req.LogDir, fmt.Sprintf("validation_%d.log", iteration), renderIssues(issues))

	rewritten, changed := d.validator.ResetUnimplemented(text, d.fs)
	if changed {
		if err := store.WriteAtomic(req.TasksPath, []byte(rewritten)); err != nil {
			return false, stats, orcherr.New(orcherr.KindFSWriteError, err)
		}
		tasks, _ = taskdoc.Parse(rewritten)
		obslog.Event("tasks_reset_unimplemented").With("project", req.ProjectPath).With("spec", req.SpecName).Info()
	}

	stats = taskdoc.Count(tasks)
	return stats.Total > 0 && stats.Total == stats.Completed, stats, nil
}

// phaseTwo is Implementation under Commit Gate: enter the gate, record a
// baseline, spawn the supervised subprocess, wait passively for exit, and
// unconditionally exit the gate — finally-style, including on panic.
func (d *Driver) phaseTwo(ctx context.Context, req IterationRequest, iteration int) (baseline string, err error) {
	if err := commitgate.Enter(req.ProjectPath); err != nil {
		return "", orcherr.New(orcherr.KindPreconditionFailed, fmt.Errorf("commit gate enter: %w", err))
	}
	defer func() {
		if exitErr := commitgate.Exit(req.ProjectPath); exitErr != nil {
			obslog.Event("commit_gate_exit_failed").With("project", req.ProjectPath).With("error", exitErr.Error()).Error()
		}
	}()

	baseline, err = d.probes.GitHead(ctx, req.ProjectPath)
	if err != nil {
		return "", orcherr.New(orcherr.KindPreconditionFailed, err)
	}

	startReq := runner.StartRequest{
		ProjectPath:  req.ProjectPath,
		SpecName:     req.SpecName,
		ProviderName: req.ProviderName,
		Model:        req.Model,
		Overrides:    req.Overrides,
		TasksPath:    req.TasksPath,
		Prompt:       req.Prompt,
		ConfigHash:   req.ConfigHash,
	}
	rec, err := d.manager.Start(ctx, startReq)
	if err != nil {
		return baseline, err
	}

	cur, err := d.manager.Wait(ctx, rec.ID)
	if err != nil {
		return baseline, orcherr.New(orcherr.KindSubprocessCrashed, err)
	}
	for cur.Status == runner.StatusCrashed {
		retried, retryErr := d.manager.MaybeRetry(ctx, cur.ID, startReq)
		if retryErr != nil {
			return baseline, orcherr.New(orcherr.KindSubprocessCrashed, retryErr)
		}
		if !retried {
			break
		}
		cur, err = d.manager.Wait(ctx, cur.ID)
		if err != nil {
			return baseline, orcherr.New(orcherr.KindSubprocessCrashed, err)
		}
	}
	return baseline, nil
}

// phaseThree is Post-session Verification: promote completable in_progress
// tasks, run the completion checker, and report whether real progress (a
// task-status change or a completion signal) occurred this iteration.
func (d *Driver) phaseThree(ctx context.Context, req IterationRequest, iteration int, baseline string) (progressed bool, result completion.Result, statusChanged bool, err error) {
	data, readErr := os.ReadFile(req.TasksPath)
	if readErr != nil {
		return false, result, false, orcherr.New(orcherr.KindFSReadError, readErr)
	}
	text := string(data)
	tasks, _ := taskdoc.Parse(text)

	marks := make(map[int]taskdoc.Status)
	for i := range tasks {
		t := &tasks[i]
		if t.Status != taskdoc.StatusInProgress {
			continue
		}
		if d.promotable(t) {
			marks[t.Line] = taskdoc.StatusCompleted
			statusChanged = true
		}
	}
	if statusChanged {
		rewritten, _ := taskdoc.RewriteStatuses(text, marks)
		if err := store.WriteAtomic(req.TasksPath, []byte(rewritten)); err != nil {
			return false, result, statusChanged, orcherr.New(orcherr.KindFSWriteError, err)
		}
	}

	result, checkErr := d.checker.Check(ctx, req.ProjectPath, req.SpecName, baseline)
	if checkErr != nil {
		return statusChanged, result, statusChanged, nil
	}
	progressed = statusChanged || result.Complete

	d.writeLog(req.LogDir, fmt.Sprintf("verification_%d.log", iteration), renderVerification(result, statusChanged))
	return progressed, result, statusChanged, nil
}

// promotable reports whether an in_progress task's declared state actually
// satisfies completion: every file exists, every acceptance item is
// checked, and the file set is not purely mocks/tests.
func (d *Driver) promotable(t *taskdoc.Task) bool {
	if len(t.Files) == 0 {
		return false
	}
	for _, f := range t.Files {
		if !d.fs.Exists(f) {
			return false
		}
	}
	for _, a := range t.Acceptance {
		if a.Status != taskdoc.StatusCompleted {
			return false
		}
	}
	return !allMockOnly(d.validator, t.Files)
}

func allMockOnly(v *taskdoc.Validator, files []string) bool {
	// Reuses the same honesty rule Validate applies to completed tasks:
	// a task promoted on mock/test files alone is not real progress.
	issues := v.Validate(taskdoc.Render([]taskdoc.Task{{Status: taskdoc.StatusCompleted, ID: "1", Title: "mock-only probe", Files: files}}))
	for _, iss := range issues {
		if iss.Kind == taskdoc.IssueMockOnlyFiles {
			return true
		}
	}
	return false
}

func hasUnparseable(issues []taskdoc.Issue) bool {
	for _, iss := range issues {
		if iss.Kind == taskdoc.IssueUnparseableLine {
			return true
		}
	}
	return false
}

func (d *Driver) writeLog(dir, name, content string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		obslog.Event("driver_log_write_failed").With("path", path).With("error", err.Error()).Warn()
	}
}

func renderIssues(issues []taskdoc.Issue) string {
	if len(issues) == 0 {
		return "no issues\n"
	}
	out := ""
	for _, iss := range issues {
		out += fmt.Sprintf("%s line=%d severity=%s %s\n", iss.Kind, iss.Line, iss.Severity, iss.Message)
	}
	return out
}

func renderVerification(result completion.Result, statusChanged bool) string {
	return fmt.Sprintf("status_code=%s complete=%v new_commits=%d probes_used=%d rescued=%v status_changed=%v at=%s\n",
		result.StatusCode, result.Complete, result.NewCommits, result.ProbesUsed, result.Rescued, statusChanged, time.Now().UTC().Format(time.RFC3339))
}
