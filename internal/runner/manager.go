package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/orchestrator/taskrunner/internal/obslog"
	"github.com/orchestrator/taskrunner/internal/orcherr"
	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/provider"
	"github.com/orchestrator/taskrunner/internal/retry"
	"github.com/orchestrator/taskrunner/internal/store"
	"github.com/orchestrator/taskrunner/internal/taskdoc"
)

// StartRequest is the Start() input. Prompt is built by the driver (the
// "implementation-only prompt directive" in §4.6 Phase 2); the Runner
// Manager never constructs prompt text itself.
type StartRequest struct {
	ProjectPath  string
	SpecName     string
	ProviderName string
	Model        string
	Overrides    map[string]string
	TasksPath    string
	Prompt       string
	ConfigHash   string
}

type running struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the set of active RunnerRecords. All mutations to the
// record set go through a single mutex, matching the "serialize in-memory
// mutations through one lock" discipline §4.4 requires.
type Manager struct {
	mu               sync.Mutex
	records          map[string]*Record
	procs            map[string]*running
	providers        *provider.Registry
	probes           *probe.Probes
	retryCfg         retry.Config
	statePath        string
	logDir           string
	activityTimeout  time.Duration
}

// NewManager builds a Manager. statePath is the runner state file this
// manager persists to before returning from Start and after every status
// transition. activityTimeout is the health_scan stall threshold; zero
// disables activity-timeout detection.
func NewManager(providers *provider.Registry, probes *probe.Probes, retryCfg retry.Config, statePath, logDir string, activityTimeout time.Duration) *Manager {
	return &Manager{
		records:         map[string]*Record{},
		procs:           map[string]*running{},
		providers:       providers,
		probes:          probes,
		retryCfg:        retryCfg,
		statePath:       statePath,
		logDir:          logDir,
		activityTimeout: activityTimeout,
	}
}

// Start spawns a supervised subprocess after checking preconditions. No
// subprocess is spawned if a precondition fails.
func (m *Manager) Start(ctx context.Context, req StartRequest) (Record, error) {
	m.mu.Lock()
	for _, r := range m.records {
		if r.ProjectPath == req.ProjectPath && r.SpecName == req.SpecName && r.Status == StatusRunning {
			m.mu.Unlock()
			return Record{}, orcherr.New(orcherr.KindPreconditionFailed, fmt.Errorf("a runner is already running for %s/%s", req.ProjectPath, req.SpecName))
		}
	}
	m.mu.Unlock()

	clean, err := m.probes.WorkingTreeClean(ctx, req.ProjectPath)
	if err != nil {
		return Record{}, orcherr.New(orcherr.KindPreconditionFailed, err)
	}
	if !clean {
		return Record{}, orcherr.New(orcherr.KindPreconditionFailed, fmt.Errorf("working tree is not clean"))
	}

	p, err := m.providers.Resolve(req.ProviderName)
	if err != nil {
		return Record{}, orcherr.New(orcherr.KindPreconditionFailed, err)
	}
	if err := p.HealthCheck(ctx, req.ProjectPath); err != nil {
		return Record{}, orcherr.New(orcherr.KindPreconditionFailed, fmt.Errorf("provider health check: %w", err))
	}

	data, err := os.ReadFile(req.TasksPath)
	if err != nil {
		return Record{}, orcherr.New(orcherr.KindPreconditionFailed, fmt.Errorf("read %s: %w", req.TasksPath, err))
	}
	tasks, _ := taskdoc.Parse(string(data))
	stats := taskdoc.Count(tasks)
	if stats.Pending == 0 && stats.InProgress == 0 {
		return Record{}, orcherr.New(orcherr.KindPreconditionFailed, fmt.Errorf("no pending or in-progress tasks"))
	}

	baseline, err := m.probes.GitHead(ctx, req.ProjectPath)
	if err != nil {
		return Record{}, orcherr.New(orcherr.KindPreconditionFailed, err)
	}

	overrides := req.Overrides
	if overrides == nil {
		overrides = map[string]string{}
	}
	if req.Model != "" {
		overrides["model"] = req.Model
	}
	argv, err := p.BuildArgv(req.Prompt, req.ProjectPath, overrides)
	if err != nil {
		return Record{}, orcherr.New(orcherr.KindSpawnFailed, err)
	}

	id := uuid.New().String()
	logPath := sequentialLogPath(m.logDir, req.SpecName, 0)
	rec := &Record{
		ID:             id,
		ProjectPath:    req.ProjectPath,
		SpecName:       req.SpecName,
		Provider:       req.ProviderName,
		Model:          req.Model,
		CmdFingerprint: req.Prompt,
		Status:         StatusStarting,
		StartTime:      time.Now().UTC(),
		MaxRetries:     m.retryCfg.MaxRetries,
		ConfigHash:     req.ConfigHash,
		LogPath:        logPath,
		BaselineCommit: baseline,
	}

	m.mu.Lock()
	m.records[id] = rec
	if err := m.persistLocked(); err != nil {
		delete(m.records, id)
		m.mu.Unlock()
		return Record{}, orcherr.New(orcherr.KindPersistenceError, err)
	}
	m.mu.Unlock()

	if err := m.spawn(rec, argv); err != nil {
		m.mu.Lock()
		rec.Status = StatusCrashed
		m.persistLocked()
		m.mu.Unlock()
		return rec.snapshot(), orcherr.New(orcherr.KindSpawnFailed, err)
	}

	return rec.snapshot(), nil
}

func (m *Manager) spawn(rec *Record, argv []string) error {
	logFile, err := os.OpenFile(rec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, argv[0], argv[1:]...)
	cmd.Dir = rec.ProjectPath
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		logFile.Close()
		return err
	}

	rec.PID = cmd.Process.Pid
	rec.Status = StatusRunning
	rec.LastActivityTime = time.Now().UTC()

	done := make(chan struct{})
	m.mu.Lock()
	m.procs[rec.ID] = &running{cmd: cmd, cancel: cancel, done: done}
	m.persistLocked()
	m.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()
		logFile.Close()
		m.onExit(rec.ID, waitErr)
		close(done)
	}()

	return nil
}

func (m *Manager) onExit(id string, waitErr error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	code := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	rec.ExitCode = &code
	if rec.Status == StatusStopped {
		m.persistLocked()
		m.mu.Unlock()
		return
	}
	if code == 0 {
		rec.Status = StatusCompleted
	} else {
		rec.Status = StatusCrashed
	}
	m.persistLocked()
	m.mu.Unlock()

	obslog.Event("runner_exit").With("runner_id", id).With("exit_code", code).With("status", string(rec.Status)).Info()
}

// Stop signals graceful termination, escalating to forceful after grace.
// The record is removed once exit is observed regardless of how it exited.
func (m *Manager) Stop(id string, grace time.Duration) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("runner: unknown id %s", id)
	}
	proc, hasProc := m.procs[id]
	rec.Status = StatusStopped
	m.mu.Unlock()

	if !hasProc {
		return nil
	}
	proc.cancel()

	select {
	case <-proc.done:
	case <-time.After(grace):
		if proc.cmd.Process != nil {
			proc.cmd.Process.Kill()
		}
		<-proc.done
	}

	m.mu.Lock()
	delete(m.records, id)
	delete(m.procs, id)
	m.persistLocked()
	m.mu.Unlock()
	return nil
}

// Wait blocks until the runner identified by id exits (or ctx is
// cancelled), returning a snapshot of its final record. This is the
// driver's passive wait: it does not poll, it parks on the same channel
// spawn's goroutine closes on cmd.Wait returning.
func (m *Manager) Wait(ctx context.Context, id string) (Record, error) {
	m.mu.Lock()
	proc, ok := m.procs[id]
	m.mu.Unlock()
	if !ok {
		return m.recordSnapshot(id)
	}

	select {
	case <-proc.done:
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
	return m.recordSnapshot(id)
}

func (m *Manager) recordSnapshot(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("runner: unknown id %s", id)
	}
	return rec.snapshot(), nil
}

// StatusOf returns the current status of a runner.
func (m *Manager) StatusOf(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return "", fmt.Errorf("runner: unknown id %s", id)
	}
	return rec.Status, nil
}

// ListActive returns a snapshot of every tracked record.
func (m *Manager) ListActive() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.snapshot())
	}
	return out
}

// HealthScan checks pid_alive for every running record and transitions dead
// ones to completed/crashed. It also treats an alive record whose
// last_activity_time has gone stale past activityTimeout as a stall
// candidate and signals it, letting the normal exit path carry it to
// crashed so maybe_retry picks it up exactly as it would a real crash.
// Returns snapshots of the records that changed status.
func (m *Manager) HealthScan() []Record {
	m.mu.Lock()
	var changed []Record
	var stalled []*running
	now := time.Now().UTC()
	for _, rec := range m.records {
		if rec.Status != StatusRunning {
			continue
		}
		if probe.PidAlive(rec.PID, rec.CmdFingerprint) {
			if m.activityTimeout > 0 && now.Sub(rec.LastActivityTime) > m.activityTimeout {
				if proc, ok := m.procs[rec.ID]; ok {
					stalled = append(stalled, proc)
					obslog.Event("runner_activity_timeout").
						With("runner_id", rec.ID).
						With("idle_seconds", now.Sub(rec.LastActivityTime).Seconds()).
						Warn()
				}
			}
			continue
		}
		if rec.ExitCode != nil && *rec.ExitCode == 0 {
			rec.Status = StatusCompleted
		} else {
			rec.Status = StatusCrashed
		}
		changed = append(changed, rec.snapshot())
	}
	if len(changed) > 0 {
		m.persistLocked()
	}
	m.mu.Unlock()

	for _, proc := range stalled {
		proc.cancel()
	}
	return changed
}

// TouchActivity bumps last_activity_time for the running record matching
// projectPath/specName. Called by the poller whenever that target's log
// file grows, the same "new bytes seen" signal the original session
// monitor's check_activity used.
func (m *Manager) TouchActivity(projectPath, specName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ProjectPath == projectPath && rec.SpecName == specName && rec.Status == StatusRunning {
			rec.LastActivityTime = time.Now().UTC()
			return
		}
	}
}

// MaybeRetry schedules a restart for a crashed record if the retry policy
// permits it. Returns whether a retry was scheduled.
func (m *Manager) MaybeRetry(ctx context.Context, id string, req StartRequest) (bool, error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("runner: unknown id %s", id)
	}
	n := rec.RetryCount
	lastSuccess := rec.ExitCode != nil && *rec.ExitCode == 0
	allowed := retry.ShouldRetry(n, m.retryCfg, lastSuccess)
	m.mu.Unlock()
	if !allowed {
		return false, nil
	}

	delay := retry.Backoff(n, m.retryCfg)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return false, ctx.Err()
	}

	m.mu.Lock()
	rec.RetryCount++
	now := time.Now().UTC()
	rec.LastRetryTime = &now
	rec.LogPath = sequentialLogPath(m.logDir, rec.SpecName, rec.RetryCount)
	rec.Status = StatusStarting
	m.persistLocked()
	m.mu.Unlock()

	p, err := m.providers.Resolve(rec.Provider)
	if err != nil {
		return false, err
	}
	overrides := req.Overrides
	if overrides == nil {
		overrides = map[string]string{}
	}
	if rec.Model != "" {
		overrides["model"] = rec.Model
	}
	argv, err := p.BuildArgv(req.Prompt, rec.ProjectPath, overrides)
	if err != nil {
		return false, err
	}

	obslog.Event("runner_retry").With("runner_id", id).With("retry_count", rec.RetryCount).Info()
	if err := m.spawn(rec, argv); err != nil {
		m.mu.Lock()
		rec.Status = StatusCrashed
		m.persistLocked()
		m.mu.Unlock()
		return false, orcherr.New(orcherr.KindSpawnFailed, err)
	}
	return true, nil
}

// LoadPersistedRecords reads the runner state file at path without
// constructing a Manager, for tooling that only needs to inspect what a
// prior run left behind. A missing file returns an empty, non-error result.
func LoadPersistedRecords(path string) ([]Record, error) {
	var sf stateFile
	if err := store.ReadJSON(path, &sf); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return sf.Runners, nil
}

// Restore loads persisted records and re-checks liveness: records whose
// process is confirmed alive and whose config hash matches currentConfigHash
// stay running; everything else is dropped from the active set.
func (m *Manager) Restore(currentConfigHash string) error {
	var sf stateFile
	if err := store.ReadJSON(m.statePath, &sf); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range sf.Runners {
		rec := sf.Runners[i]
		if rec.Status == StatusRunning && rec.ConfigHash == currentConfigHash && probe.PidAlive(rec.PID, rec.CmdFingerprint) {
			r := rec
			m.records[r.ID] = &r
			continue
		}
		// Dead or hash-mismatched: dropped from the active set per restore
		// semantics; not re-added.
	}
	return m.persistLocked()
}

func (m *Manager) persistLocked() error {
	sf := stateFile{Runners: make([]Record, 0, len(m.records))}
	for _, r := range m.records {
		sf.Runners = append(sf.Runners, r.snapshot())
	}
	if err := store.WriteJSON(m.statePath, sf); err != nil {
		obslog.Event("runner_persist_failed").With("error", err.Error()).Warn()
		return err
	}
	return nil
}

func sequentialLogPath(dir, specName string, n int) string {
	return fmt.Sprintf("%s/%s.%d.log", dir, specName, n)
}
