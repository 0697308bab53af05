package runner

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/provider"
	"github.com/orchestrator/taskrunner/internal/retry"
)

func newTestManager(t *testing.T) *Manager {
	dir := t.TempDir()
	return NewManager(provider.NewBuiltinRegistry(), probe.New(nil, 0), retry.DefaultConfig(), filepath.Join(dir, "runners.json"), dir, 0)
}

func TestHealthScanMarksDeadPidCrashed(t *testing.T) {
	m := newTestManager(t)
	rec := &Record{ID: "r1", Status: StatusRunning, PID: 999999999, CmdFingerprint: "anything"}
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()

	changed := m.HealthScan()
	if len(changed) != 1 || changed[0].Status != StatusCrashed {
		t.Fatalf("expected crashed transition, got %v", changed)
	}
}

func TestPersistAndRestoreRoundTrip(t *testing.T) {
	m := newTestManager(t)
	rec := &Record{ID: "r1", Status: StatusStopped, PID: 1, ConfigHash: "abc"}
	m.mu.Lock()
	m.records[rec.ID] = rec
	err := m.persistLocked()
	m.mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}

	m2 := newTestManagerSharingState(t, m.statePath, m.logDir)
	if err := m2.Restore("abc"); err != nil {
		t.Fatal(err)
	}
	// A stopped record is never restored as running.
	if len(m2.ListActive()) != 0 {
		t.Fatalf("expected no active records restored from a stopped snapshot")
	}
}

func newTestManagerSharingState(t *testing.T, statePath, logDir string) *Manager {
	return NewManager(provider.NewBuiltinRegistry(), probe.New(nil, 0), retry.DefaultConfig(), statePath, logDir, 0)
}

func TestListActiveReturnsSnapshotsNotPointers(t *testing.T) {
	m := newTestManager(t)
	rec := &Record{ID: "r1", Status: StatusRunning}
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()

	list := m.ListActive()
	list[0].Status = StatusStopped
	if rec.Status != StatusRunning {
		t.Fatal("mutating a snapshot must not affect the manager's internal record")
	}
}

func TestHealthScanEscalatesStalledActivity(t *testing.T) {
	m := newTestManager(t)
	m.activityTimeout = 10 * time.Millisecond

	rec := &Record{
		ID:             "r1",
		ProjectPath:    t.TempDir(),
		SpecName:       "spec",
		LogPath:        filepath.Join(t.TempDir(), "out.log"),
		CmdFingerprint: "sleep",
	}
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()

	if err := m.spawn(rec, []string{"sleep", "30"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	// spawn stamps LastActivityTime with the spawn time; age it afterwards.
	m.mu.Lock()
	rec.LastActivityTime = time.Now().UTC().Add(-time.Hour)
	m.mu.Unlock()

	changed := m.HealthScan()
	if len(changed) != 0 {
		t.Fatalf("a stalled-but-alive process must not be reported as an immediate status change, got %v", changed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		status := rec.Status
		m.mu.Unlock()
		if status == StatusCrashed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the stalled process to be signaled and land on crashed, got %v", rec.Status)
}

func TestTouchActivityBumpsRunningRecord(t *testing.T) {
	m := newTestManager(t)
	rec := &Record{ID: "r1", ProjectPath: "/proj", SpecName: "spec", Status: StatusRunning, LastActivityTime: time.Unix(0, 0)}
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()

	m.TouchActivity("/proj", "spec")
	if rec.LastActivityTime.Before(time.Now().Add(-time.Minute)) {
		t.Fatalf("expected LastActivityTime to be bumped, got %v", rec.LastActivityTime)
	}
}
