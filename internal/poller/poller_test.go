package poller

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/provider"
	"github.com/orchestrator/taskrunner/internal/runner"
	"github.com/orchestrator/taskrunner/internal/retry"
)

func newTestPoller(t *testing.T, targets []Target) (*Poller, string) {
	dir := t.TempDir()
	m := runner.NewManager(provider.NewBuiltinRegistry(), probe.New(nil, 0), retry.DefaultConfig(), filepath.Join(dir, "runners.json"), dir, 0)
	p := New(func() ([]Target, error) { return targets, nil }, probe.New(nil, time.Second), m, "")
	p.interval = 10 * time.Millisecond
	return p, dir
}

func TestPollTargetEmitsTaskCountsChangedOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	tasksPath := filepath.Join(dir, "tasks.md")
	if err := os.WriteFile(tasksPath, []byte("- [ ] 1 do a thing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := Target{ProjectPath: dir, SpecName: "spec-a", TasksPath: tasksPath, LogPath: filepath.Join(dir, "run.log")}
	p, _ := newTestPoller(t, []Target{target})

	p.pollTarget(target)
	select {
	case u := <-p.Updates():
		if u.Kind != KindTaskCountsChanged || u.Stats.Total != 1 {
			t.Fatalf("unexpected update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a TaskCountsChanged update")
	}
}

func TestPollTargetSkipsUnchangedMtime(t *testing.T) {
	dir := t.TempDir()
	tasksPath := filepath.Join(dir, "tasks.md")
	if err := os.WriteFile(tasksPath, []byte("- [ ] T1: do a thing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := Target{ProjectPath: dir, SpecName: "spec-a", TasksPath: tasksPath, LogPath: filepath.Join(dir, "run.log")}
	p, _ := newTestPoller(t, []Target{target})

	p.pollTarget(target)
	<-p.Updates()
	p.pollTarget(target)
	select {
	case u := <-p.Updates():
		t.Fatalf("expected no second update, got %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProjectSetChangedOnlyOnDiff(t *testing.T) {
	dir := t.TempDir()
	target := Target{ProjectPath: dir, SpecName: "spec-a", TasksPath: filepath.Join(dir, "tasks.md"), LogPath: filepath.Join(dir, "run.log")}
	p, _ := newTestPoller(t, []Target{target})

	p.refreshProjectSet([]Target{target})
	select {
	case u := <-p.Updates():
		if u.Kind != KindProjectSetChanged {
			t.Fatalf("expected ProjectSetChanged, got %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("expected initial ProjectSetChanged")
	}

	p.refreshProjectSet([]Target{target})
	select {
	case u := <-p.Updates():
		t.Fatalf("expected no diff on repeat, got %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	p, _ := newTestPoller(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
