package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orchestrator/taskrunner/internal/taskdoc"
)

type fakeFS map[string]bool

func (f fakeFS) Exists(path string) bool { return f[path] }

func newTestDriver(t *testing.T, fs taskdoc.FileExister) *Driver {
	v, err := taskdoc.NewValidator(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &Driver{validator: v, fs: fs, noCommitLimit: DefaultNoCommitLimit}
}

func TestPhaseOneReturnsIterationDoneWhenAllCompleted(t *testing.T) {
	dir := t.TempDir()
	tasksPath := filepath.Join(dir, "tasks.md")
	text := "- [x] 1 done\n  - **Files**:\n    - src/a.go\n"
	if err := os.WriteFile(tasksPath, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	d := newTestDriver(t, fakeFS{"src/a.go": true})

	done, stats, err := d.phaseOne(IterationRequest{TasksPath: tasksPath}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("expected IterationDone when stats.total == stats.completed")
	}
	if stats.Completed != 1 || stats.Total != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPhaseOneResetsUnimplementedTasks(t *testing.T) {
	dir := t.TempDir()
	tasksPath := filepath.Join(dir, "tasks.md")
	text := "- [x] 1 done\n  - **Files**:\n    - src/missing.go\n"
	if err := os.WriteFile(tasksPath, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	d := newTestDriver(t, fakeFS{})

	done, stats, err := d.phaseOne(IterationRequest{TasksPath: tasksPath}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("a task reset to in_progress must not report IterationDone")
	}
	if stats.InProgress != 1 || stats.Completed != 0 {
		t.Fatalf("expected the completed task to be reset, got %+v", stats)
	}

	rewritten, err := os.ReadFile(tasksPath)
	if err != nil {
		t.Fatal(err)
	}
	tasks, _ := taskdoc.Parse(string(rewritten))
	if tasks[0].Status != taskdoc.StatusInProgress {
		t.Fatalf("expected the on-disk file to be rewritten, got status %v", tasks[0].Status)
	}
}

func TestPhaseOneFailsClosedOnUnparseableTasks(t *testing.T) {
	dir := t.TempDir()
	tasksPath := filepath.Join(dir, "tasks.md")
	if err := os.WriteFile(tasksPath, []byte("- [?] broken checkbox\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := newTestDriver(t, fakeFS{})

	_, _, err := d.phaseOne(IterationRequest{TasksPath: tasksPath}, 0)
	if err == nil {
		t.Fatal("expected TaskFormatInvalid for an unparseable checkbox")
	}
}

func TestPromotableRequiresAllAcceptanceChecked(t *testing.T) {
	d := newTestDriver(t, fakeFS{"src/a.go": true})
	task := &taskdoc.Task{
		Status: taskdoc.StatusInProgress,
		Files:  []string{"src/a.go"},
		Acceptance: []taskdoc.AcceptanceItem{
			{Status: taskdoc.StatusPending, Text: "works"},
		},
	}
	if d.promotable(task) {
		t.Fatal("a task with an unchecked acceptance item must not be promotable")
	}
	task.Acceptance[0].Status = taskdoc.StatusCompleted
	if !d.promotable(task) {
		t.Fatal("expected promotable once files exist and acceptance is satisfied")
	}
}

func TestPromotableRejectsMockOnlyFiles(t *testing.T) {
	d := newTestDriver(t, fakeFS{"tests/a_test.go": true})
	task := &taskdoc.Task{
		Status: taskdoc.StatusInProgress,
		Files:  []string{"tests/a_test.go"},
	}
	if d.promotable(task) {
		t.Fatal("a task backed only by mock/test files must not be promotable")
	}
}

func TestLimiterEnforcesMaxParallel(t *testing.T) {
	l := NewLimiter(1)
	ok, _ := l.TryAcquire("p/s1")
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if ok, reason := l.TryAcquire("p/s2"); ok || reason != SkipReasonConcurrency {
		t.Fatalf("expected concurrency skip, got ok=%v reason=%v", ok, reason)
	}
	l.Release("p/s1")
	if ok, _ := l.TryAcquire("p/s2"); !ok {
		t.Fatal("expected acquire to succeed after release")
	}
}

func TestLimiterRejectsDuplicateKey(t *testing.T) {
	l := NewLimiter(0)
	l.TryAcquire("p/s1")
	if ok, reason := l.TryAcquire("p/s1"); ok || reason != SkipReasonActive {
		t.Fatalf("expected already-running skip, got ok=%v reason=%v", ok, reason)
	}
}
