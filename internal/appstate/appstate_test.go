package appstate

import (
	"testing"

	"github.com/orchestrator/taskrunner/internal/poller"
	"github.com/orchestrator/taskrunner/internal/runner"
	"github.com/orchestrator/taskrunner/internal/taskdoc"
)

func TestApplyTaskCountsChanged(t *testing.T) {
	a := New(0)
	a.Apply(poller.StateUpdate{
		Kind:        poller.KindTaskCountsChanged,
		ProjectPath: "/p",
		SpecName:    "s1",
		Stats:       taskdoc.Stats{Total: 3, Completed: 1},
	})
	v, ok := a.Spec("/p", "s1")
	if !ok || v.Stats.Total != 3 {
		t.Fatalf("expected stats applied, got ok=%v v=%+v", ok, v)
	}
}

func TestApplyLogAppendedBoundsTail(t *testing.T) {
	a := New(2)
	a.Apply(poller.StateUpdate{Kind: poller.KindLogAppended, ProjectPath: "/p", SpecName: "s1", LogTail: []byte("line1\nline2\n")})
	a.Apply(poller.StateUpdate{Kind: poller.KindLogAppended, ProjectPath: "/p", SpecName: "s1", LogTail: []byte("line3\n")})
	v, _ := a.Spec("/p", "s1")
	if len(v.LogTail) != 2 || v.LogTail[0] != "line2" || v.LogTail[1] != "line3" {
		t.Fatalf("expected bounded tail [line2 line3], got %v", v.LogTail)
	}
}

func TestApplyRunnerStatusChanged(t *testing.T) {
	a := New(0)
	code := 1
	a.Apply(poller.StateUpdate{Kind: poller.KindRunnerStatusChanged, RunnerID: "r1", Status: runner.StatusCrashed, ExitCode: &code})
	rec, ok := a.Runner("r1")
	if !ok || rec.Status != runner.StatusCrashed || rec.ExitCode == nil || *rec.ExitCode != 1 {
		t.Fatalf("unexpected runner record: ok=%v rec=%+v", ok, rec)
	}
}

func TestApplyProjectSetChangedReplacesMembership(t *testing.T) {
	a := New(0)
	a.Apply(poller.StateUpdate{Kind: poller.KindProjectSetChanged, Projects: []string{"/a", "/b"}})
	if got := a.Projects(); len(got) != 2 {
		t.Fatalf("expected 2 projects, got %v", got)
	}
	a.Apply(poller.StateUpdate{Kind: poller.KindProjectSetChanged, Projects: []string{"/a"}})
	if got := a.Projects(); len(got) != 1 {
		t.Fatalf("expected membership replaced, got %v", got)
	}
}

func TestDrainConsumesUntilChannelClosed(t *testing.T) {
	ch := make(chan poller.StateUpdate, 1)
	a := New(0)
	ch <- poller.StateUpdate{Kind: poller.KindTaskCountsChanged, ProjectPath: "/p", SpecName: "s1", Stats: taskdoc.Stats{Total: 1}}
	close(ch)
	Drain(ch, a)
	v, ok := a.Spec("/p", "s1")
	if !ok || v.Stats.Total != 1 {
		t.Fatalf("expected Drain to apply the queued update, got ok=%v v=%+v", ok, v)
	}
}
