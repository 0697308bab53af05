// Package appstate implements the single-consumer view model that drains
// the poller's StateUpdate channel: the runner record set, per-spec task
// stats, a bounded per-spec log tail buffer, and the last-known project/spec
// membership. Every mutation happens on the one goroutine that calls Apply;
// the poller itself never touches this state.
package appstate

import (
	"sync"

	"github.com/orchestrator/taskrunner/internal/poller"
	"github.com/orchestrator/taskrunner/internal/runner"
	"github.com/orchestrator/taskrunner/internal/taskdoc"
)

// DefaultLogTailLines bounds the in-memory tail buffer kept per spec.
const DefaultLogTailLines = 200

type specKey struct {
	ProjectPath string
	SpecName    string
}

// SpecView is the per-spec projection a UI consumer reads.
type SpecView struct {
	ProjectPath  string
	SpecName     string
	Stats        taskdoc.Stats
	LogTail      []string
	LastCommit   string
	LastSubject  string
}

// AppState is read by the UI goroutine and written only by Apply, so callers
// must hold RLock/Lock (or use the read-only accessors, which do so
// internally) rather than reaching into the fields directly.
type AppState struct {
	mu sync.RWMutex

	specs    map[specKey]*SpecView
	runners  map[string]runner.Record
	projects []string

	maxTailLines int
}

// New builds an empty AppState. maxTailLines <= 0 uses DefaultLogTailLines.
func New(maxTailLines int) *AppState {
	if maxTailLines <= 0 {
		maxTailLines = DefaultLogTailLines
	}
	return &AppState{
		specs:        map[specKey]*SpecView{},
		runners:      map[string]runner.Record{},
		maxTailLines: maxTailLines,
	}
}

// Apply is the sole mutation entry point, called from the single consumer
// goroutine draining poller.Updates(). It never blocks and never panics on
// malformed input — an update for an unknown kind is simply ignored.
func (a *AppState) Apply(u poller.StateUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch u.Kind {
	case poller.KindTaskCountsChanged:
		v := a.specView(u.ProjectPath, u.SpecName)
		v.Stats = u.Stats

	case poller.KindLogAppended:
		v := a.specView(u.ProjectPath, u.SpecName)
		v.LogTail = appendTail(v.LogTail, string(u.LogTail), a.maxTailLines)

	case poller.KindCommitObserved:
		v := a.specView(u.ProjectPath, u.SpecName)
		v.LastCommit = u.Commit
		v.LastSubject = u.Subject

	case poller.KindRunnerStatusChanged:
		a.runners[u.RunnerID] = runner.Record{
			ID:       u.RunnerID,
			Status:   u.Status,
			ExitCode: u.ExitCode,
		}

	case poller.KindProjectSetChanged:
		a.projects = append([]string(nil), u.Projects...)
	}
}

func (a *AppState) specView(projectPath, specName string) *SpecView {
	key := specKey{projectPath, specName}
	v, ok := a.specs[key]
	if !ok {
		v = &SpecView{ProjectPath: projectPath, SpecName: specName}
		a.specs[key] = v
	}
	return v
}

// appendTail splits newText into lines and appends them to tail, dropping
// the oldest lines past maxLines.
func appendTail(tail []string, newText string, maxLines int) []string {
	if newText == "" {
		return tail
	}
	lines := splitLines(newText)
	tail = append(tail, lines...)
	if len(tail) > maxLines {
		tail = tail[len(tail)-maxLines:]
	}
	return tail
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// Spec returns a copy of the current view for (projectPath, specName), if
// any update has been applied for it yet.
func (a *AppState) Spec(projectPath, specName string) (SpecView, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.specs[specKey{projectPath, specName}]
	if !ok {
		return SpecView{}, false
	}
	return *v, true
}

// Specs returns a snapshot of every tracked spec view, in no particular
// order.
func (a *AppState) Specs() []SpecView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]SpecView, 0, len(a.specs))
	for _, v := range a.specs {
		out = append(out, *v)
	}
	return out
}

// Runner returns a copy of the last-known record for runnerID.
func (a *AppState) Runner(runnerID string) (runner.Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.runners[runnerID]
	return rec, ok
}

// Projects returns the last-known project membership.
func (a *AppState) Projects() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.projects...)
}

// Drain runs Apply in a loop until updates is closed. This is the
// documented single-consumer-thread pattern: call it from exactly one
// goroutine.
func Drain(updates <-chan poller.StateUpdate, state *AppState) {
	for u := range updates {
		state.Apply(u)
	}
}
