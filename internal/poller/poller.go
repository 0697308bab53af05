// Package poller implements the State Poller: a single background worker
// that watches tracked (project, spec) pairs and publishes coalesced state
// updates to a bounded, backpressure-aware channel.
package poller

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/orchestrator/taskrunner/internal/obslog"
	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/runner"
	"github.com/orchestrator/taskrunner/internal/taskdoc"
)

// Kind tags a StateUpdate's payload.
type Kind int

const (
	KindTaskCountsChanged Kind = iota
	KindLogAppended
	KindCommitObserved
	KindRunnerStatusChanged
	KindProjectSetChanged
)

// StateUpdate is the tagged union published by the poller.
type StateUpdate struct {
	Kind Kind

	ProjectPath string
	SpecName    string

	Stats   taskdoc.Stats
	LogTail []byte
	Commit  string
	Subject string

	RunnerID string
	Status   runner.Status
	ExitCode *int

	Projects []string
}

// Target is one tracked (project, spec) pair.
type Target struct {
	ProjectPath string
	SpecName    string
	TasksPath   string
	LogPath     string
}

// Membership returns the current set of targets to poll. The caller (the
// discovery walker) owns the scanning logic; the poller only diffs it
// against the previous tick.
type Membership func() ([]Target, error)

const (
	defaultChannelCapacity = 256
	defaultInterval        = 2 * time.Second
	defaultTailBytes       = 4096
)

type trackedState struct {
	lastTasksMtime time.Time
	lastLogOffset  int64
	lastLogMtime   time.Time
	lastHead       string
}

// Poller runs the periodic scan loop described by the State Poller.
type Poller struct {
	interval   time.Duration
	tailBytes  int64
	membership Membership
	probes     *probe.Probes
	manager    *runner.Manager

	out chan StateUpdate

	mu        sync.Mutex
	tracked   map[string]*trackedState
	projects  map[string]struct{}
	watcher   *fsnotify.Watcher
	watchRoot string
	wake      chan struct{}
}

// New builds a Poller. watchRoot may be empty to disable the fsnotify
// latency optimization; the periodic scan remains correct either way.
func New(membership Membership, probes *probe.Probes, manager *runner.Manager, watchRoot string) *Poller {
	p := &Poller{
		interval:   defaultInterval,
		tailBytes:  defaultTailBytes,
		membership: membership,
		probes:     probes,
		manager:    manager,
		out:        make(chan StateUpdate, defaultChannelCapacity),
		tracked:    map[string]*trackedState{},
		projects:   map[string]struct{}{},
		watchRoot:  watchRoot,
		wake:       make(chan struct{}, 1),
	}
	p.initWatcher()
	return p
}

// Updates returns the receive side of the outbound channel.
func (p *Poller) Updates() <-chan StateUpdate {
	return p.out
}

func (p *Poller) initWatcher() {
	if p.watchRoot == "" {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		obslog.Event("poller_watch_unavailable").With("root", p.watchRoot).With("error", err.Error()).Warn()
		return
	}
	if err := w.Add(p.watchRoot); err != nil {
		obslog.Event("poller_watch_unavailable").With("root", p.watchRoot).With("error", err.Error()).Warn()
		w.Close()
		return
	}
	p.watcher = w
	go p.watchLoop()
}

func (p *Poller) watchLoop() {
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				select {
				case p.wake <- struct{}{}:
				default:
				}
			}
		case _, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Run executes the poll loop at the configured interval until ctx is
// cancelled. It completes the current cycle before returning.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	if p.watcher != nil {
		defer p.watcher.Close()
	}
	for {
		p.cycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
			// fsnotify fired; scan immediately instead of waiting out T.
		}
	}
}

func key(projectPath, specName string) string {
	return projectPath + "\x00" + specName
}

func (p *Poller) cycle(ctx context.Context) {
	targets, err := p.membership()
	if err != nil {
		obslog.Event("poller_membership_error").With("error", err.Error()).Warn()
		return
	}
	p.refreshProjectSet(targets)
	for _, t := range targets {
		p.pollTarget(t)
	}
	for _, rec := range p.manager.HealthScan() {
		exitCode := rec.ExitCode
		p.publish(StateUpdate{
			Kind:     KindRunnerStatusChanged,
			RunnerID: rec.ID,
			Status:   rec.Status,
			ExitCode: exitCode,
		})
	}
}

// refreshProjectSet emits ProjectSetChanged only when membership actually
// differs from the previous cycle's set, per the documented diff-only rule.
func (p *Poller) refreshProjectSet(targets []Target) {
	current := map[string]struct{}{}
	for _, t := range targets {
		current[t.ProjectPath] = struct{}{}
	}

	p.mu.Lock()
	changed := len(current) != len(p.projects)
	if !changed {
		for proj := range current {
			if _, ok := p.projects[proj]; !ok {
				changed = true
				break
			}
		}
	}
	if changed {
		p.projects = current
	}
	p.mu.Unlock()

	if !changed {
		return
	}
	projects := make([]string, 0, len(current))
	for proj := range current {
		projects = append(projects, proj)
	}
	p.publish(StateUpdate{Kind: KindProjectSetChanged, Projects: projects})
}

func (p *Poller) pollTarget(t Target) {
	p.mu.Lock()
	st, ok := p.tracked[key(t.ProjectPath, t.SpecName)]
	if !ok {
		st = &trackedState{}
		p.tracked[key(t.ProjectPath, t.SpecName)] = st
	}
	p.mu.Unlock()

	if info, err := os.Stat(t.TasksPath); err == nil {
		if info.ModTime().After(st.lastTasksMtime) {
			st.lastTasksMtime = info.ModTime()
			if data, err := os.ReadFile(t.TasksPath); err == nil {
				tasks, _ := taskdoc.Parse(string(data))
				p.publish(StateUpdate{
					Kind:        KindTaskCountsChanged,
					ProjectPath: t.ProjectPath,
					SpecName:    t.SpecName,
					Stats:       taskdoc.Count(tasks),
				})
			}
		}
	}

	if info, err := os.Stat(t.LogPath); err == nil {
		if info.ModTime().After(st.lastLogMtime) {
			st.lastLogMtime = info.ModTime()
			p.manager.TouchActivity(t.ProjectPath, t.SpecName)
			data, newOffset, _, err := probe.TailFrom(t.LogPath, st.lastLogOffset)
			if err == nil {
				st.lastLogOffset = newOffset
				if len(data) > 0 {
					p.publish(StateUpdate{
						Kind:        KindLogAppended,
						ProjectPath: t.ProjectPath,
						SpecName:    t.SpecName,
						LogTail:     data,
					})
				}
			}
		}
	}

	if p.probes != nil {
		head, err := p.probes.GitHead(context.Background(), t.ProjectPath)
		if err == nil && head != st.lastHead {
			prev := st.lastHead
			st.lastHead = head
			if prev != "" {
				p.publish(StateUpdate{
					Kind:        KindCommitObserved,
					ProjectPath: t.ProjectPath,
					SpecName:    t.SpecName,
					Commit:      head,
				})
			}
		}
	}
}

// publish enforces the documented backpressure rule: TaskCountsChanged and
// LogAppended are last-writer-wins per (project,spec) and may be dropped
// from the buffer to make room; CommitObserved and RunnerStatusChanged are
// never dropped.
func (p *Poller) publish(u StateUpdate) {
	select {
	case p.out <- u:
		return
	default:
	}

	switch u.Kind {
	case KindTaskCountsChanged, KindLogAppended:
		if p.evictCoalescable(u) {
			select {
			case p.out <- u:
			default:
				obslog.Event("poller_update_dropped").With("kind", u.Kind).With("spec", u.SpecName).Warn()
			}
			return
		}
		obslog.Event("poller_update_dropped").With("kind", u.Kind).With("spec", u.SpecName).Warn()
	default:
		// Never drop commit/runner-status events: block briefly for room.
		select {
		case p.out <- u:
		case <-time.After(p.interval):
			obslog.Event("poller_update_blocked").With("kind", u.Kind).Warn()
			p.out <- u
		}
	}
}

// evictCoalescable drains one same-kind, same-(project,spec) update already
// sitting in the channel to make room for the newer one. The whole buffer is
// drained and searched; the oldest match is removed and the rest are put back
// in order. If nothing matches, nothing is evicted and the caller drops.
func (p *Poller) evictCoalescable(u StateUpdate) bool {
	buffered := make([]StateUpdate, 0, len(p.out))
	for {
		select {
		case existing := <-p.out:
			buffered = append(buffered, existing)
		default:
			goto drained
		}
	}
drained:
	evicted := false
	kept := buffered[:0]
	for _, existing := range buffered {
		if !evicted && existing.Kind == u.Kind && existing.ProjectPath == u.ProjectPath && existing.SpecName == u.SpecName {
			evicted = true
			continue
		}
		kept = append(kept, existing)
	}
	for _, existing := range kept {
		p.out <- existing
	}
	return evicted
}
