// Command orchestrator-status is a reference consumer of the poller's
// StateUpdate channel: a single-screen live view of every discovered
// spec's task counts, head commit, and last log lines. Runner statuses are
// not shown. It imports
// the supervision core only through the public channel/interfaces the core
// exposes, the same way any other consumer would.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/orchestrator/taskrunner/internal/appstate"
	"github.com/orchestrator/taskrunner/internal/discovery"
	"github.com/orchestrator/taskrunner/internal/obslog"
	"github.com/orchestrator/taskrunner/internal/orchconfig"
	"github.com/orchestrator/taskrunner/internal/poller"
	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/provider"
	"github.com/orchestrator/taskrunner/internal/retry"
	"github.com/orchestrator/taskrunner/internal/runner"
)

func main() {
	workspaceRoot := flag.String("workspace-root", ".", "root directory to scan for projects")
	configPath := flag.String("config", "", "path to config.yaml (defaults to <workspace-root>/.orchestrator/config.yaml)")
	flag.Parse()

	absRoot, err := filepath.Abs(*workspaceRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve workspace root: %v\n", err)
		os.Exit(1)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(absRoot, ".orchestrator", "config.yaml")
	}
	cfg, err := orchconfig.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := obslog.Init("", 0, 0); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	walker := discovery.New(absRoot, cfg.WorkflowDirName, cfg.TasksFilename)
	probes := probe.New(nil, 0)
	manager := runner.NewManager(provider.NewBuiltinRegistry(), probes, retry.DefaultConfig(), filepath.Join(absRoot, ".orchestrator", "runners.json"), filepath.Join(absRoot, ".orchestrator", "logs"), cfg.ActivityTimeout())

	p := poller.New(walker.Membership, probes, manager, absRoot)
	state := appstate.New(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	go appstate.Drain(p.Updates(), state)

	m := model{state: state}
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "status view: %v\n", err)
		os.Exit(1)
	}
}

type tickMsg time.Time

type model struct {
	state *appstate.AppState
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		if v.String() == "q" || v.String() == "ctrl+c" || v.String() == "esc" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tick()
	}
	return m, nil
}

func (m model) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Render
	body := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Render
	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	specs := m.state.Specs()
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].ProjectPath != specs[j].ProjectPath {
			return specs[i].ProjectPath < specs[j].ProjectPath
		}
		return specs[i].SpecName < specs[j].SpecName
	})

	var b strings.Builder
	b.WriteString(head("orchestrator status") + "  " + body("press q to quit") + "\n\n")

	if len(specs) == 0 {
		b.WriteString(body("no specs discovered yet\n"))
		return b.String()
	}

	for _, s := range specs {
		title := fmt.Sprintf("%s / %s", filepath.Base(s.ProjectPath), s.SpecName)
		stats := fmt.Sprintf("pending=%d in_progress=%d completed=%d total=%d",
			s.Stats.Pending, s.Stats.InProgress, s.Stats.Completed, s.Stats.Total)
		var tail string
		if n := len(s.LogTail); n > 0 {
			start := n - 3
			if start < 0 {
				start = 0
			}
			tail = strings.Join(s.LogTail[start:], "\n")
		}
		content := head(title) + "\n" + body(stats)
		if s.LastCommit != "" {
			content += "\n" + body("head="+shortHash(s.LastCommit))
		}
		if tail != "" {
			content += "\n" + body(tail)
		}
		b.WriteString(box.Render(content) + "\n")
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}
