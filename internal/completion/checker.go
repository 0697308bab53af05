// Package completion implements the Smart Completion Checker: the
// multi-signal decision (commits → session probe → commit rescue) that
// replaces a naive "run subprocess, check commits" circuit breaker.
package completion

import (
	"context"
	"time"

	"github.com/orchestrator/taskrunner/internal/obslog"
	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/probeadapter"
	"github.com/orchestrator/taskrunner/internal/rescueadapter"
)

// StatusCode is the terminal classifier of a Result.
type StatusCode string

const (
	StatusCommitsCreated StatusCode = "commits_created"
	StatusRescued        StatusCode = "rescued"
	StatusRescuedFinal   StatusCode = "rescued_final"
	StatusNothingToDo    StatusCode = "nothing_to_do"
	StatusTimeout        StatusCode = "timeout"
	StatusProbeError     StatusCode = "probe_error"
	StatusLLMStopped     StatusCode = "llm_stopped"
)

// Result is the outcome of a single Check call.
type Result struct {
	Complete   bool
	NewCommits int
	ProbesUsed int
	Rescued    bool
	StatusCode StatusCode
}

// Config holds the tunables supplied at construction time.
type Config struct {
	MaxProbes          int
	ProbeInterval      time.Duration
	ProbeTimeout       time.Duration
	FinalRescueAttempt bool
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxProbes:          5,
		ProbeInterval:      30 * time.Second,
		ProbeTimeout:       60 * time.Second,
		FinalRescueAttempt: true,
	}
}

// Checker decides whether an iteration produced real progress.
type Checker struct {
	probes  *probe.Probes
	probe   probeadapter.Adapter
	rescuer rescueadapter.Adapter
	cfg     Config
}

// New builds a Checker. probeAdapter/rescuer may be nil, in which case
// Signal B/C are skipped and the checker falls through to timeout once
// Signal A finds nothing.
func New(probes *probe.Probes, probeAdapter probeadapter.Adapter, rescuer rescueadapter.Adapter, cfg Config) *Checker {
	return &Checker{probes: probes, probe: probeAdapter, rescuer: rescuer, cfg: cfg}
}

// Check runs the full signal sequence for one iteration's baseline commit.
func (c *Checker) Check(ctx context.Context, projectPath, specName, baseline string) (Result, error) {
	if n, ok := c.signalA(ctx, projectPath, baseline); ok {
		return Result{Complete: true, NewCommits: n, StatusCode: StatusCommitsCreated}, nil
	}

	probesUsed := 0
	consecutiveFailures := 0
	for probesUsed < c.cfg.MaxProbes {
		select {
		case <-ctx.Done():
			return Result{StatusCode: StatusTimeout}, ctx.Err()
		default:
		}

		if c.probe == nil {
			break
		}
		probesUsed++
		res, err := c.runProbe(ctx, projectPath)
		if err != nil || res.Status == probeadapter.StatusError {
			consecutiveFailures++
			obslog.Event("completion_probe_failed").With("project", projectPath).With("spec", specName).Warn()
			if consecutiveFailures >= c.cfg.MaxProbes {
				return Result{ProbesUsed: probesUsed, StatusCode: StatusProbeError}, nil
			}
			if !c.wait(ctx) {
				return Result{ProbesUsed: probesUsed, StatusCode: StatusTimeout}, nil
			}
			continue
		}
		consecutiveFailures = 0

		if !res.ShouldContinue {
			return Result{ProbesUsed: probesUsed, StatusCode: StatusLLMStopped}, nil
		}

		switch res.Status {
		case probeadapter.StatusComplete:
			if result, rescued := c.signalC(ctx, projectPath, specName, baseline, probesUsed); rescued {
				return result, nil
			}
			// Rescue attempted and failed; keep probing per the loop contract.
		case probeadapter.StatusWorking, probeadapter.StatusWaiting:
			// fallthrough to interval wait below
		}

		if !c.wait(ctx) {
			return Result{ProbesUsed: probesUsed, StatusCode: StatusTimeout}, nil
		}
	}

	if c.cfg.FinalRescueAttempt {
		if result, rescued := c.signalC(ctx, projectPath, specName, baseline, probesUsed); rescued {
			result.StatusCode = StatusRescuedFinal
			return result, nil
		}
	}
	return Result{ProbesUsed: probesUsed, StatusCode: StatusTimeout}, nil
}

func (c *Checker) signalA(ctx context.Context, projectPath, baseline string) (int, bool) {
	n, err := c.probes.NewCommitCount(ctx, projectPath, baseline)
	if err != nil {
		return 0, false
	}
	return n, n > 0
}

// signalC invokes the rescue adapter and re-verifies via a fresh Signal A
// check; the core never trusts ok=true on its own.
func (c *Checker) signalC(ctx context.Context, projectPath, specName, baseline string, probesUsed int) (Result, bool) {
	if c.rescuer == nil {
		return Result{}, false
	}
	dirty, err := c.probes.DirtyPaths(ctx, projectPath)
	if err != nil || len(dirty) == 0 {
		return Result{}, false
	}
	if _, err := c.rescuer.Rescue(ctx, projectPath, specName); err != nil {
		return Result{}, false
	}
	n, ok := c.signalA(ctx, projectPath, baseline)
	if !ok {
		return Result{}, false
	}
	return Result{Complete: true, NewCommits: n, ProbesUsed: probesUsed, Rescued: true, StatusCode: StatusRescued}, true
}

func (c *Checker) runProbe(ctx context.Context, projectPath string) (probeadapter.Result, error) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	return c.probe.Probe(probeCtx, projectPath)
}

func (c *Checker) wait(ctx context.Context) bool {
	select {
	case <-time.After(c.cfg.ProbeInterval):
		return true
	case <-ctx.Done():
		return false
	}
}
