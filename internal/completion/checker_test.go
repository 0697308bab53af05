package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/probeadapter"
	"github.com/orchestrator/taskrunner/internal/rescueadapter"
)

type fakeProbeAdapter struct {
	results []probeadapter.Result
	errs    []error
	calls   int
}

func (f *fakeProbeAdapter) Probe(ctx context.Context, projectPath string) (probeadapter.Result, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		return probeadapter.Result{}, errors.New("no more scripted results")
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.results[i], err
}

type fakeRescuer struct {
	ok  bool
	err error
}

func (f *fakeRescuer) Rescue(ctx context.Context, projectPath, specName string) (rescueadapter.Result, error) {
	return rescueadapter.Result{OK: f.ok}, f.err
}

func fastConfig() Config {
	return Config{MaxProbes: 3, ProbeInterval: time.Millisecond, ProbeTimeout: time.Second, FinalRescueAttempt: true}
}

func TestCheckFallsThroughToTimeoutWithoutRepoOrAdapters(t *testing.T) {
	dir := t.TempDir()
	probes := probe.New(nil, time.Second)
	c := New(probes, nil, nil, fastConfig())
	// NewCommitCount will fail against a non-repo dir and report 0, false;
	// this test only exercises the no-probe-adapter short-circuit path.
	res, err := c.Check(context.Background(), dir, "spec-a", "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if res.Complete {
		t.Fatal("expected no completion without a real git repo or probe adapter")
	}
	if res.StatusCode != StatusTimeout {
		t.Fatalf("expected timeout fallthrough, got %v", res.StatusCode)
	}
}

func TestCheckStopsWhenLLMReportsDone(t *testing.T) {
	fp := &fakeProbeAdapter{results: []probeadapter.Result{
		{Status: probeadapter.StatusWorking, ShouldContinue: false},
	}}
	c := New(probe.New(nil, time.Second), fp, nil, fastConfig())
	res, err := c.Check(context.Background(), t.TempDir(), "spec-a", "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != StatusLLMStopped {
		t.Fatalf("expected llm_stopped, got %v", res.StatusCode)
	}
}

func TestCheckExhaustsProbesOnRepeatedErrors(t *testing.T) {
	fp := &fakeProbeAdapter{
		results: []probeadapter.Result{{}, {}, {}},
		errs:    []error{errors.New("boom"), errors.New("boom"), errors.New("boom")},
	}
	cfg := fastConfig()
	cfg.MaxProbes = 3
	cfg.FinalRescueAttempt = false
	c := New(probe.New(nil, time.Second), fp, nil, cfg)
	res, err := c.Check(context.Background(), t.TempDir(), "spec-a", "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != StatusProbeError {
		t.Fatalf("expected probe_error, got %v", res.StatusCode)
	}
}
