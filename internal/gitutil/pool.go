// Package gitutil wraps the git CLI with a concurrency-bounded pool shared
// by every filesystem probe and the commit gate, so git subprocess fan-out
// across many tracked projects never exceeds a fixed ceiling.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency bounds simultaneous git subprocesses across all
// tracked projects (§5 forbids unbounded subprocess fan-out).
const DefaultConcurrency = 8

// Pool bounds concurrent git invocations with a weighted semaphore. A nil
// *Pool runs commands unbounded; probe.New never holds one.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool builds a Pool allowing up to limit concurrent git subprocesses.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run executes git with args inside repo, bounded by the pool, and returns
// trimmed stdout. A nonzero exit surfaces stderr in the returned error.
func (p *Pool) Run(ctx context.Context, repo string, args ...string) (string, error) {
	if p != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer p.sem.Release(1)
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repo
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
