// Package probe is the thin, always-timeout-bounded layer over the OS that
// every other component reads ground truth through: git state, file
// mtimes, log tails, and process liveness.
package probe

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/orchestrator/taskrunner/internal/gitutil"
)

// DefaultTimeout is applied to every git probe call; an earlier deadline on
// the caller's context still takes precedence.
const DefaultTimeout = 10 * time.Second

// Probes groups the git-backed filesystem queries behind gitutil's bounded
// pool.
type Probes struct {
	pool    *gitutil.Pool
	timeout time.Duration
}

// New builds a Probes using pool for git subprocess concurrency bounding.
// A nil pool is replaced by one of gitutil.DefaultConcurrency slots, and a
// zero timeout defaults to DefaultTimeout.
func New(pool *gitutil.Pool, timeout time.Duration) *Probes {
	if pool == nil {
		pool = gitutil.NewPool(gitutil.DefaultConcurrency)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probes{pool: pool, timeout: timeout}
}

func (p *Probes) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// GitHead returns the current HEAD commit hash of repo.
func (p *Probes) GitHead(ctx context.Context, repo string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.pool.Run(ctx, repo, "rev-parse", "HEAD")
}

// NewCommitCount returns the number of commits reachable from HEAD but not
// from baseline.
func (p *Probes) NewCommitCount(ctx context.Context, repo, baseline string) (int, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	out, err := p.pool.Run(ctx, repo, "rev-list", baseline+"..HEAD", "--count")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, convErr
	}
	return n, nil
}

// WorkingTreeClean reports whether repo has no staged or unstaged changes.
func (p *Probes) WorkingTreeClean(ctx context.Context, repo string) (bool, error) {
	paths, err := p.DirtyPaths(ctx, repo)
	if err != nil {
		return false, err
	}
	return len(paths) == 0, nil
}

// DirtyPaths lists paths with uncommitted changes, porcelain-parsed.
func (p *Probes) DirtyPaths(ctx context.Context, repo string) ([]string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	out, err := p.pool.Run(ctx, repo, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 4 {
			continue
		}
		paths = append(paths, strings.TrimSpace(line[3:]))
	}
	return paths, nil
}
