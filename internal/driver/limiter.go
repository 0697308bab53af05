package driver

import "sync"

// SkipReason explains why TryAcquire refused a slot for a (project,spec).
type SkipReason string

const (
	SkipReasonConcurrency SkipReason = "concurrency"
	SkipReasonActive      SkipReason = "already-running"
)

// Limiter is a soft concurrency cap on simultaneously-running iterations,
// keyed by (project,spec). MaxParallel <= 0 disables the cap.
type Limiter struct {
	mu          sync.Mutex
	maxParallel int
	active      map[string]struct{}
}

// NewLimiter builds a Limiter with the given cap.
func NewLimiter(maxParallel int) *Limiter {
	return &Limiter{maxParallel: maxParallel, active: map[string]struct{}{}}
}

// TryAcquire reserves a slot for key. ok=false means the caller must not
// start; reason explains why.
func (l *Limiter) TryAcquire(key string) (ok bool, reason SkipReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, already := l.active[key]; already {
		return false, SkipReasonActive
	}
	if l.maxParallel > 0 && len(l.active) >= l.maxParallel {
		return false, SkipReasonConcurrency
	}
	l.active[key] = struct{}{}
	return true, ""
}

// Release frees key's slot. Safe to call even if TryAcquire was never
// called or already released for key.
func (l *Limiter) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, key)
}
