// Package retry implements the pure exponential-backoff policy the Runner
// Manager consults before restarting a crashed subprocess. It never sleeps
// or schedules anything itself — that responsibility stays with the caller.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config mirrors the recognized retry.* configuration keys.
type Config struct {
	Enabled    bool
	Base       time.Duration
	Multiplier float64
	MaxRetries int
	Cap        time.Duration
}

// DefaultConfig matches the documented defaults: base=5s, multiplier=2.0,
// max_retries=3, cap=300s.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Base:       5 * time.Second,
		Multiplier: 2.0,
		MaxRetries: 3,
		Cap:        300 * time.Second,
	}
}

// Backoff returns min(base * multiplier^n, cap) as a pure function of
// (n, cfg). It is backed by backoff.ExponentialBackOff purely as a
// calculator: only Reset and NextBackOff (n+1 times) are called, never the
// library's own Retry loop, so the Runner Manager keeps owning sleep and
// cancellation.
func Backoff(n int, cfg Config) time.Duration {
	if n < 0 {
		n = 0
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.Base
	eb.Multiplier = cfg.Multiplier
	eb.MaxInterval = cfg.Cap
	eb.RandomizationFactor = 0
	eb.Reset()

	var d time.Duration
	for i := 0; i <= n; i++ {
		d = eb.NextBackOff()
	}
	if cfg.Cap > 0 && d > cfg.Cap {
		d = cfg.Cap
	}
	return d
}

// ShouldRetry reports whether another attempt is permitted given the
// current retry count and whether the last exit was a success.
func ShouldRetry(n int, cfg Config, lastExitSuccess bool) bool {
	return cfg.Enabled && n < cfg.MaxRetries && !lastExitSuccess
}
