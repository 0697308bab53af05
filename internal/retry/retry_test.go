package retry

import (
	"testing"
	"time"
)

func TestBackoffMatchesDocumentedSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
	}
	for _, c := range cases {
		got := Backoff(c.n, cfg)
		if got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.n, got, c.want)
		}
	}
}

func TestBackoffRespectsCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cap = 15 * time.Second
	if got := Backoff(5, cfg); got > cfg.Cap {
		t.Fatalf("Backoff exceeded cap: %v > %v", got, cfg.Cap)
	}
}

func TestShouldRetryHonorsMaxRetries(t *testing.T) {
	cfg := DefaultConfig()
	if !ShouldRetry(2, cfg, false) {
		t.Fatal("expected retry permitted at n=2 < max_retries=3")
	}
	if ShouldRetry(3, cfg, false) {
		t.Fatal("expected no retry at n=max_retries")
	}
	if ShouldRetry(0, cfg, true) {
		t.Fatal("expected no retry after a successful exit")
	}
}
