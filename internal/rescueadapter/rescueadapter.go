// Package rescueadapter defines the external collaborator that attempts to
// convert uncommitted changes into a real commit when Signal A and Signal
// B both fail to find progress.
package rescueadapter

import "context"

// Result reports whether the rescue attempt believes it succeeded. The
// core never trusts this alone — it always re-verifies via a fresh commit
// count afterward.
type Result struct {
	OK     bool
	Detail string
}

// Adapter attempts to rescue uncommitted work for a project's spec.
type Adapter interface {
	Rescue(ctx context.Context, projectPath, specName string) (Result, error)
}
