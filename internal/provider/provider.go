// Package provider implements the AI coding CLI adapters the Runner
// Manager spawns: a closed built-in set (Codex, Claude CLI, Gemini) plus an
// optional yaegi-evaluated plugin extension point for additional
// providers.
package provider

import "context"

// Provider builds the argv for a supervised subprocess and optionally
// verifies its own preconditions before the Runner Manager spawns a child.
type Provider interface {
	Name() string
	SupportedModels() []string
	BuildArgv(prompt, projectPath string, overrides map[string]string) ([]string, error)
	HealthCheck(ctx context.Context, projectPath string) error
}
