package provider

import (
	"context"
	"sort"
)

const NameClaudeCLI = "claude"

var claudeModels = []string{"sonnet", "opus", "haiku"}

// ClaudeCLI builds argv for the Claude Code CLI's non-interactive print
// mode.
type ClaudeCLI struct{}

func NewClaudeCLI() *ClaudeCLI { return &ClaudeCLI{} }

func (c *ClaudeCLI) Name() string { return NameClaudeCLI }

func (c *ClaudeCLI) SupportedModels() []string {
	out := append([]string(nil), claudeModels...)
	sort.Strings(out)
	return out
}

// BuildArgv produces: claude -p <prompt> [--model M]
// --dangerously-skip-permissions.
func (c *ClaudeCLI) BuildArgv(prompt, projectPath string, overrides map[string]string) ([]string, error) {
	argv := []string{"claude", "-p", prompt}
	if model, ok := overrides["model"]; ok && model != "" {
		argv = append(argv, "--model", model)
	}
	argv = append(argv, "--dangerously-skip-permissions")
	return argv, nil
}

func (c *ClaudeCLI) HealthCheck(ctx context.Context, projectPath string) error {
	return nil
}
