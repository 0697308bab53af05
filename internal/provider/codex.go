package provider

import (
	"context"
	"sort"
)

const NameCodex = "codex"

var codexModels = []string{"gpt-5.1-codex", "gpt-5.1-codex-mini", "o3"}

// Codex builds argv for the Codex CLI's non-interactive exec mode.
type Codex struct{}

func NewCodex() *Codex { return &Codex{} }

func (c *Codex) Name() string { return NameCodex }

func (c *Codex) SupportedModels() []string {
	out := append([]string(nil), codexModels...)
	sort.Strings(out)
	return out
}

// BuildArgv produces: codex e --dangerously-bypass-approvals-and-sandbox
// [--model M] [-c key=value ...] <prompt>.
func (c *Codex) BuildArgv(prompt, projectPath string, overrides map[string]string) ([]string, error) {
	argv := []string{"codex", "e", "--dangerously-bypass-approvals-and-sandbox"}
	if model, ok := overrides["model"]; ok && model != "" {
		argv = append(argv, "--model", model)
	}
	argv = append(argv, configOverrideFlags(overrides)...)
	argv = append(argv, prompt)
	return argv, nil
}

func (c *Codex) HealthCheck(ctx context.Context, projectPath string) error {
	return nil
}

// configOverrideFlags renders every override key except "model" as a
// "-c key=value" pair, sorted for deterministic argv construction.
func configOverrideFlags(overrides map[string]string) []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if k == "model" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var flags []string
	for _, k := range keys {
		flags = append(flags, "-c", k+"="+overrides[k])
	}
	return flags
}
