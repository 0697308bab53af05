package provider

import (
	"context"
	"sort"
)

const NameGemini = "gemini"

var geminiModels = []string{"gemini-2.5-pro", "gemini-2.5-flash"}

// Gemini builds argv for the Gemini CLI's non-interactive prompt mode.
type Gemini struct{}

func NewGemini() *Gemini { return &Gemini{} }

func (g *Gemini) Name() string { return NameGemini }

func (g *Gemini) SupportedModels() []string {
	out := append([]string(nil), geminiModels...)
	sort.Strings(out)
	return out
}

// BuildArgv produces: gemini -p <prompt> [--model M] --yolo
// --output-format json.
func (g *Gemini) BuildArgv(prompt, projectPath string, overrides map[string]string) ([]string, error) {
	argv := []string{"gemini", "-p", prompt}
	if model, ok := overrides["model"]; ok && model != "" {
		argv = append(argv, "--model", model)
	}
	argv = append(argv, "--yolo", "--output-format", "json")
	return argv, nil
}

func (g *Gemini) HealthCheck(ctx context.Context, projectPath string) error {
	return nil
}
