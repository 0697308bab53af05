package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const providerDefinitionFuncName = "ProviderDefinition"

// Definition is the static shape a plugin script describes itself with.
// Unlike the closed built-in set, a plugin provider's argv is assembled
// from this template rather than hand-written Go, so the plugin script
// itself stays a small declarative function.
type Definition struct {
	Name             string
	Models           []string
	Binary           string
	PromptFlag       string
	ModelFlag        string
	ExtraArgs        []string
	PromptPositional bool
}

type pluginProvider struct {
	def Definition
}

// FromDefinition adapts a Definition into a Provider.
func FromDefinition(def Definition) Provider {
	return &pluginProvider{def: def}
}

func (p *pluginProvider) Name() string { return p.def.Name }

func (p *pluginProvider) SupportedModels() []string {
	out := append([]string(nil), p.def.Models...)
	sort.Strings(out)
	return out
}

func (p *pluginProvider) BuildArgv(prompt, projectPath string, overrides map[string]string) ([]string, error) {
	if p.def.Binary == "" {
		return nil, fmt.Errorf("provider: plugin %s declares no binary", p.def.Name)
	}
	argv := []string{p.def.Binary}
	if p.def.PromptFlag != "" {
		argv = append(argv, p.def.PromptFlag, prompt)
	}
	if model, ok := overrides["model"]; ok && model != "" && p.def.ModelFlag != "" {
		argv = append(argv, p.def.ModelFlag, model)
	}
	argv = append(argv, p.def.ExtraArgs...)
	if p.def.PromptPositional {
		argv = append(argv, prompt)
	}
	return argv, nil
}

func (p *pluginProvider) HealthCheck(ctx context.Context, projectPath string) error {
	return nil
}

// LoadPlugins discovers provider definitions as .go scripts under dir
// (<project>/.orchestrator/providers/) and registers each with reg. Each
// script must declare a top-level ProviderDefinition() (map[string]any,
// error) function, evaluated with yaegi exactly as the teacher's skill
// module loader evaluates ModuleDefinitions(). This is always optional: the
// closed built-in set works with no plugin directory present.
func LoadPlugins(dir string, reg *Registry) error {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("provider: read %s: %w", trimmed, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		paths = append(paths, filepath.Join(trimmed, entry.Name()))
	}
	sort.Strings(paths)
	for _, path := range paths {
		def, err := loadDefinitionFile(path)
		if err != nil {
			return err
		}
		defCopy := def
		if err := reg.Register(def.Name, func() Provider { return FromDefinition(defCopy) }); err != nil {
			return fmt.Errorf("provider: register plugin from %s: %w", path, err)
		}
	}
	return nil
}

func loadDefinitionFile(path string) (Definition, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("provider: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return Definition{}, fmt.Errorf("provider: %s is empty", path)
	}

	i := interp.New(interp.Options{})
	i.Use(stdlib.Symbols)
	if _, err := i.EvalPath(path); err != nil {
		return Definition{}, fmt.Errorf("provider: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(providerDefinitionFuncName)
	if err != nil {
		return Definition{}, fmt.Errorf("provider: %s must define %s() (map[string]any, error): %w", path, providerDefinitionFuncName, err)
	}
	raw, err := invokeProviderDefinitionFunc(fnValue)
	if err != nil {
		return Definition{}, fmt.Errorf("provider: %s: %w", path, err)
	}
	return definitionFromMap(raw)
}

func invokeProviderDefinitionFunc(value reflect.Value) (map[string]any, error) {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", providerDefinitionFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return (map[string]any[, error])", providerDefinitionFuncName)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok && e != nil {
			return nil, e
		}
	}
	m, ok := results[0].Interface().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must return map[string]any", providerDefinitionFuncName)
	}
	return m, nil
}

func definitionFromMap(raw map[string]any) (Definition, error) {
	def := Definition{}
	if name, ok := raw["name"].(string); ok {
		def.Name = name
	}
	if def.Name == "" {
		return Definition{}, fmt.Errorf("plugin definition missing required \"name\"")
	}
	if binary, ok := raw["binary"].(string); ok {
		def.Binary = binary
	}
	if flag, ok := raw["prompt_flag"].(string); ok {
		def.PromptFlag = flag
	}
	if flag, ok := raw["model_flag"].(string); ok {
		def.ModelFlag = flag
	}
	if positional, ok := raw["prompt_positional"].(bool); ok {
		def.PromptPositional = positional
	}
	if models, ok := raw["models"].([]string); ok {
		def.Models = models
	} else if models, ok := raw["models"].([]any); ok {
		for _, m := range models {
			if s, ok := m.(string); ok {
				def.Models = append(def.Models, s)
			}
		}
	}
	if extra, ok := raw["extra_args"].([]string); ok {
		def.ExtraArgs = extra
	} else if extra, ok := raw["extra_args"].([]any); ok {
		for _, a := range extra {
			if s, ok := a.(string); ok {
				def.ExtraArgs = append(def.ExtraArgs, s)
			}
		}
	}
	return def, nil
}
