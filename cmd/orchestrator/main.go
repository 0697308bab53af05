// Command orchestrator is the non-interactive driver CLI: it runs one
// (project, spec) pair through the three-phase iteration loop until the
// spec is done, stalled, or fails a precondition, then exits with a
// classifier-stable code.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/orchestrator/taskrunner/internal/commitgate"
	"github.com/orchestrator/taskrunner/internal/completion"
	"github.com/orchestrator/taskrunner/internal/driver"
	"github.com/orchestrator/taskrunner/internal/obslog"
	"github.com/orchestrator/taskrunner/internal/orchconfig"
	"github.com/orchestrator/taskrunner/internal/orcherr"
	"github.com/orchestrator/taskrunner/internal/probe"
	"github.com/orchestrator/taskrunner/internal/probeadapter"
	"github.com/orchestrator/taskrunner/internal/provider"
	"github.com/orchestrator/taskrunner/internal/rescueadapter"
	"github.com/orchestrator/taskrunner/internal/retry"
	"github.com/orchestrator/taskrunner/internal/runner"
	"github.com/orchestrator/taskrunner/internal/store"
	"github.com/orchestrator/taskrunner/internal/taskdoc"
)

// exit codes follow the documented classifier contract: 0 on IterationDone,
// a distinct nonzero code per surfaced error kind otherwise.
const (
	exitOK                 = 0
	exitStalled            = 10
	exitTaskFormatInvalid  = 11
	exitPreconditionFailed = 12
	exitOther              = 13
)

// orchestratorVersion is this build's version string, reported by the
// version subcommand and compared against a prior check-update's cached
// result on run.
const orchestratorVersion = "0.5.0"

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Println(orchestratorVersion)
			return
		case "check-update":
			if err := runCheckUpdate(); err != nil {
				die(exitOther, "check-update: %v", err)
			}
			return
		case "run":
			args = args[1:]
		}
	}
	runIteration(args)
}

// runIteration is the original flat-flag "run" behavior: the bare command
// with no subcommand keyword still works, unchanged, for existing callers.
func runIteration(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	project := fs.String("project", "", "project root directory")
	specName := fs.String("spec", "", "spec name (subdirectory under the project's workflow dir)")
	providerName := fs.String("provider", provider.NameCodex, "provider name: codex, claude, gemini, or a loaded plugin")
	model := fs.String("model", "", "model override passed to the provider")
	configPath := fs.String("config", "", "path to the orchestrator config.yaml (defaults to <project>/.orchestrator/config.yaml)")
	dryRun := fs.Bool("dry-run", false, "load config, run the commit-gate recovery sweep and restore runner state, then exit without spawning a subprocess (task and working-tree preconditions are not checked)")
	refreshCache := fs.Bool("refresh-cache", false, "log a cache-refresh request (this command keeps no discovery cache, so nothing is invalidated)")
	sets := keyValueFlag{}
	fs.Var(&sets, "set", "provider config override (key=value, repeatable)")
	fs.Parse(args)

	if strings.TrimSpace(*project) == "" || strings.TrimSpace(*specName) == "" {
		die(exitOther, "--project and --spec are required")
	}

	absProject, err := filepath.Abs(*project)
	if err != nil {
		die(exitOther, "resolve project dir: %v", err)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(absProject, ".orchestrator", "config.yaml")
	}
	if err := orchconfig.EnsureDefault(cfgPath); err != nil {
		die(exitOther, "ensure default config: %v", err)
	}
	cfg, err := orchconfig.Load(cfgPath)
	if err != nil {
		die(exitOther, "load config: %v", err)
	}

	logDir := filepath.Join(absProject, cfg.WorkflowDirName, *specName, "logs")
	if err := obslog.Init(filepath.Join(logDir, "orchestrator.jsonl"), 64<<20, 5); err != nil {
		die(exitOther, "init logger: %v", err)
	}
	defer obslog.Sync()

	if *refreshCache {
		// The discovery cache lives one level up from any single spec run;
		// a single-spec invocation has nothing of its own to invalidate,
		// so the flag only records the request in the log.
		obslog.Event("refresh_cache_requested").With("project", absProject).Info()
	}

	if recovered, err := commitgate.RecoverySweep(absProject); err != nil {
		obslog.Event("recovery_sweep_failed").With("error", err.Error()).Warn()
	} else if recovered {
		fmt.Fprintln(os.Stderr, "recovered a leftover commit gate from a prior crashed run")
	}

	tasksPath := filepath.Join(absProject, cfg.WorkflowDirName, *specName, cfg.TasksFilename)

	validator, err := taskdoc.NewValidator(cfg.MockOnlyPathPatterns)
	if err != nil {
		die(exitOther, "build validator: %v", err)
	}

	probes := probe.New(nil, 0)
	registry := provider.NewBuiltinRegistry()

	retryCfg := retry.Config{
		Enabled:    true,
		Base:       asSeconds(cfg.Retry.BaseBackoffS),
		Multiplier: cfg.Retry.Multiplier,
		MaxRetries: cfg.Retry.MaxRetries,
		Cap:        asSeconds(cfg.Retry.CapS),
	}

	statePath := filepath.Join(absProject, cfg.WorkflowDirName, "runners.json")
	manager := runner.NewManager(registry, probes, retryCfg, statePath, logDir, cfg.ActivityTimeout())
	if err := manager.Restore(cfg.Hash()); err != nil {
		obslog.Event("runner_restore_failed").With("error", err.Error()).Warn()
	}

	checker := completion.New(probes, probeadapter.NewClaudeCLIAdapter(), rescueadapter.NewScriptAdapter(), completion.Config{
		MaxProbes:          cfg.Completion.MaxProbes,
		ProbeInterval:      asSeconds(cfg.Completion.ProbeIntervalS),
		ProbeTimeout:       asSeconds(cfg.Completion.ProbeTimeoutS),
		FinalRescueAttempt: cfg.Completion.FinalRescue,
	})

	drv := driver.New(validator, manager, probes, checker, probe.OSFileExister{}, nil)

	noticeUpdateIfCached()

	if *dryRun {
		fmt.Println("dry run: setup only, no subprocess will be spawned")
		os.Exit(exitOK)
	}

	overrides := map[string]string{}
	for k, v := range cfg.ProviderConfigOverrides[*providerName] {
		overrides[k] = v
	}
	for k, v := range sets {
		overrides[k] = v
	}
	req := driver.IterationRequest{
		ProjectPath:  absProject,
		SpecName:     *specName,
		TasksPath:    tasksPath,
		LogDir:       logDir,
		ProviderName: *providerName,
		Model:        *model,
		Overrides:    overrides,
		ConfigHash:   cfg.Hash(),
		Prompt:       implementationPrompt(*specName),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := drv.Run(ctx, req)
	if err != nil {
		if kind, ok := orcherr.KindOf(err); ok {
			switch kind {
			case orcherr.KindStalled:
				fmt.Fprintf(os.Stderr, "stalled: %v\n", err)
				os.Exit(exitStalled)
			case orcherr.KindTaskFormatInvalid:
				fmt.Fprintf(os.Stderr, "task_format_invalid: %v\n", err)
				os.Exit(exitTaskFormatInvalid)
			case orcherr.KindPreconditionFailed:
				fmt.Fprintf(os.Stderr, "precondition_failed: %v\n", err)
				os.Exit(exitPreconditionFailed)
			}
		}
		die(exitOther, "%v", err)
	}

	fmt.Printf("outcome=%s iterations=%d stats=%+v\n", result.Outcome, result.Iterations, result.LastStats)
	os.Exit(exitOK)
}

func asSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func implementationPrompt(specName string) string {
	return fmt.Sprintf("Work through the pending and in-progress tasks for spec %q. "+
		"Implement code only; do not edit tasks.md. Commit your work when a task is complete.", specName)
}

// updateCheckCache is the on-disk shape of a prior check-update invocation,
// persisted via the same atomic-write primitive the runner state file uses.
type updateCheckCache struct {
	CheckedAt     time.Time `json:"checked_at"`
	LatestVersion string    `json:"latest_version"`
}

// updateCachePath is global to the machine's pipx-style install, not the
// per-project workflow directory: the version check is about the binary,
// not any one project.
func updateCachePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".orchestrator", "update_check.json"), nil
}

// runCheckUpdate is the explicit, user-invoked check: local-only, no
// network call. It compares the running binary's version against
// ORCHESTRATOR_LATEST_VERSION (an operator- or packaging-supplied hint;
// unset means "nothing newer known locally") and caches the result for a
// later `run` to report without phoning out itself.
func runCheckUpdate() error {
	latest := os.Getenv("ORCHESTRATOR_LATEST_VERSION")
	if latest == "" {
		latest = orchestratorVersion
	}
	path, err := updateCachePath()
	if err != nil {
		return err
	}
	cache := updateCheckCache{CheckedAt: time.Now().UTC(), LatestVersion: latest}
	if err := store.WriteJSON(path, cache); err != nil {
		return err
	}
	if latest != orchestratorVersion {
		fmt.Printf("a newer release is available: %s -> %s\n", orchestratorVersion, latest)
	} else {
		fmt.Printf("up to date: %s\n", orchestratorVersion)
	}
	return nil
}

// noticeUpdateIfCached is the best-effort "newer release available" notice
// on run: it only reads whatever a prior check-update invocation cached,
// never performs a check of its own.
func noticeUpdateIfCached() {
	path, err := updateCachePath()
	if err != nil {
		return
	}
	var cache updateCheckCache
	if err := store.ReadJSON(path, &cache); err != nil {
		return
	}
	if cache.LatestVersion != "" && cache.LatestVersion != orchestratorVersion {
		fmt.Fprintf(os.Stderr, "notice: a newer release is available (%s -> %s); checked %s\n",
			orchestratorVersion, cache.LatestVersion, cache.CheckedAt.Format(time.RFC3339))
	}
}

func die(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}

type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("override key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}
