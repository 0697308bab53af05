// Command orchestrator-probe is an operator helper: it runs the commit-gate
// crash-recovery sweep against a repo and prints the persisted runner state
// for a workspace, without spawning anything.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orchestrator/taskrunner/internal/commitgate"
	"github.com/orchestrator/taskrunner/internal/orchconfig"
	"github.com/orchestrator/taskrunner/internal/runner"
)

func main() {
	repo := flag.String("repo", "", "repository to sweep for a leftover commit gate")
	workspaceRoot := flag.String("workspace-root", "", "workspace root whose persisted runner state to print")
	flag.Parse()

	if *repo == "" && *workspaceRoot == "" {
		fmt.Fprintln(os.Stderr, "at least one of --repo or --workspace-root is required")
		os.Exit(1)
	}

	if *repo != "" {
		recovered, err := commitgate.RecoverySweep(*repo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recovery sweep: %v\n", err)
			os.Exit(1)
		}
		if recovered {
			fmt.Printf("recovered a leftover commit gate in %s\n", *repo)
		} else {
			fmt.Printf("no leftover commit gate found in %s\n", *repo)
		}
	}

	if *workspaceRoot == "" {
		return
	}
	absRoot, err := filepath.Abs(*workspaceRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve workspace root: %v\n", err)
		os.Exit(1)
	}
	cfg, err := orchconfig.Load(filepath.Join(absRoot, ".orchestrator", "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	statePath := filepath.Join(absRoot, cfg.WorkflowDirName, "runners.json")
	records, err := runner.LoadPersistedRecords(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read runner state: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("no persisted runner records")
		return
	}
	for _, r := range records {
		fmt.Printf("%s\tproject=%s\tspec=%s\tstatus=%s\tpid=%d\tretries=%d/%d\n",
			r.ID, r.ProjectPath, r.SpecName, r.Status, r.PID, r.RetryCount, r.MaxRetries)
	}
}
