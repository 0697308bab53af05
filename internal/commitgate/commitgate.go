// Package commitgate installs and removes a repository-local pre-commit
// block scoped to a single Phase-2 iteration, with backup/restore of any
// pre-existing hook and a crash-recovery sweep.
package commitgate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orchestrator/taskrunner/internal/obslog"
)

// sentinel is the stable marker token the recovery sweep detects in a
// left-over gate hook body. Kept short and literal rather than the full
// human-readable commit-block message, per the sentinel-text decision.
const sentinel = "# installed-by: orchestrator-commit-gate v1"

const hookBody = `#!/bin/sh
` + sentinel + `
echo "commits are blocked while an orchestrated session is active" >&2
exit 1
`

func hookPath(repo string) string {
	return filepath.Join(repo, ".git", "hooks", "pre-commit")
}

func backupPath(repo string, nonce int64) string {
	return filepath.Join(repo, ".git", "hooks", fmt.Sprintf("pre-commit.bak-%d", nonce))
}

// Enter installs the gate, backing up any existing pre-commit hook first.
func Enter(repo string) error {
	path := hookPath(repo)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		nonce := time.Now().UnixNano()
		if err := os.Rename(path, backupPath(repo, nonce)); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(hookBody), 0o755); err != nil {
		return err
	}
	return os.Chmod(path, 0o755)
}

// Exit removes the installed gate and restores the most recent backup, if
// any. Safe to call even if Enter was never called.
func Exit(repo string) error {
	path := hookPath(repo)
	data, err := os.ReadFile(path)
	if err == nil && strings.Contains(string(data), sentinel) {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	backup, ok := latestBackup(repo)
	if !ok {
		return nil
	}
	return os.Rename(backup, path)
}

func latestBackup(repo string) (string, bool) {
	hooksDir := filepath.Join(repo, ".git", "hooks")
	entries, err := os.ReadDir(hooksDir)
	if err != nil {
		return "", false
	}
	var best string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "pre-commit.bak-") {
			continue
		}
		if best == "" || e.Name() > best {
			best = e.Name()
		}
	}
	if best == "" {
		return "", false
	}
	return filepath.Join(hooksDir, best), true
}

// RecoverySweep inspects repo for a leftover gate from a prior crashed
// run: a pre-commit hook containing the sentinel with no owning Phase 2 in
// progress. Restores the backup (if present) or removes the file,
// reporting whether a recovery happened.
func RecoverySweep(repo string) (recovered bool, err error) {
	path := hookPath(repo)
	data, statErr := os.ReadFile(path)
	if statErr != nil {
		return false, nil
	}
	if !strings.Contains(string(data), sentinel) {
		return false, nil
	}
	if err := Exit(repo); err != nil {
		return false, err
	}
	obslog.Event("commit_gate_recovered").With("repo", repo).Info()
	return true, nil
}
