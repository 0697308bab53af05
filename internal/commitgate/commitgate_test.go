package commitgate

import (
	"os"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git", "hooks"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestEnterExitRestoresOriginalHook(t *testing.T) {
	repo := initRepo(t)
	path := hookPath(repo)
	original := []byte("#!/bin/sh\necho original\n")
	if err := os.WriteFile(path, original, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Enter(repo); err != nil {
		t.Fatal(err)
	}
	installed, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(installed) == string(original) {
		t.Fatal("expected the gate hook to replace the original")
	}

	if err := Exit(repo); err != nil {
		t.Fatal(err)
	}
	restored, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != string(original) {
		t.Fatalf("expected bit-for-bit restore, got %q", restored)
	}
}

func TestExitWithoutEnterIsSafe(t *testing.T) {
	repo := initRepo(t)
	if err := Exit(repo); err != nil {
		t.Fatalf("Exit without Enter should be a no-op, got %v", err)
	}
}

func TestRecoverySweepDetectsLeftoverGate(t *testing.T) {
	repo := initRepo(t)
	if err := Enter(repo); err != nil {
		t.Fatal(err)
	}
	recovered, err := RecoverySweep(repo)
	if err != nil {
		t.Fatal(err)
	}
	if !recovered {
		t.Fatal("expected recovery to detect the sentinel")
	}
	if _, err := os.Stat(hookPath(repo)); !os.IsNotExist(err) {
		t.Fatalf("expected hook removed after recovery, stat err=%v", err)
	}
}
