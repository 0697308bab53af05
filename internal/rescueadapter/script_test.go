package rescueadapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRescueReturnsNotOKWhenScriptMissing(t *testing.T) {
	dir := t.TempDir()
	a := NewScriptAdapter()
	res, err := a.Rescue(context.Background(), dir, "spec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatalf("expected OK=false when script is missing, got %+v", res)
	}
}

func TestRescueRunsScriptWhenPresent(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, DefaultScriptName)
	if err := os.WriteFile(script, []byte("#!/usr/bin/env python3\nimport sys\nprint('rescued', sys.argv[1])\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	a := NewScriptAdapter()
	res, err := a.Rescue(context.Background(), dir, "spec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK=true, got %+v (note: requires python3 on PATH)", res)
	}
}
