package rescueadapter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultScriptName is the rescue script the adapter looks for in a
// project's root before attempting anything.
const DefaultScriptName = "commit-rescue.py"

// ScriptAdapter shells out to a project-local rescue script, passing the
// spec name as its sole argument. A missing script is not an error: it
// just means the project opted out of commit rescue.
type ScriptAdapter struct {
	ScriptName string
	Timeout    int // seconds; 0 uses the caller's context deadline only
}

// NewScriptAdapter builds a ScriptAdapter looking for DefaultScriptName.
func NewScriptAdapter() *ScriptAdapter {
	return &ScriptAdapter{ScriptName: DefaultScriptName}
}

func (a *ScriptAdapter) Rescue(ctx context.Context, projectPath, specName string) (Result, error) {
	name := a.ScriptName
	if name == "" {
		name = DefaultScriptName
	}
	scriptPath := filepath.Join(projectPath, name)
	if _, err := os.Stat(scriptPath); err != nil {
		return Result{OK: false, Detail: "rescue script not found"}, nil
	}

	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.Timeout)*time.Second)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "python3", scriptPath, specName)
	cmd.Dir = projectPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return Result{OK: false, Detail: fmt.Sprintf("rescue script failed: %v: %s", err, string(out))}, nil
	}
	return Result{OK: true, Detail: string(out)}, nil
}
