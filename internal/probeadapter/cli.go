package probeadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// probePrompt asks a provider's CLI, resumed in its existing session, to
// self-report completion status as a single JSON object. Kept close to the
// wording a provider is already primed to answer in JSON mode for.
const probePrompt = `STATUS PROBE - Respond in JSON only:

Analyze current state and respond with JSON:

` + "```json" + `
{
  "status": "complete|waiting|working",
  "message": "Brief status description",
  "should_continue": true,
  "agents_active": 0,
  "tasks_completed": [],
  "tasks_pending": []
}
` + "```" + `

RESPOND WITH ONLY THE JSON OBJECT. No other text.`

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	rawJSON    = regexp.MustCompile(`(?s)(\{[^{}]*"status"[^{}]*\})`)
)

// CLIAdapter probes a project's session by resuming it through a provider
// CLI's continue flag and tolerantly extracting a JSON object from whatever
// text the model wrapped its answer in.
type CLIAdapter struct {
	// Command and ContinueArgs describe how to resume the provider's CLI in
	// its existing session, e.g. "claude" and
	// []string{"--print", "--continue"}.
	Command      string
	ContinueArgs []string
}

// NewClaudeCLIAdapter builds the default adapter for the Claude CLI's
// --continue resumption flow.
func NewClaudeCLIAdapter() *CLIAdapter {
	return &CLIAdapter{
		Command:      "claude",
		ContinueArgs: []string{"--print", "--model", "sonnet", "--dangerously-skip-permissions", "--continue"},
	}
}

func (a *CLIAdapter) Probe(ctx context.Context, projectPath string) (Result, error) {
	argv := append(append([]string{}, a.ContinueArgs...), probePrompt)
	cmd := exec.CommandContext(ctx, a.Command, argv...)
	cmd.Dir = projectPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("probe %s: %w: %s", a.Command, err, strings.TrimSpace(stderr.String()))
	}

	res, err := extractResult(stdout.String())
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// extractResult tries, in order: a fenced ```json block, a raw {...}
// object containing a "status" key, then the whole output verbatim.
func extractResult(output string) (Result, error) {
	candidate := output
	if m := fencedJSON.FindStringSubmatch(output); m != nil {
		candidate = m[1]
	} else if m := rawJSON.FindStringSubmatch(output); m != nil {
		candidate = m[1]
	}

	var res Result
	if err := json.Unmarshal([]byte(candidate), &res); err != nil {
		return Result{}, fmt.Errorf("parse probe response: %w", err)
	}
	return res, nil
}
