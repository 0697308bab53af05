// Package runner implements the Runner Manager: subprocess lifecycle,
// crash detection, retry scheduling, and state persistence for every
// supervised AI coding CLI session.
package runner

import "time"

// Status is a RunnerRecord's lifecycle state.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusCrashed   Status = "crashed"
)

// Record is the durable handle for a supervised subprocess. Field names and
// json tags mirror the runner state file wire shape field-for-field.
type Record struct {
	ID                string     `json:"id"`
	ProjectPath       string     `json:"project_path"`
	SpecName          string     `json:"spec_name"`
	Provider          string     `json:"provider"`
	Model             string     `json:"model"`
	PID               int        `json:"pid"`
	CmdFingerprint    string     `json:"cmd_fingerprint"`
	Status            Status     `json:"status"`
	StartTime         time.Time  `json:"start_time"`
	LastActivityTime  time.Time  `json:"last_activity_time"`
	LastRetryTime     *time.Time `json:"last_retry_time"`
	RetryCount        int        `json:"retry_count"`
	MaxRetries        int        `json:"max_retries"`
	ConfigHash        string     `json:"config_hash"`
	LogPath           string     `json:"log_path"`
	BaselineCommit    string     `json:"baseline_commit"`
	ExitCode          *int       `json:"exit_code"`
}

// snapshot returns a value copy safe to persist or hand to a caller
// without exposing the manager's internal pointer.
func (r *Record) snapshot() Record {
	if r == nil {
		return Record{}
	}
	cp := *r
	return cp
}

// stateFile is the on-disk shape of the runner state file (§6.4).
type stateFile struct {
	Runners []Record `json:"runners"`
}
