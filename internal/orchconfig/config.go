// Package orchconfig loads and validates the orchestrator's top-level YAML
// configuration: every recognized key from the project's config.yaml, with
// defaults applied before validation so callers always see a complete,
// valid Config.
package orchconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigYAML = `# orchestrator configuration
workspace_root: .
workflow_dir_name: .orchestrator
tasks_filename: tasks.md

poll_interval_s: 2
log_tail_bytes: 4096
min_terminal_cols: 80
min_terminal_rows: 24

retry:
  max_retries: 3
  base_backoff_s: 5
  multiplier: 2.0
  cap_s: 300
  on_crash: true

commit_gate_enabled: true
three_phase_enabled: true

completion:
  max_probes: 5
  probe_interval_s: 30
  probe_timeout_s: 60
  final_rescue: true

no_commit_limit: 3

activity_timeout_seconds: 1800

provider_config_overrides: {}
mock_only_path_patterns:
  - "(^|/)tests?/"
  - "(^|/)__mocks__/"
  - "_test\\.go$"
`

// RetryConfig mirrors the retry.* keys.
type RetryConfig struct {
	MaxRetries   int     `yaml:"max_retries"`
	BaseBackoffS float64 `yaml:"base_backoff_s"`
	Multiplier   float64 `yaml:"multiplier"`
	CapS         float64 `yaml:"cap_s"`
	OnCrash      bool    `yaml:"on_crash"`
}

// CompletionConfig mirrors the completion.* keys.
type CompletionConfig struct {
	MaxProbes      int     `yaml:"max_probes"`
	ProbeIntervalS float64 `yaml:"probe_interval_s"`
	ProbeTimeoutS  float64 `yaml:"probe_timeout_s"`
	FinalRescue    bool    `yaml:"final_rescue"`
}

// Config models every recognized key from §6.6. Unknown keys are ignored by
// yaml.Unmarshal's default behavior.
type Config struct {
	WorkspaceRoot   string `yaml:"workspace_root"`
	WorkflowDirName string `yaml:"workflow_dir_name"`
	TasksFilename   string `yaml:"tasks_filename"`

	PollIntervalS   float64 `yaml:"poll_interval_s"`
	LogTailBytes    int64   `yaml:"log_tail_bytes"`
	MinTerminalCols int     `yaml:"min_terminal_cols"`
	MinTerminalRows int     `yaml:"min_terminal_rows"`

	Retry      RetryConfig      `yaml:"retry"`
	Completion CompletionConfig `yaml:"completion"`

	CommitGateEnabled  bool `yaml:"commit_gate_enabled"`
	ThreePhaseEnabled  bool `yaml:"three_phase_enabled"`
	NoCommitLimit      int  `yaml:"no_commit_limit"`

	// ActivityTimeoutS is how long a running record's last_activity_time may
	// go stale before health_scan treats it as a hung-process stall
	// candidate. Zero disables stall detection.
	ActivityTimeoutS float64 `yaml:"activity_timeout_seconds"`

	ProviderConfigOverrides map[string]map[string]string `yaml:"provider_config_overrides"`
	MockOnlyPathPatterns    []string                      `yaml:"mock_only_path_patterns"`
}

func defaultConfig() Config {
	var cfg Config
	// Parsing our own template can't fail; a bad template is a programming
	// error caught the moment this package is first exercised.
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		panic(fmt.Sprintf("orchconfig: invalid built-in default template: %v", err))
	}
	return cfg
}

// Load reads path, applying defaults for any key left unset and validating
// the result. A missing file is not an error: Load returns the defaults.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, cfg.validate()
		}
		return Config{}, fmt.Errorf("orchconfig: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("orchconfig: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("orchconfig: %w", err)
	}
	return cfg, nil
}

// EnsureDefault writes the built-in default template to path if no file
// exists there yet, creating parent directories as needed.
func EnsureDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

func (c Config) validate() error {
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("workspace_root must not be empty")
	}
	if c.TasksFilename == "" {
		return fmt.Errorf("tasks_filename must not be empty")
	}
	if c.PollIntervalS <= 0 {
		return fmt.Errorf("poll_interval_s must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative")
	}
	if c.Retry.Multiplier <= 1 {
		return fmt.Errorf("retry.multiplier must be > 1")
	}
	if c.Completion.MaxProbes <= 0 {
		return fmt.Errorf("completion.max_probes must be positive")
	}
	if c.NoCommitLimit <= 0 {
		return fmt.Errorf("no_commit_limit must be positive")
	}
	if c.ActivityTimeoutS < 0 {
		return fmt.Errorf("activity_timeout_seconds must be non-negative")
	}
	for _, p := range c.MockOnlyPathPatterns {
		if p == "" {
			return fmt.Errorf("mock_only_path_patterns entries must not be empty")
		}
	}
	return nil
}

// PollInterval is PollIntervalS as a time.Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalS * float64(time.Second))
}

// ActivityTimeout is ActivityTimeoutS as a time.Duration. Zero means
// disabled.
func (c Config) ActivityTimeout() time.Duration {
	return time.Duration(c.ActivityTimeoutS * float64(time.Second))
}

// Hash returns a stable digest of the fields RunnerRecord.config_hash is
// defined over: everything that would change a runner's spawn behavior if
// edited while the runner is active (retry policy, provider overrides, gate
// toggles) — explicitly excluding poller/UI-only hints like log_tail_bytes.
func (c Config) Hash() string {
	type hashed struct {
		Retry             RetryConfig                   `json:"retry"`
		Completion        CompletionConfig              `json:"completion"`
		CommitGateEnabled bool                          `json:"commit_gate_enabled"`
		ThreePhaseEnabled bool                          `json:"three_phase_enabled"`
		NoCommitLimit     int                           `json:"no_commit_limit"`
		ActivityTimeoutS  float64                       `json:"activity_timeout_seconds"`
		ProviderOverrides map[string]map[string]string `json:"provider_config_overrides"`
		MockOnlyPatterns  []string                      `json:"mock_only_path_patterns"`
	}
	data, _ := json.Marshal(hashed{
		Retry:             c.Retry,
		Completion:        c.Completion,
		CommitGateEnabled: c.CommitGateEnabled,
		ThreePhaseEnabled: c.ThreePhaseEnabled,
		NoCommitLimit:     c.NoCommitLimit,
		ActivityTimeoutS:  c.ActivityTimeoutS,
		ProviderOverrides: c.ProviderConfigOverrides,
		MockOnlyPatterns:  c.MockOnlyPathPatterns,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
