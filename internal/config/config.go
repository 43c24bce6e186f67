package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Paths contains local state locations.
type Paths struct {
	StateDir string `toml:"state_dir"`
}

// Database selects and configures the work item store backend.
type Database struct {
	Driver         string `toml:"driver"`
	URL            string `toml:"url"`
	SQLitePath     string `toml:"sqlite_path"`
	MaxConns       int    `toml:"max_conns"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

// Workflow contains worker pool sizing, retry, and sweep settings.
// Durations are expressed in seconds.
type Workflow struct {
	PoolName           string `toml:"pool_name"`
	Workers            int    `toml:"workers"`
	SubmitAttempts     int    `toml:"submit_attempts"`
	SubmitRetryDelay   int    `toml:"submit_retry_delay"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
	HeartbeatInterval  int    `toml:"heartbeat_interval"`
	// StaleClaimTimeout enables the in_progress sweeper when positive.
	StaleClaimTimeout  int    `toml:"stale_claim_timeout"`
	StaleSweepSchedule string `toml:"stale_sweep_schedule"`
	DrainTimeout       int    `toml:"drain_timeout"`
	// ProgressInterval is how often a running pool logs a progress line.
	// Zero disables it.
	ProgressInterval   int    `toml:"progress_interval"`
}

// Selectors holds CSS selectors for the registry edit flow.
type Selectors struct {
	SearchInput        string `toml:"search_input"`
	FilterButton       string `toml:"filter_button"`
	EditButton         string `toml:"edit_button"`
	FormHeader         string `toml:"form_header"`
	ApprovalAlert      string `toml:"approval_alert"`
	Submit             string `toml:"submit"`
	CancelSubmit       string `toml:"cancel_submit"`
	BlockUI            string `toml:"block_ui"`
	SwalConfirm        string `toml:"swal_confirm"`
	SwalPopup          string `toml:"swal_popup"`
	CheckMap           string `toml:"check_map"`
	ConfirmConsistency string `toml:"confirm_consistency"`
	IgnoreConsistency  string `toml:"ignore_consistency"`
}

// Browser configures the headless Chrome form submitter.
type Browser struct {
	BaseURL      string    `toml:"base_url"`
	StorageState string    `toml:"storage_state"`
	ChromePath   string    `toml:"chrome_path"`
	Headless     bool      `toml:"headless"`
	TimeoutMS    int       `toml:"timeout_ms"`
	UserAgent    string    `toml:"user_agent"`
	Locale       string    `toml:"locale"`
	Timezone     string    `toml:"timezone"`
	WindowWidth  int       `toml:"window_width"`
	WindowHeight int       `toml:"window_height"`
	Selectors    Selectors `toml:"selectors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// File, when set, receives a copy of every log line.
	File string `toml:"file"`
}

// Telemetry toggles OpenTelemetry metric export.
type Telemetry struct {
	Enabled        bool `toml:"enabled"`
	ExportInterval int  `toml:"export_interval"`
}

// Notifications configures ntfy run reports. An empty topic disables them.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for direktori.
//
// Configuration sections by subsystem:
//   - Paths: local state (lock files, sqlite database)
//   - Database: work item store backend and pool sizing
//   - Workflow: worker count, identity, submit retry, stale sweeps
//   - Browser: registry session and edit form selectors
//   - Logging: log format and level
//   - Telemetry: metric export
//   - Notifications: ntfy run reports
type Config struct {
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	Workflow      Workflow      `toml:"workflow"`
	Browser       Browser       `toml:"browser"`
	Logging       Logging       `toml:"logging"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/direktori/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment fallbacks applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("direktori.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local state directory (and the sqlite
// database parent when that backend is selected).
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir}
	if c.Database.Driver == DriverSQLite {
		dirs = append(dirs, filepath.Dir(c.Database.SQLitePath))
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the host lock file guarding a pool name.
func (c *Config) LockPath() string {
	name := strings.NewReplacer("/", "_", string(filepath.Separator), "_", ":", "_").Replace(c.Workflow.PoolName)
	return filepath.Join(c.Paths.StateDir, "run-"+name+".lock")
}

// PoolMaxConns returns the connection pool ceiling: the configured value or
// one connection per worker plus one for sweeps and operator queries.
func (c *Config) PoolMaxConns() int {
	if c.Database.MaxConns > 0 {
		return c.Database.MaxConns
	}
	return max(2, c.Workflow.Workers+1)
}

// ConnectTimeout returns the store connect/ping timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Database.ConnectTimeout) * time.Second
}

// BrowserTimeout returns the per-action browser timeout.
func (c *Config) BrowserTimeout() time.Duration {
	return time.Duration(c.Browser.TimeoutMS) * time.Millisecond
}

// SweepEnabled reports whether stale in_progress claims are reclaimed automatically.
func (c *Config) SweepEnabled() bool {
	return c.Workflow.StaleClaimTimeout > 0
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
