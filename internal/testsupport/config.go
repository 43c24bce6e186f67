package testsupport

import (
	"path/filepath"
	"testing"

	"direktori/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a sqlite-backed config seeded with a unique temp state
// directory per test. Retry delays are zeroed so worker tests run fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Database.Driver = config.DriverSQLite
	cfgVal.Database.SQLitePath = filepath.Join(base, "state", "queue.db")
	cfgVal.Workflow.PoolName = "test-pool"
	cfgVal.Workflow.Workers = 1
	cfgVal.Workflow.SubmitRetryDelay = 0
	cfgVal.Workflow.ErrorRetryInterval = 0
	cfgVal.Browser.StorageState = filepath.Join(base, "storage_state.json")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithPoolName overrides the worker identity prefix.
func WithPoolName(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.PoolName = name
	}
}

// WithStaleClaimTimeout enables the stale sweep.
func WithStaleClaimTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.StaleClaimTimeout = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
