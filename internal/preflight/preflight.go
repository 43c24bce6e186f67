package preflight

import (
	"context"

	"direktori/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional failures are reported but do not block a run.
	Optional bool
}

// Pinger is the slice of the queue store the database check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes every preflight check for the given config. db may be
// nil when the store could not be opened; the database check then fails.
func RunAll(ctx context.Context, cfg *config.Config, db Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDatabase(ctx, cfg.Database.Driver, db, cfg.ConnectTimeout()),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckStorageState(cfg.Browser.StorageState),
		CheckChrome(cfg.Browser.ChromePath),
	}
	registry := CheckRegistry(ctx, cfg.Browser.BaseURL)
	// The registry sits behind a VPN on some hosts; the submitter reports
	// unreachable pages as infra issues anyway.
	registry.Optional = true
	results = append(results, registry)
	return results
}

// Blocking returns the failed checks that must pass before a run.
func Blocking(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
