package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"direktori/internal/config"
	"direktori/internal/queue"
	"direktori/internal/queue/sqlitestore"
	"direktori/internal/submit"
)

type cliTestEnv struct {
	store      *sqlitestore.Store
	configPath string
	stateDir   string
	dbPath     string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{
		"DATABASE_URL", "PGHOST", "PGPORT", "PGDATABASE", "PGUSER", "PGPASSWORD", "PGSSLMODE",
		"WORKER_NAME", "NUM_WORKERS", "BASE_URL", "STORAGE_STATE", "HEADLESS", "TIMEOUT_MS", "LOG_LEVEL",
		"NTFY_TOPIC",
	} {
		t.Setenv(key, "")
	}

	stateDir := filepath.Join(base, "state")
	dbPath := filepath.Join(stateDir, "queue.db")
	configPath := filepath.Join(base, "direktori.toml")
	writeTestConfig(t, configPath, stateDir, dbPath)

	store, err := sqlitestore.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("sqlitestore.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return &cliTestEnv{store: store, configPath: configPath, stateDir: stateDir, dbPath: dbPath}
}

func writeTestConfig(t *testing.T, path, stateDir, dbPath string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q

[database]
driver = "sqlite"
sqlite_path = %q

[workflow]
pool_name = "test-pc"
workers = 2
submit_retry_delay = 0
error_retry_interval = 1
heartbeat_interval = 1

[browser]
base_url = "http://127.0.0.1:1/direktori-usaha"
storage_state = %q

[logging]
level = "error"
`, stateDir, dbPath, filepath.Join(stateDir, "storage_state.json"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) insert(t *testing.T, key string, status queue.Status) *queue.WorkItem {
	t.Helper()
	ctx := context.Background()
	item, err := env.store.Insert(ctx, key, queue.Payload{Name: "Usaha " + key})
	if err != nil {
		t.Fatalf("insert %s: %v", key, err)
	}
	if status != queue.StatusNew {
		if err := env.store.SetStatus(ctx, item.ID, status); err != nil {
			t.Fatalf("set status %s: %v", key, err)
		}
		item.Status = status
	}
	return item
}

func (env *cliTestEnv) get(t *testing.T, key string) *queue.WorkItem {
	t.Helper()
	item, err := env.store.GetByBusinessKey(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	if item == nil {
		t.Fatalf("item %s not found", key)
	}
	return item
}

// stubSubmitters replaces the browser factory for the duration of the test.
func stubSubmitters(t *testing.T, fn submit.Func) {
	t.Helper()
	previous := submitterFactory
	submitterFactory = func(config.Browser, *slog.Logger) submit.Factory {
		return submit.FactoryFunc(func(context.Context, string) (submit.Submitter, error) {
			return fn, nil
		})
	}
	t.Cleanup(func() { submitterFactory = previous })
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
