package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateBrowser(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Telemetry.Enabled && c.Telemetry.ExportInterval <= 0 {
		return errors.New("telemetry.export_interval must be positive when telemetry.enabled is true")
	}
	return c.validateNotifications()
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	u, err := url.Parse(topic)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic %q must be an http(s) URL", topic)
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/direktori/config.toml"
			}
			return fmt.Errorf("database.url is required for the postgres driver. Set DATABASE_URL or PGHOST/PGDATABASE/PGUSER/PGPASSWORD, or edit %s (create with 'direktori config init')", defaultPath)
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return errors.New("database.sqlite_path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (use %q or %q)", c.Database.Driver, DriverPostgres, DriverSQLite)
	}
	if c.Database.MaxConns < 0 {
		return errors.New("database.max_conns must be >= 0")
	}
	if c.Database.MaxConns > 0 && c.Database.MaxConns < c.Workflow.Workers {
		return errors.New("database.max_conns must be at least workflow.workers")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.submit_attempts":      c.Workflow.SubmitAttempts,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.heartbeat_interval":   c.Workflow.HeartbeatInterval,
		"workflow.drain_timeout":        c.Workflow.DrainTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.SubmitRetryDelay < 0 {
		return errors.New("workflow.submit_retry_delay must be >= 0")
	}
	if c.Workflow.ProgressInterval < 0 {
		return errors.New("workflow.progress_interval must be >= 0")
	}
	if strings.ContainsAny(c.Workflow.PoolName, " \t\n") {
		return errors.New("workflow.pool_name must not contain whitespace")
	}
	if c.SweepEnabled() {
		if c.Workflow.StaleClaimTimeout <= c.Workflow.HeartbeatInterval {
			return errors.New("workflow.stale_claim_timeout must be greater than workflow.heartbeat_interval")
		}
		if _, err := cron.ParseStandard(c.Workflow.StaleSweepSchedule); err != nil {
			return fmt.Errorf("workflow.stale_sweep_schedule: %w", err)
		}
	}
	return nil
}

func (c *Config) validateBrowser() error {
	if c.Browser.BaseURL == "" {
		return errors.New("browser.base_url must be set (or set BASE_URL)")
	}
	parsed, err := url.Parse(c.Browser.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("browser.base_url %q is not an absolute URL", c.Browser.BaseURL)
	}
	if c.Browser.TimeoutMS <= 0 {
		return errors.New("browser.timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
