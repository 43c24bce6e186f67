package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if err := c.normalizeWorkflow(); err != nil {
		return err
	}
	if err := c.normalizeBrowser(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDatabaseDriver
	}
	if c.Database.Driver == "postgresql" || c.Database.Driver == "pgx" {
		c.Database.Driver = DriverPostgres
	}

	c.Database.URL = strings.TrimSpace(c.Database.URL)
	if c.Database.URL == "" {
		if value, ok := os.LookupEnv("DATABASE_URL"); ok {
			c.Database.URL = strings.TrimSpace(value)
		}
	}
	if c.Database.URL == "" && c.Database.Driver == DriverPostgres {
		c.Database.URL = postgresURLFromEnv()
	}

	var err error
	if strings.TrimSpace(c.Database.SQLitePath) == "" {
		c.Database.SQLitePath = filepath.Join(c.Paths.StateDir, defaultSQLiteFile)
	}
	if c.Database.SQLitePath, err = expandPath(c.Database.SQLitePath); err != nil {
		return fmt.Errorf("database.sqlite_path: %w", err)
	}
	if c.Database.ConnectTimeout <= 0 {
		c.Database.ConnectTimeout = defaultConnectTimeout
	}
	return nil
}

// postgresURLFromEnv composes a connection URL from the libpq-style
// variables. It returns "" when PGHOST is unset.
func postgresURLFromEnv() string {
	host := strings.TrimSpace(os.Getenv("PGHOST"))
	if host == "" {
		return ""
	}
	port := strings.TrimSpace(os.Getenv("PGPORT"))
	if port == "" {
		port = "5432"
	}
	sslMode := strings.TrimSpace(os.Getenv("PGSSLMODE"))
	if sslMode == "" {
		sslMode = "require"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + strings.TrimSpace(os.Getenv("PGDATABASE")),
	}
	user := strings.TrimSpace(os.Getenv("PGUSER"))
	if password, ok := os.LookupEnv("PGPASSWORD"); ok {
		u.User = url.UserPassword(user, password)
	} else if user != "" {
		u.User = url.User(user)
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Config) normalizeWorkflow() error {
	if value, ok := os.LookupEnv("WORKER_NAME"); ok && strings.TrimSpace(value) != "" {
		c.Workflow.PoolName = strings.TrimSpace(value)
	}
	c.Workflow.PoolName = strings.TrimSpace(c.Workflow.PoolName)
	if c.Workflow.PoolName == "" {
		c.Workflow.PoolName = defaultPoolName
	}
	if value, ok := os.LookupEnv("NUM_WORKERS"); ok && strings.TrimSpace(value) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("NUM_WORKERS: %w", err)
		}
		c.Workflow.Workers = n
	}
	c.Workflow.StaleSweepSchedule = strings.TrimSpace(c.Workflow.StaleSweepSchedule)
	if c.Workflow.StaleSweepSchedule == "" {
		c.Workflow.StaleSweepSchedule = defaultStaleSweepSchedule
	}
	if c.Workflow.StaleClaimTimeout < 0 {
		c.Workflow.StaleClaimTimeout = 0
	}
	return nil
}

func (c *Config) normalizeBrowser() error {
	if value, ok := os.LookupEnv("BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Browser.BaseURL = value
	}
	c.Browser.BaseURL = strings.TrimRight(strings.TrimSpace(c.Browser.BaseURL), "/")

	if value, ok := os.LookupEnv("STORAGE_STATE"); ok && strings.TrimSpace(value) != "" {
		c.Browser.StorageState = value
	}
	var err error
	if c.Browser.StorageState, err = expandPath(strings.TrimSpace(c.Browser.StorageState)); err != nil {
		return fmt.Errorf("browser.storage_state: %w", err)
	}
	if strings.TrimSpace(c.Browser.ChromePath) != "" {
		if c.Browser.ChromePath, err = expandPath(strings.TrimSpace(c.Browser.ChromePath)); err != nil {
			return fmt.Errorf("browser.chrome_path: %w", err)
		}
	}

	if value, ok := os.LookupEnv("HEADLESS"); ok && strings.TrimSpace(value) != "" {
		c.Browser.Headless = strings.EqualFold(strings.TrimSpace(value), "true")
	}
	if value, ok := os.LookupEnv("TIMEOUT_MS"); ok && strings.TrimSpace(value) != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("TIMEOUT_MS: %w", err)
		}
		c.Browser.TimeoutMS = ms
	}

	c.Browser.UserAgent = strings.TrimSpace(c.Browser.UserAgent)
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = defaultBrowserUserAgent
	}
	if strings.TrimSpace(c.Browser.Locale) == "" {
		c.Browser.Locale = defaultBrowserLocale
	}
	if strings.TrimSpace(c.Browser.Timezone) == "" {
		c.Browser.Timezone = defaultBrowserTimezone
	}
	if c.Browser.WindowWidth <= 0 {
		c.Browser.WindowWidth = defaultBrowserWindowWidth
	}
	if c.Browser.WindowHeight <= 0 {
		c.Browser.WindowHeight = defaultBrowserWindowHeight
	}
	c.Browser.Selectors = c.Browser.Selectors.withDefaults()
	return nil
}

func (s Selectors) withDefaults() Selectors {
	def := DefaultSelectors()
	fill := func(value *string, fallback string) {
		if strings.TrimSpace(*value) == "" {
			*value = fallback
		}
	}
	fill(&s.SearchInput, def.SearchInput)
	fill(&s.FilterButton, def.FilterButton)
	fill(&s.EditButton, def.EditButton)
	fill(&s.FormHeader, def.FormHeader)
	fill(&s.ApprovalAlert, def.ApprovalAlert)
	fill(&s.Submit, def.Submit)
	fill(&s.CancelSubmit, def.CancelSubmit)
	fill(&s.BlockUI, def.BlockUI)
	fill(&s.SwalConfirm, def.SwalConfirm)
	fill(&s.SwalPopup, def.SwalPopup)
	fill(&s.CheckMap, def.CheckMap)
	fill(&s.ConfirmConsistency, def.ConfirmConsistency)
	fill(&s.IgnoreConsistency, def.IgnoreConsistency)
	return s
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := os.LookupEnv("LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		if expanded, err := expandPath(strings.TrimSpace(c.Logging.File)); err == nil {
			c.Logging.File = expanded
		}
	}
}
