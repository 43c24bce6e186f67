package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"direktori/internal/browser"
	"direktori/internal/config"
	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/queue/pgstore"
	"direktori/internal/queue/sqlitestore"
	"direktori/internal/submit"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	newFactory func(cfg config.Browser, logger *slog.Logger) submit.Factory
}

// submitterFactory builds the form submitter factory for run and debug.
// Tests replace it to avoid launching Chrome.
var submitterFactory = func(cfg config.Browser, logger *slog.Logger) submit.Factory {
	return browser.NewFactory(cfg, logger)
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		newFactory:   submitterFactory,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// openStore opens the configured queue backend.
func (c *commandContext) openStore(ctx context.Context) (queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return openStore(ctx, cfg)
}

func openStore(ctx context.Context, cfg *config.Config) (queue.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite queue %s: %w", cfg.Database.SQLitePath, err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := pgstore.Open(ctx, pgstore.Options{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.PoolMaxConns(),
			ConnectTimeout:  cfg.ConnectTimeout(),
			EnsureSchema:    true,
			ApplicationName: "direktori:" + cfg.Workflow.PoolName,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres queue %s: %w", logging.RedactURL(cfg.Database.URL), err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func (c *commandContext) withStore(cmd *cobra.Command, fn func(queue.Store) error) error {
	store, err := c.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
