package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"direktori/internal/daemon"
	"direktori/internal/logging"
	"direktori/internal/notifications"
	"direktori/internal/preflight"
	"direktori/internal/queue"
	"direktori/internal/telemetry"
	"direktori/internal/workflow"
)

const (
	telemetryShutdownTimeout = 5 * time.Second
	notifyTimeout            = 15 * time.Second
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		workers       int
		poolName      string
		headless      bool
		skipPreflight bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim and submit queue items until the queue is drained",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workflow.Workers = workers
			}
			if cmd.Flags().Changed("pool") {
				cfg.Workflow.PoolName = strings.TrimSpace(poolName)
			}
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(runCtx, cfg)
			if err != nil {
				return err
			}

			if !skipPreflight {
				results := preflight.RunAll(runCtx, cfg, store)
				if blocking := preflight.Blocking(results); len(blocking) > 0 {
					renderPreflight(cmd.ErrOrStderr(), results)
					_ = store.Close()
					return fmt.Errorf("preflight failed: %s", blocking[0].Name)
				}
				for _, r := range results {
					if !r.Passed {
						logger.Warn("preflight warning",
							logging.String("check", r.Name),
							logging.String(logging.FieldErrorHint, r.Detail),
						)
					}
				}
			}

			provider, err := telemetry.Init(runCtx, telemetry.Config{
				Enabled:        cfg.Telemetry.Enabled,
				ExportInterval: time.Duration(cfg.Telemetry.ExportInterval) * time.Second,
				Writer:         cmd.ErrOrStderr(),
			})
			if err != nil {
				_ = store.Close()
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					logger.Warn("telemetry shutdown failed", logging.Error(err))
				}
			}()

			opts := workflow.OptionsFromConfig(cfg)
			opts.Metrics = provider.Metrics
			mgr, err := workflow.NewManager(store, ctx.newFactory(cfg.Browser, logger), logger, opts)
			if err != nil {
				_ = store.Close()
				return err
			}

			d, err := daemon.New(cfg, store, logger, mgr)
			if err != nil {
				_ = store.Close()
				return err
			}
			defer d.Close()

			notifier := notifications.NewService(cfg.Notifications)
			notify := func(send func(context.Context) error) {
				// The run context may already be cancelled when the final
				// report goes out.
				sendCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), notifyTimeout)
				defer cancel()
				if err := send(sendCtx); err != nil {
					logger.Warn("notification failed", logging.Error(err))
				}
			}

			if notifications.Enabled(notifier) {
				pending := 0
				if stats, err := store.Stats(runCtx); err == nil {
					pending = stats[queue.StatusNew]
				}
				notify(func(c context.Context) error {
					return notifier.NotifyRunStarted(c, cfg.Workflow.PoolName, cfg.Workflow.Workers, pending)
				})
			}

			summary, err := d.Run(runCtx)
			if err != nil {
				if errors.Is(err, daemon.ErrAlreadyRunning) {
					return fmt.Errorf("%w: another run for pool %q holds %s", err, cfg.Workflow.PoolName, cfg.LockPath())
				}
				notify(func(c context.Context) error {
					return notifier.NotifyError(c, err, "run "+cfg.Workflow.PoolName)
				})
				return err
			}
			renderRunSummary(cmd.OutOrStdout(), summary)
			notify(func(c context.Context) error {
				return notifier.NotifyRunCompleted(c, runReport(cfg.Workflow.PoolName, summary))
			})
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Override workflow.workers")
	cmd.Flags().StringVar(&poolName, "pool", "", "Override workflow.pool_name")
	cmd.Flags().BoolVar(&headless, "headless", false, "Override browser.headless")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running preflight checks")
	return cmd
}

func runReport(pool string, summary workflow.RunSummary) notifications.RunReport {
	return notifications.RunReport{
		Pool:        pool,
		Processed:   summary.Processed,
		Done:        summary.ByStatus[queue.StatusDone],
		Failed:      summary.ByStatus[queue.StatusFailed],
		Locked:      summary.ByStatus[queue.StatusLocked],
		Released:    summary.ByStatus[queue.StatusNew],
		Interrupted: summary.Interrupted,
		Duration:    summary.Duration,
	}
}
