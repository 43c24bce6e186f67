package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/retry"
	"direktori/internal/workflow"
)

func newDebugCommand(ctx *commandContext) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "debug <idsbr>",
		Short: "Run the form submitter once for one item without touching its status",
		Long: "Loads the item by business key and drives the registry form for it in a\n" +
			"visible browser. The queue row is never claimed or updated, so the\n" +
			"command is safe to repeat while investigating a failing item.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withStore(cmd, func(store queue.Store) error {
				item, err := store.GetByBusinessKey(runCtx, args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("%s: %w", args[0], queue.ErrNotFound)
				}

				browserCfg := cfg.Browser
				browserCfg.Headless = headless
				workerID := workflow.WorkerID(cfg.Workflow.PoolName+"-debug", 1)

				submitter, err := ctx.newFactory(browserCfg, logger).NewSubmitter(runCtx, workerID)
				if err != nil {
					return fmt.Errorf("start submitter: %w", err)
				}
				defer func() {
					if err := submitter.Close(); err != nil {
						logger.Warn("submitter close failed", logging.Error(err))
					}
				}()

				itemCtx := logging.WithItem(logging.WithWorker(runCtx, workerID), item.ID, item.BusinessKey)
				itemLogger := logging.WithContext(itemCtx, logging.NewComponentLogger(logger, "debug"))
				itemLogger.Info("debug submit started", logging.String("current_status", string(item.Status)))

				started := time.Now()
				outcome := submitter.Submit(itemCtx, item)
				elapsed := time.Since(started)

				itemLogger.Info("debug submit finished",
					logging.String(logging.FieldOutcome, outcome.Kind.String()),
					logging.Duration("elapsed", elapsed),
				)
				res := workflow.Resolve(retry.Result{Outcome: outcome, Attempts: 1})
				fmt.Fprintf(cmd.OutOrStdout(), "Outcome: %s\n", outcome)
				fmt.Fprintf(cmd.OutOrStdout(), "Would resolve to: %s\n", res.Status)
				if res.Note != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Note: %s\n", res.Note)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Elapsed: %s\n", elapsed.Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser headless")
	return cmd
}
