package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"direktori/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check database, session, and browser readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// A store that fails to open still gets a report; the database
			// check then records the open error.
			var pinger preflight.Pinger
			store, openErr := openStore(cmd.Context(), cfg)
			if openErr == nil {
				defer store.Close()
				pinger = store
			}

			results := preflight.RunAll(cmd.Context(), cfg, pinger)
			if openErr != nil {
				results[0].Detail = openErr.Error()
			}
			renderPreflight(cmd.OutOrStdout(), results)

			if blocking := preflight.Blocking(results); len(blocking) > 0 {
				return fmt.Errorf("%d preflight checks failed", len(blocking))
			}
			return nil
		},
	}
}
