package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"direktori/internal/logging"
	"direktori/internal/queue"
)

// startHeartbeat refreshes last_updated on a claimed item until the returned
// stop function is called. It runs even when this pool does not sweep, since
// other hosts and "queue reclaim" share the same rows.
func (m *Manager) startHeartbeat(ctx context.Context, logger *slog.Logger, itemID int64) func() {
	if m.opts.HeartbeatInterval <= 0 {
		return func() {}
	}
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(m.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := m.store.Touch(hbCtx, itemID); err != nil {
					switch {
					case errors.Is(err, context.Canceled):
						return
					case errors.Is(err, queue.ErrNotFound):
						logging.WarnWithContext(logger, "claim no longer in_progress; heartbeat stopped", "heartbeat_lost",
							logging.String(logging.FieldErrorHint, "raise workflow.stale_claim_timeout if submits run long"),
							logging.String(logging.FieldImpact, "another worker may process this item again"),
						)
						return
					default:
						logger.Warn("heartbeat update failed", logging.Error(err))
					}
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
