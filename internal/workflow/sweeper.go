package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/telemetry"
)

// StaleSweeper returns in_progress items whose last heartbeat is older than
// the timeout back to new.
type StaleSweeper struct {
	store     queue.Store
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	reclaimed atomic.Int64
}

// NewStaleSweeper builds a sweeper. A nil metrics uses no-op instruments.
func NewStaleSweeper(store queue.Store, timeout time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *StaleSweeper {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &StaleSweeper{
		store:   store,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "stale-sweep"),
		metrics: metrics,
	}
}

// Sweep reclaims stale claims once.
func (s *StaleSweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.ReclaimStale(ctx, s.timeout, queue.NoteStaleClaim)
	if err != nil {
		logging.WarnWithContext(s.logger, "stale claim sweep failed", "stale_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "abandoned items stay in_progress until the next sweep"),
		)
		return 0, err
	}
	s.reclaimed.Add(n)
	s.metrics.RecordReclaimed(ctx, n)
	if n > 0 {
		s.logger.Info("reclaimed stale claims",
			logging.Int64("count", n),
			logging.Duration("older_than", s.timeout),
			logging.String(logging.FieldEventType, "stale_reclaimed"),
		)
	}
	return n, nil
}

// Reclaimed returns the total reclaimed since construction.
func (s *StaleSweeper) Reclaimed() int64 {
	return s.reclaimed.Load()
}

// Start runs Sweep on schedule until ctx is done or stop is called. Runs
// never overlap.
func (s *StaleSweeper) Start(ctx context.Context, schedule string) (stop func(), err error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = s.Sweep(ctx)
	}); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}
