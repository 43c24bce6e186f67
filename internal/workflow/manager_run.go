package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/retry"
	"direktori/internal/submit"
	"direktori/internal/telemetry"
)

// Run starts the pool and blocks until every worker has exited. Workers exit
// on an empty queue or, between items, on ctx cancellation. The returned
// error is non-nil only when no worker could start.
func (m *Manager) Run(ctx context.Context) (RunSummary, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return RunSummary{}, errors.New("worker pool already running")
	}
	runID := uuid.NewString()
	started := time.Now()
	m.running = true
	m.runID = runID
	m.startedAt = started
	m.lastErr = nil
	m.workers = make(map[string]*WorkerState, m.opts.Workers)
	for i := 1; i <= m.opts.Workers; i++ {
		id := WorkerID(m.opts.PoolName, i)
		m.workers[id] = &WorkerState{ID: id, Phase: PhaseStarting}
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	logger := m.logger.With(logging.String(logging.FieldRunID, runID))
	logger.Info("worker pool starting",
		logging.String("pool", m.opts.PoolName),
		logging.Int("workers", m.opts.Workers),
		logging.Int("submit_attempts", m.opts.Retry.MaxAttempts),
		logging.Bool("stale_sweep", m.opts.StaleClaimTimeout > 0),
		logging.String(logging.FieldEventType, "pool_start"),
	)

	summary := RunSummary{
		RunID:     runID,
		Workers:   m.opts.Workers,
		ByStatus:  make(map[queue.Status]int),
		ByOutcome: make(map[string]int),
		StartedAt: started,
	}

	var sweeper *StaleSweeper
	if m.opts.StaleClaimTimeout > 0 {
		sweeper = NewStaleSweeper(m.store, m.opts.StaleClaimTimeout, logger, m.opts.Metrics)
		_, _ = sweeper.Sweep(ctx)
		stop, err := sweeper.Start(ctx, m.opts.StaleSweepSchedule)
		if err != nil {
			logging.WarnWithContext(logger, "stale sweep schedule rejected; sweeping only at startup", "stale_sweep_schedule_invalid",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix workflow.stale_sweep_schedule"),
				logging.String(logging.FieldImpact, "claims abandoned during this run stay in_progress"),
			)
		} else {
			defer stop()
		}
	}

	results := make([]*workerResult, m.opts.Workers)
	var wg sync.WaitGroup
	for i := 1; i <= m.opts.Workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx-1] = m.runWorker(ctx, logger, WorkerID(m.opts.PoolName, idx))
		}(i)
	}
	wg.Wait()

	var startErrs []error
	for _, res := range results {
		summary.Processed += res.processed
		summary.Completed += res.completed
		summary.ClaimErrors += res.claimErrors
		summary.ReconcileErrors += res.reconcileErrors
		summary.Interrupted = summary.Interrupted || res.interrupted
		for status, n := range res.byStatus {
			summary.ByStatus[status] += n
		}
		for outcome, n := range res.byOutcome {
			summary.ByOutcome[outcome] += n
		}
		if res.startErr != nil {
			summary.SubmitterErrors++
			startErrs = append(startErrs, res.startErr)
		}
	}
	if sweeper != nil {
		summary.StaleReclaimed = sweeper.Reclaimed()
	}
	summary.Duration = time.Since(started)

	logger.Info("worker pool finished",
		logging.Int("processed", summary.Processed),
		logging.Int("completed", summary.Completed),
		logging.Int("done", summary.ByStatus[queue.StatusDone]),
		logging.Int("failed", summary.ByStatus[queue.StatusFailed]),
		logging.Int("locked", summary.ByStatus[queue.StatusLocked]),
		logging.Int("released", summary.ByStatus[queue.StatusNew]),
		logging.Bool("interrupted", summary.Interrupted),
		logging.Duration("duration", summary.Duration),
		logging.String(logging.FieldEventType, "pool_finished"),
	)

	if len(startErrs) == m.opts.Workers {
		return summary, fmt.Errorf("no worker started: %w", errors.Join(startErrs...))
	}
	return summary, nil
}

func (m *Manager) runWorker(ctx context.Context, poolLogger *slog.Logger, workerID string) *workerResult {
	result := newWorkerResult()
	ctx = logging.WithWorker(ctx, workerID)
	logger := logging.WithContext(ctx, poolLogger)
	defer m.setPhase(workerID, PhaseExited, "")

	submitter, err := m.factory.NewSubmitter(ctx, workerID)
	if err != nil {
		result.startErr = fmt.Errorf("%s: %w", workerID, err)
		m.setLastError(err)
		logging.ErrorWithContext(logger, "submitter could not start; worker not running", "submitter_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check browser installation and session state"),
		)
		return result
	}
	defer func() {
		if err := submitter.Close(); err != nil {
			logger.Debug("submitter close failed", logging.Error(err))
		}
	}()

	m.opts.Metrics.WorkerStarted(ctx, m.opts.PoolName)
	defer m.opts.Metrics.WorkerStopped(context.WithoutCancel(ctx), m.opts.PoolName)
	logger.Info("worker started", logging.String(logging.FieldEventType, "worker_start"))

	for {
		if ctx.Err() != nil {
			result.interrupted = true
			logger.Info("worker stopping on shutdown", logging.Int("processed", result.processed))
			return result
		}

		m.setPhase(workerID, PhaseClaiming, "")
		item, err := m.store.Claim(ctx, workerID)
		if errors.Is(err, queue.ErrNoWork) {
			m.opts.Metrics.RecordClaim(ctx, m.opts.PoolName, telemetry.ClaimResultEmpty)
			logger.Info("queue empty; worker exiting",
				logging.Int("processed", result.processed),
				logging.String(logging.FieldEventType, "worker_exit"),
			)
			return result
		}
		if err != nil {
			if ctx.Err() != nil {
				result.interrupted = true
				return result
			}
			result.claimErrors++
			m.opts.Metrics.RecordClaim(ctx, m.opts.PoolName, telemetry.ClaimResultError)
			m.handleClaimError(ctx, logger, workerID, err)
			continue
		}
		m.opts.Metrics.RecordClaim(ctx, m.opts.PoolName, telemetry.ClaimResultClaimed)

		m.processItem(ctx, poolLogger, workerID, submitter, item, result)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, workerID string, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim work item", "queue_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	m.setPhase(workerID, PhaseWaiting, "")
	if m.opts.ErrorRetryInterval <= 0 {
		return
	}
	timer := time.NewTimer(m.opts.ErrorRetryInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// processItem submits and reconciles one claimed item. It never returns
// early on cancellation; the item context outlives ctx up to DrainTimeout.
func (m *Manager) processItem(ctx context.Context, poolLogger *slog.Logger, workerID string, submitter submit.Submitter, item *queue.WorkItem, result *workerResult) {
	ctx = logging.WithItem(ctx, item.ID, item.BusinessKey)
	ctx = logging.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, poolLogger)
	m.setPhase(workerID, PhaseSubmitting, item.BusinessKey)

	logger.Info("item claimed",
		logging.Int("attempt_count", item.AttemptCount),
		logging.String(logging.FieldEventType, "item_claimed"),
	)

	itemCtx, release := m.itemContext(ctx)
	defer release()

	stopHeartbeat := m.startHeartbeat(itemCtx, logger, item.ID)
	started := time.Now()
	res := m.opts.Retry.Do(itemCtx, func(ctx context.Context, attempt int) submit.Outcome {
		if attempt > 1 {
			logger.Info("retrying submit after infrastructure issue",
				logging.Int(logging.FieldAttempt, attempt),
				logging.String(logging.FieldEventType, "submit_retry"),
			)
		}
		return safeSubmit(ctx, submitter, item)
	})
	elapsed := time.Since(started)
	stopHeartbeat()

	resolution := Resolve(res)
	reconcileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
	defer cancel()
	if err := Apply(reconcileCtx, m.store, item.ID, resolution); err != nil {
		result.reconcileErrors++
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to record item outcome; item left in_progress", "reconcile_failed",
			logging.Error(err),
			logging.String(logging.FieldOutcome, res.Outcome.Kind.String()),
			logging.String(logging.FieldErrorHint, "reset the item with direktori queue reclaim once the database is reachable"),
		)
		return
	}

	result.processed++
	if res.Outcome.Completed() {
		result.completed++
	}
	result.byStatus[resolution.Status]++
	result.byOutcome[res.Outcome.Kind.String()]++
	m.opts.Metrics.RecordOutcome(context.WithoutCancel(ctx), m.opts.PoolName, res.Outcome.Kind, resolution.Status, res.Attempts, elapsed)

	item.Status = resolution.Status
	m.setLastItem(item)
	m.recordWorkerOutcome(workerID, res.Outcome.Kind.String())
	logResolution(logger, res, resolution, elapsed)
}

// itemContext detaches from ctx cancellation. Once ctx is done the returned
// context is cancelled after DrainTimeout, or never when DrainTimeout is zero.
func (m *Manager) itemContext(ctx context.Context) (context.Context, func()) {
	itemCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	drain := m.opts.DrainTimeout
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		if drain <= 0 {
			return
		}
		timer := time.NewTimer(drain)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			cancel()
		}
	}()
	return itemCtx, func() {
		close(done)
		cancel()
	}
}

func safeSubmit(ctx context.Context, submitter submit.Submitter, item *queue.WorkItem) (out submit.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = submit.Errorf("submitter panic: %v", r)
		}
	}()
	return submitter.Submit(ctx, item)
}

func logResolution(logger *slog.Logger, res retry.Result, resolution Resolution, elapsed time.Duration) {
	attrs := []logging.Attr{
		logging.String(logging.FieldStatus, string(resolution.Status)),
		logging.String(logging.FieldOutcome, res.Outcome.Kind.String()),
		logging.Int(logging.FieldAttempt, res.Attempts),
		logging.Duration("elapsed", elapsed),
	}
	if resolution.Note != "" {
		attrs = append(attrs, logging.String("note", resolution.Note))
	}
	switch resolution.Status {
	case queue.StatusNew:
		logging.WarnWithContext(logger, "item released for retry", "item_released",
			append(attrs,
				logging.String(logging.FieldErrorHint, "check network and registry availability"),
				logging.String(logging.FieldImpact, "item returns to the queue with one more attempt"),
			)...)
	case queue.StatusFailed:
		logging.WarnWithContext(logger, "item failed", "item_failed",
			append(attrs,
				logging.String(logging.FieldErrorHint, "inspect the row data and the edit form"),
				logging.String(logging.FieldImpact, "item needs operator attention before it is retried"),
			)...)
	default:
		attrs = append(attrs, logging.String(logging.FieldEventType, "item_reconciled"))
		logger.Info("item reconciled", logging.Args(attrs...)...)
	}
}
