package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"direktori/internal/config"
	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/workflow"
)

// ErrAlreadyRunning means another process on this host holds the pool lock.
var ErrAlreadyRunning = errors.New("another direktori process is already running this pool")

// Daemon runs one worker pool under a host lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    queue.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock

	progressInterval time.Duration

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PoolName     string
	Workflow     workflow.StatusSummary
	LockFilePath string
	// Conns is nil when the store has no connection pool.
	Conns *ConnStats
}

// ConnStats is a snapshot of the database connection pool.
type ConnStats struct {
	Total int32
	Idle  int32
	Max   int32
}

// Saturated reports whether every pooled connection is checked out.
func (c ConnStats) Saturated() bool {
	return c.Max > 0 && c.Total >= c.Max && c.Idle == 0
}

// connPool is implemented by stores backed by a connection pool.
type connPool interface {
	PoolStats() (total, idle, max int32)
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithProgressInterval overrides workflow.progress_interval. Zero disables
// progress lines.
func WithProgressInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		d.progressInterval = interval
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store queue.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:              cfg,
		logger:           logging.NewComponentLogger(logger, "daemon"),
		store:            store,
		workflow:         wf,
		lockPath:         lockPath,
		lock:             flock.New(lockPath),
		progressInterval: time.Duration(cfg.Workflow.ProgressInterval) * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run acquires the pool lock and runs the workflow manager until it
// returns. The lock is released before Run returns.
func (d *Daemon) Run(ctx context.Context) (workflow.RunSummary, error) {
	if !d.running.CompareAndSwap(false, true) {
		return workflow.RunSummary{}, errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := d.cfg.EnsureDirectories(); err != nil {
		return workflow.RunSummary{}, err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return workflow.RunSummary{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return workflow.RunSummary{}, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release pool lock", logging.Error(err))
		}
	}()

	d.logger.Info("direktori pool started",
		logging.String("pool", d.cfg.Workflow.PoolName),
		logging.String("lock", d.lockPath),
	)
	stopProgress := d.startProgress(ctx)
	summary, err := d.workflow.Run(ctx)
	stopProgress()
	if err != nil {
		return summary, fmt.Errorf("run workflow: %w", err)
	}
	d.logger.Info("direktori pool stopped",
		logging.String(logging.FieldRunID, summary.RunID),
		logging.Int("processed", summary.Processed),
		logging.Bool("interrupted", summary.Interrupted),
	)
	return summary, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PoolName:     d.cfg.Workflow.PoolName,
		Workflow:     d.workflow.Status(ctx),
		LockFilePath: d.lockPath,
	}
	if pool, ok := d.store.(connPool); ok {
		total, idle, maxConns := pool.PoolStats()
		status.Conns = &ConnStats{Total: total, Idle: idle, Max: maxConns}
	}
	return status
}

// startProgress logs a progress line every progressInterval until the
// returned stop function is called.
func (d *Daemon) startProgress(ctx context.Context) func() {
	if d.progressInterval <= 0 {
		return func() {}
	}
	progressCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(d.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				d.logProgress(d.Status(progressCtx))
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (d *Daemon) logProgress(status Status) {
	wf := status.Workflow
	var submitting, processed int
	for _, w := range wf.Workers {
		if w.Phase == workflow.PhaseSubmitting {
			submitting++
		}
		processed += w.Processed
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldRunID, wf.RunID),
		logging.Int("workers", len(wf.Workers)),
		logging.Int("submitting", submitting),
		logging.Int("processed", processed),
	}
	for _, s := range queue.AllStatuses() {
		attrs = append(attrs, logging.Int("queue_"+string(s), wf.QueueStats[s]))
	}
	if !wf.StartedAt.IsZero() {
		attrs = append(attrs, logging.Duration("uptime", time.Since(wf.StartedAt).Round(time.Second)))
	}
	if wf.LastError != "" {
		attrs = append(attrs, logging.String("last_error", wf.LastError))
	}
	if c := status.Conns; c != nil {
		attrs = append(attrs,
			logging.Int("db_conns_total", int(c.Total)),
			logging.Int("db_conns_idle", int(c.Idle)),
			logging.Int("db_conns_max", int(c.Max)),
		)
		if c.Saturated() {
			logging.WarnWithContext(d.logger, "database pool saturated", "db_pool_saturated",
				append(attrs,
					logging.String(logging.FieldErrorHint, "raise database.max_conns or lower workflow.workers"),
					logging.String(logging.FieldImpact, "claims and heartbeats wait for a free connection"),
				)...)
			return
		}
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "pool_progress"))
	d.logger.Info("pool progress", logging.Args(attrs...)...)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
