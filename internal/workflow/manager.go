package workflow

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/submit"
)

// Manager owns one worker pool run against a store.
type Manager struct {
	store   queue.Store
	factory submit.Factory
	logger  *slog.Logger
	opts    Options

	mu        sync.RWMutex
	running   bool
	runID     string
	startedAt time.Time
	lastErr   error
	lastItem  *queue.WorkItem
	workers   map[string]*WorkerState
}

// NewManager constructs a Manager. The store handle stays owned by the caller.
func NewManager(store queue.Store, factory submit.Factory, logger *slog.Logger, opts Options) (*Manager, error) {
	if store == nil || factory == nil {
		return nil, errors.New("workflow manager requires a store and a submitter factory")
	}
	return &Manager{
		store:   store,
		factory: factory,
		logger:  logging.NewComponentLogger(logger, "workflow"),
		opts:    opts.withDefaults(),
		workers: make(map[string]*WorkerState),
	}, nil
}

// Options returns the effective options after defaults.
func (m *Manager) Options() Options {
	return m.opts
}
