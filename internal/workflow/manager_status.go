package workflow

import (
	"context"
	"sort"
	"time"

	"direktori/internal/logging"
	"direktori/internal/queue"
)

// StatusSummary represents lightweight pool diagnostics.
type StatusSummary struct {
	Running    bool
	RunID      string
	StartedAt  time.Time
	LastError  string
	LastItem   *queue.WorkItem
	Workers    []WorkerState
	QueueStats map[queue.Status]int
}

// Status returns the latest pool information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:   m.running,
		RunID:     m.runID,
		StartedAt: m.startedAt,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		copy := *m.lastItem
		summary.LastItem = &copy
	}
	for _, w := range m.workers {
		summary.Workers = append(summary.Workers, *w)
	}
	m.mu.RUnlock()

	sort.Slice(summary.Workers, func(i, j int) bool { return summary.Workers[i].ID < summary.Workers[j].ID })

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *queue.WorkItem) {
	m.mu.Lock()
	if item != nil {
		copy := *item
		m.lastItem = &copy
	} else {
		m.lastItem = nil
	}
	m.mu.Unlock()
}

func (m *Manager) setPhase(workerID, phase, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok {
		w = &WorkerState{ID: workerID}
		m.workers[workerID] = w
	}
	w.Phase = phase
	w.CurrentKey = key
}

func (m *Manager) recordWorkerOutcome(workerID, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[workerID]; ok {
		w.Processed++
		w.LastOutcome = outcome
	}
}
