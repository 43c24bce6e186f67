package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"direktori/internal/queue"
	"direktori/internal/submit"
)

// Claim results recorded on direktori.claims.
const (
	ClaimResultClaimed = "claimed"
	ClaimResultEmpty   = "empty"
	ClaimResultError   = "error"
)

// Metrics holds the worker pool instruments.
type Metrics struct {
	claims         metric.Int64Counter
	outcomes       metric.Int64Counter
	submitAttempts metric.Int64Counter
	submitDuration metric.Float64Histogram
	activeWorkers  metric.Int64UpDownCounter
	reclaimed      metric.Int64Counter
}

// NewMetrics registers instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(MeterName)
	m := &Metrics{}
	var err error
	if m.claims, err = meter.Int64Counter("direktori.claims",
		metric.WithDescription("Claim calls by result")); err != nil {
		return nil, fmt.Errorf("create claims counter: %w", err)
	}
	if m.outcomes, err = meter.Int64Counter("direktori.outcomes",
		metric.WithDescription("Reconciled items by submit outcome and resulting status")); err != nil {
		return nil, fmt.Errorf("create outcomes counter: %w", err)
	}
	if m.submitAttempts, err = meter.Int64Counter("direktori.submit.attempts",
		metric.WithDescription("Form submit attempts including retries")); err != nil {
		return nil, fmt.Errorf("create attempts counter: %w", err)
	}
	if m.submitDuration, err = meter.Float64Histogram("direktori.submit.duration",
		metric.WithDescription("Time spent submitting one item"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if m.activeWorkers, err = meter.Int64UpDownCounter("direktori.workers.active",
		metric.WithDescription("Workers currently running")); err != nil {
		return nil, fmt.Errorf("create workers gauge: %w", err)
	}
	if m.reclaimed, err = meter.Int64Counter("direktori.stale.reclaimed",
		metric.WithDescription("Stale in_progress claims returned to new")); err != nil {
		return nil, fmt.Errorf("create reclaimed counter: %w", err)
	}
	return m, nil
}

// Noop returns instruments that record nothing.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordClaim(ctx context.Context, pool, result string) {
	m.claims.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pool", pool),
		attribute.String("result", result),
	))
}

// RecordOutcome records one reconciled item.
func (m *Metrics) RecordOutcome(ctx context.Context, pool string, kind submit.Kind, status queue.Status, attempts int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("pool", pool),
		attribute.String("outcome", kind.String()),
		attribute.String("status", string(status)),
	)
	m.outcomes.Add(ctx, 1, attrs)
	m.submitAttempts.Add(ctx, int64(attempts), metric.WithAttributes(attribute.String("pool", pool)))
	m.submitDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) WorkerStarted(ctx context.Context, pool string) {
	m.activeWorkers.Add(ctx, 1, metric.WithAttributes(attribute.String("pool", pool)))
}

func (m *Metrics) WorkerStopped(ctx context.Context, pool string) {
	m.activeWorkers.Add(ctx, -1, metric.WithAttributes(attribute.String("pool", pool)))
}

func (m *Metrics) RecordReclaimed(ctx context.Context, n int64) {
	if n <= 0 {
		return
	}
	m.reclaimed.Add(ctx, n)
}
