package telemetry_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"direktori/internal/queue"
	"direktori/internal/submit"
	"direktori/internal/telemetry"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: unexpected data type %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsRecordedThroughManualReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider, err := telemetry.Init(context.Background(), telemetry.Config{Enabled: true, Reader: reader})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer provider.Shutdown(context.Background())

	ctx := context.Background()
	m := provider.Metrics
	m.WorkerStarted(ctx, "pc-01")
	m.RecordClaim(ctx, "pc-01", telemetry.ClaimResultClaimed)
	m.RecordClaim(ctx, "pc-01", telemetry.ClaimResultEmpty)
	m.RecordOutcome(ctx, "pc-01", submit.KindInfraIssue, queue.StatusNew, 2, 3*time.Second)
	m.RecordReclaimed(ctx, 4)
	m.RecordReclaimed(ctx, 0)
	m.WorkerStopped(ctx, "pc-01")

	got := collect(t, reader)
	if n := sumOf(t, got["direktori.claims"]); n != 2 {
		t.Fatalf("claims=%d want 2", n)
	}
	if n := sumOf(t, got["direktori.outcomes"]); n != 1 {
		t.Fatalf("outcomes=%d want 1", n)
	}
	if n := sumOf(t, got["direktori.submit.attempts"]); n != 2 {
		t.Fatalf("attempts=%d want 2", n)
	}
	if n := sumOf(t, got["direktori.stale.reclaimed"]); n != 4 {
		t.Fatalf("reclaimed=%d want 4", n)
	}
	if n := sumOf(t, got["direktori.workers.active"]); n != 0 {
		t.Fatalf("active workers=%d want 0", n)
	}
	hist, ok := got["direktori.submit.duration"].Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 3 {
		t.Fatalf("unexpected duration histogram: %+v", got["direktori.submit.duration"].Data)
	}
}

func TestDisabledProviderIsNoop(t *testing.T) {
	provider, err := telemetry.Init(context.Background(), telemetry.Config{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	provider.Metrics.RecordClaim(context.Background(), "pool", telemetry.ClaimResultError)
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	telemetry.Noop().RecordReclaimed(context.Background(), 1)
}

func TestStdoutExporterWritesOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	provider, err := telemetry.Init(context.Background(), telemetry.Config{
		Enabled:        true,
		ExportInterval: time.Hour,
		Writer:         &buf,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	provider.Metrics.RecordClaim(context.Background(), "pool", telemetry.ClaimResultClaimed)
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("direktori.claims")) {
		t.Fatalf("expected exported metric in output, got %q", buf.String())
	}
}
