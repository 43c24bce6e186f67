// Package telemetry exposes OpenTelemetry metrics for worker pools. When
// disabled every instrument comes from a no-op provider.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MeterName is the instrumentation scope for direktori metrics.
const MeterName = "direktori"

// Config controls metric export.
type Config struct {
	Enabled        bool
	ExportInterval time.Duration
	ServiceName    string
	// Writer receives exported metrics; defaults to stderr.
	Writer io.Writer
	// Reader replaces the periodic stdout exporter. Tests pass a ManualReader.
	Reader sdkmetric.Reader
}

// Provider owns the meter provider and its shutdown.
type Provider struct {
	MeterProvider metric.MeterProvider
	Metrics       *Metrics
	shutdown      func(context.Context) error
}

// Init builds a Provider. A disabled config yields no-op instruments.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		mp := noop.NewMeterProvider()
		metrics, err := NewMetrics(mp)
		if err != nil {
			return nil, err
		}
		return &Provider{
			MeterProvider: mp,
			Metrics:       metrics,
			shutdown:      func(context.Context) error { return nil },
		}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "direktori"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	reader := cfg.Reader
	if reader == nil {
		writer := cfg.Writer
		if writer == nil {
			writer = os.Stderr
		}
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(writer))
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = time.Minute
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	metrics, err := NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	return &Provider{
		MeterProvider: mp,
		Metrics:       metrics,
		shutdown:      mp.Shutdown,
	}, nil
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}
