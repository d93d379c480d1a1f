// Package telemetry wires OpenTelemetry metrics for the sync loop and exposes
// them in Prometheus format.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// SyncMetricsMeterName is the meter name for sync metrics
const SyncMetricsMeterName = "github.com/elonfeng/hnmirror/sync"

// NewPrometheusProvider creates a meter provider backed by a private Prometheus
// registry, and the handler that serves it.
func NewPrometheusProvider() (*sdkmetric.MeterProvider, http.Handler, error) {
	reg := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return mp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// SyncMetrics holds the instruments recorded by the scheduler
type SyncMetrics struct {
	stepDuration metric.Float64Histogram
	itemsStored  metric.Int64Counter
	rankRecords  metric.Int64Counter
	stepFailures metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	stepDuration, err := meter.Float64Histogram(
		"hnmirror_step_duration_seconds",
		metric.WithDescription("Duration of sync steps in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	itemsStored, err := meter.Int64Counter(
		"hnmirror_items_stored",
		metric.WithDescription("Items written to the store"),
	)
	if err != nil {
		return nil, err
	}

	rankRecords, err := meter.Int64Counter(
		"hnmirror_rank_records",
		metric.WithDescription("Rank history records appended"),
	)
	if err != nil {
		return nil, err
	}

	stepFailures, err := meter.Int64Counter(
		"hnmirror_step_failures",
		metric.WithDescription("Sync steps that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		stepDuration: stepDuration,
		itemsStored:  itemsStored,
		rankRecords:  rankRecords,
		stepFailures: stepFailures,
	}, nil
}

// RecordStep records the outcome of one sync step
func (m *SyncMetrics) RecordStep(ctx context.Context, step string, duration time.Duration, items, ranks int, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("step", step),
		attribute.Bool("success", err == nil),
	)
	m.stepDuration.Record(ctx, duration.Seconds(), attrs)

	stepAttr := metric.WithAttributes(attribute.String("step", step))
	if items > 0 {
		m.itemsStored.Add(ctx, int64(items), stepAttr)
	}
	if ranks > 0 {
		m.rankRecords.Add(ctx, int64(ranks), stepAttr)
	}
	if err != nil {
		m.stepFailures.Add(ctx, 1, stepAttr)
	}
}
