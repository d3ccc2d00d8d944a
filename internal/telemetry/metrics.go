package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/meridiandata/viewsync/sync"

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration  metric.Float64Histogram
	rowsSynced    metric.Int64Counter
	schemaChanges metric.Int64Counter
	conflicts     metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"viewsync_sync_duration_seconds",
		metric.WithDescription("Duration of view sync operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	rowsSynced, err := meter.Int64Counter(
		"viewsync_rows_synced_total",
		metric.WithDescription("Number of rows loaded into destination tables"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	schemaChanges, err := meter.Int64Counter(
		"viewsync_schema_changes_total",
		metric.WithDescription("Number of schema changes applied to destination tables"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"viewsync_sync_conflicts_total",
		metric.WithDescription("Number of sync requests rejected because a sync was already running"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:  syncDuration,
		rowsSynced:    rowsSynced,
		schemaChanges: schemaChanges,
		conflicts:     conflicts,
	}, nil
}

// RecordSyncDuration records the duration of a sync operation for a view
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, viewKey string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("view", viewKey),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRowsSynced records the row count of a completed load
func (m *SyncMetrics) RecordRowsSynced(ctx context.Context, viewKey string, rows int64) {
	if m == nil || m.rowsSynced == nil {
		return
	}

	m.rowsSynced.Add(ctx, rows, metric.WithAttributes(attribute.String("view", viewKey)))
}

// RecordSchemaChange records one applied schema change of the given kind
func (m *SyncMetrics) RecordSchemaChange(ctx context.Context, viewKey, kind string) {
	if m == nil || m.schemaChanges == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("view", viewKey),
		attribute.String("kind", kind),
	}

	m.schemaChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConflict records a sync request rejected by the conflict guard
func (m *SyncMetrics) RecordConflict(ctx context.Context, viewKey string) {
	if m == nil || m.conflicts == nil {
		return
	}

	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("view", viewKey)))
}
