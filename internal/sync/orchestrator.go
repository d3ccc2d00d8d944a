package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridiandata/viewsync/internal/config"
	"github.com/meridiandata/viewsync/internal/meta"
	"github.com/meridiandata/viewsync/internal/source"
	"github.com/meridiandata/viewsync/internal/telemetry"
	"github.com/meridiandata/viewsync/internal/warehouse"
)

// SourceClient is the upstream side of one sync: catalog introspection and
// streaming reads.
type SourceClient interface {
	Introspect(ctx context.Context, schema, view string) ([]meta.ColumnSpec, error)
	ForEachRow(ctx context.Context, query string, fn func(values []any) error) error
}

// SourceProvider returns a client for a named source binding.
type SourceProvider interface {
	Client(ctx context.Context, binding string) (SourceClient, error)
}

// NewPoolSourceProvider adapts the pgx-backed source provider to the
// engine's interface.
func NewPoolSourceProvider(p *source.Provider) SourceProvider {
	return poolSourceProvider{p: p}
}

type poolSourceProvider struct {
	p *source.Provider
}

func (a poolSourceProvider) Client(ctx context.Context, binding string) (SourceClient, error) {
	return a.p.Client(ctx, binding)
}

// Result is the outcome of one successful sync attempt.
type Result struct {
	RowsSynced    int64
	Duration      time.Duration
	SchemaChanges []meta.SchemaChange
}

// Engine drives full sync cycles for allow-listed views:
// introspect -> diff -> evolve schema -> reload data -> record outcome.
type Engine struct {
	cfg     *config.Config
	store   meta.Store
	sources SourceProvider
	exec    warehouse.Executor
	tables  *warehouse.Manager
	guard   *Guard
	metrics *telemetry.SyncMetrics
	batch   int
}

// Option configures the engine.
type Option func(*Engine)

// WithMetrics sets the sync metrics recorder.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a sync engine with injected dependencies.
func NewEngine(
	cfg *config.Config,
	store meta.Store,
	sources SourceProvider,
	exec warehouse.Executor,
	opts ...Option,
) *Engine {
	e := &Engine{
		cfg:     cfg,
		store:   store,
		sources: sources,
		exec:    exec,
		tables:  warehouse.NewManager(exec),
		guard:   NewGuard(store, cfg.Staleness()),
		batch:   cfg.BatchSize(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TriggerSync runs one full sync cycle for the named view. Every attempt
// reaches a terminal, recorded state: the SyncedView status and a finalized
// SyncLog reflect the outcome even on failure. A conflicting in-flight sync
// fails this call immediately without creating a SyncLog.
func (e *Engine) TriggerSync(ctx context.Context, binding, schema, view string) (*Result, error) {
	viewCfg, allowed := e.cfg.FindView(binding, schema, view)
	if !allowed {
		return nil, fmt.Errorf("%w: %s/%s.%s", ErrViewNotAllowed, binding, schema, view)
	}

	v, err := e.store.EnsureView(ctx, binding, schema, view, viewCfg.DestTable)
	if err != nil {
		return nil, newError(KindInternal, err, "failed to register view %s.%s", schema, view)
	}

	lease, err := e.guard.Acquire(ctx, v.ID)
	if err != nil {
		if errors.Is(err, ErrSyncConflict) {
			slog.Warn("Sync rejected, already in progress", "view", v.Key())
			e.metrics.RecordConflict(ctx, v.Key())
			return nil, fmt.Errorf("%w: %s", ErrSyncConflict, v.Key())
		}
		return nil, newError(KindConnection, err, "failed to acquire lease for %s", v.Key())
	}

	started := time.Now()
	slog.Info("Starting sync operation", "view", v.Key(), "dest_table", v.DestTable)

	attempt, err := e.store.CreateLog(ctx, v.ID)
	if err != nil {
		e.guard.Abandon(ctx, lease, "failed to create sync log: "+err.Error())
		return nil, newError(KindInternal, err, "failed to create sync log for %s", v.Key())
	}

	result, runErr := e.runAttempt(ctx, v)
	duration := time.Since(started)
	durationMs := duration.Milliseconds()

	if runErr != nil {
		var changes []meta.SchemaChange
		if result != nil {
			changes = result.SchemaChanges
		}
		if err := e.store.FinalizeLog(ctx, attempt.ID, meta.LogStatusFailed, 0, durationMs, runErr.Error(), changes); err != nil {
			slog.Error("Failed to finalize sync log", "view", v.Key(), "error", err)
		}
		if err := e.store.MarkSyncFailed(ctx, v.ID, runErr.Error()); err != nil {
			slog.Error("Failed to record sync failure", "view", v.Key(), "error", err)
		}
		e.metrics.RecordSyncDuration(ctx, v.Key(), duration, false)
		slog.Error("Sync failed", "view", v.Key(), "error", runErr)
		return nil, runErr
	}

	result.Duration = duration
	if err := e.store.FinalizeLog(
		ctx, attempt.ID, meta.LogStatusCompleted, result.RowsSynced, durationMs, "", result.SchemaChanges,
	); err != nil {
		slog.Error("Failed to finalize sync log", "view", v.Key(), "error", err)
	}
	if err := e.store.MarkSyncSucceeded(ctx, v.ID, result.RowsSynced, durationMs); err != nil {
		// The lease is still held; the staleness window will reclaim it.
		return nil, newError(KindInternal, err, "sync completed but status update failed for %s", v.Key())
	}

	e.metrics.RecordSyncDuration(ctx, v.Key(), duration, true)
	e.metrics.RecordRowsSynced(ctx, v.Key(), result.RowsSynced)
	for _, change := range result.SchemaChanges {
		e.metrics.RecordSchemaChange(ctx, v.Key(), string(change.Kind))
	}
	slog.Info("Sync completed successfully",
		"view", v.Key(),
		"rows", result.RowsSynced,
		"duration_ms", durationMs,
		"schema_changes", len(result.SchemaChanges))

	return result, nil
}

// runAttempt executes the introspect/evolve/load pipeline. It returns the
// partial result alongside any error so schema changes observed before a
// failure still land in the sync log.
func (e *Engine) runAttempt(ctx context.Context, v *meta.SyncedView) (*Result, error) {
	client, err := e.sources.Client(ctx, v.SourceBinding)
	if err != nil {
		return nil, newError(KindConnection, err, "failed to connect to source binding %q", v.SourceBinding)
	}

	specs, err := client.Introspect(ctx, v.SourceSchema, v.SourceView)
	if err != nil {
		kind := KindConnection
		if errors.Is(err, source.ErrViewMissing) {
			kind = KindIntrospection
		}
		return nil, newError(kind, err, "introspection of %s failed", v.Key())
	}

	specs, err = warehouse.SanitizeSpecs(specs)
	if err != nil {
		return nil, newError(KindIdentifier, err, "introspected columns of %s failed validation", v.Key())
	}

	live, err := e.store.ListLiveColumns(ctx, v.ID)
	if err != nil {
		return nil, newError(KindInternal, err, "failed to load known columns of %s", v.Key())
	}

	evolve, err := e.tables.EnsureTable(ctx, v.DestTable, specs, live)
	if err != nil {
		kind := Classify(err)
		if kind == KindInternal {
			kind = KindSchemaEvolution
		}
		// A partial evolve result names the breaking changes; pass it
		// through so the failed attempt's log records them.
		var partial *Result
		if evolve != nil {
			partial = &Result{SchemaChanges: evolve.Changes}
		}
		return partial, newError(kind, err, "schema evolution of %s failed", v.Key())
	}

	result := &Result{SchemaChanges: evolve.Changes}

	if err := e.recordSchemaDiff(ctx, v, specs, live, evolve); err != nil {
		return result, newError(KindInternal, err, "failed to record schema changes of %s", v.Key())
	}

	rows, err := e.reload(ctx, client, v, specs)
	if err != nil {
		kind := Classify(err)
		if kind == KindInternal {
			kind = KindDataLoad
		}
		return result, newError(kind, err, "data load of %s failed", v.Key())
	}
	result.RowsSynced = rows

	return result, nil
}

// recordSchemaDiff persists the evolve result: new columns, tombstones and
// the schema version bump. The version stays at 1 on the view's first
// materialization and increments only on later non-empty diffs.
func (e *Engine) recordSchemaDiff(
	ctx context.Context,
	v *meta.SyncedView,
	specs []meta.ColumnSpec,
	live []meta.SyncedColumn,
	evolve *warehouse.EvolveResult,
) error {
	added := evolve.Added
	removed := evolve.Removed

	// A re-created destination table (dropped out of band) still has live
	// metadata; fold it into a regular diff instead of duplicating rows.
	if evolve.Created && len(live) > 0 {
		liveNames := make(map[string]meta.SyncedColumn, len(live))
		for _, col := range live {
			liveNames[col.Name] = col
		}
		specNames := make(map[string]struct{}, len(specs))
		for _, spec := range specs {
			specNames[spec.Name] = struct{}{}
		}

		added = added[:0]
		for _, rec := range evolve.Added {
			if _, known := liveNames[rec.Name]; !known {
				added = append(added, rec)
			}
		}
		for _, col := range live {
			if _, still := specNames[col.Name]; !still {
				removed = append(removed, col.Name)
			}
		}
	}

	firstMaterialization := evolve.Created && len(live) == 0

	if len(added) > 0 || len(removed) > 0 {
		newVersion := v.SchemaVersion
		if !firstMaterialization {
			newVersion = v.SchemaVersion + 1
		}
		if err := e.store.ApplySchemaDiff(ctx, v.ID, newVersion, added, removed); err != nil {
			return err
		}
	}

	// Keep ordinal positions aligned with the latest introspection even on
	// runs without additions or removals.
	return e.store.UpdateColumnOrdinals(ctx, v.ID, specs)
}
