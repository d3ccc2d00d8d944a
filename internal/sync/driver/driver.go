// Package driver runs sync cycles across all configured views, one view at
// a time, and reports per-view progress events.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridiandata/viewsync/internal/config"
	"github.com/meridiandata/viewsync/internal/source"
	pkgsync "github.com/meridiandata/viewsync/internal/sync"
)

// EventKind classifies a progress event emitted during a sync-all run.
type EventKind string

const (
	// EventRunStarted opens a run, before the first view
	EventRunStarted EventKind = "run_started"

	// EventViewSyncing marks the start of one view's sync
	EventViewSyncing EventKind = "view_syncing"

	// EventViewSynced marks one view's successful sync
	EventViewSynced EventKind = "view_synced"

	// EventViewFailed marks one view's failed sync
	EventViewFailed EventKind = "view_failed"

	// EventRunCompleted closes a run, after the last view
	EventRunCompleted EventKind = "run_completed"
)

// Event is one progress report from a sync-all run.
type Event struct {
	Kind    EventKind `json:"kind"`
	Binding string    `json:"binding,omitempty"`
	Schema  string    `json:"schema,omitempty"`
	View    string    `json:"view,omitempty"`
	Rows    int64     `json:"rows,omitempty"`
	Error   string    `json:"error,omitempty"`

	// Succeeded and Failed are set on run_completed
	Succeeded int `json:"succeeded,omitempty"`
	Failed    int `json:"failed,omitempty"`
}

// Sink receives progress events. Implementations must be fast; the driver
// calls them inline between views.
type Sink func(Event)

// Syncer triggers one view sync. *sync.Engine satisfies it.
type Syncer interface {
	TriggerSync(ctx context.Context, binding, schema, view string) (*pkgsync.Result, error)
}

// Driver syncs every configured view sequentially. One view's failure does
// not stop the remaining views.
type Driver struct {
	cfg    *config.Config
	syncer Syncer
}

// New creates a driver over the configured views.
func New(cfg *config.Config, syncer Syncer) *Driver {
	return &Driver{cfg: cfg, syncer: syncer}
}

// Summary is the aggregate outcome of one sync-all run.
type Summary struct {
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// SyncAll runs one sync cycle, in configuration order, over every view of
// the named binding, or over every configured view when binding is empty.
// Events go to sink when it is non-nil. The run stops early only on context
// cancellation; per-view errors are reported and counted.
func (d *Driver) SyncAll(ctx context.Context, binding string, sink Sink) (*Summary, error) {
	views := d.cfg.Views
	if binding != "" {
		if _, ok := d.cfg.FindBinding(binding); !ok {
			return nil, fmt.Errorf("%w: %q", source.ErrUnknownBinding, binding)
		}
		views = d.cfg.ViewsForBinding(binding)
	}

	emit := func(e Event) {
		if sink != nil {
			sink(e)
		}
	}

	started := time.Now()
	emit(Event{Kind: EventRunStarted})
	slog.Info("Starting sync run", "binding", binding, "view_count", len(views))

	summary := &Summary{}
	for _, view := range views {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		emit(Event{
			Kind:    EventViewSyncing,
			Binding: view.Binding,
			Schema:  view.Schema,
			View:    view.View,
		})

		result, err := d.syncer.TriggerSync(ctx, view.Binding, view.Schema, view.View)
		if err != nil {
			summary.Failed++
			emit(Event{
				Kind:    EventViewFailed,
				Binding: view.Binding,
				Schema:  view.Schema,
				View:    view.View,
				Error:   err.Error(),
			})
			continue
		}

		summary.Succeeded++
		emit(Event{
			Kind:    EventViewSynced,
			Binding: view.Binding,
			Schema:  view.Schema,
			View:    view.View,
			Rows:    result.RowsSynced,
		})
	}

	summary.Duration = time.Since(started)
	emit(Event{
		Kind:      EventRunCompleted,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
	})
	slog.Info("Sync run finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration)

	return summary, nil
}
