package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridiandata/viewsync/internal/meta"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

// ViewDetail is a tracked view with its column records, when requested.
type ViewDetail struct {
	View    meta.SyncedView
	Columns []meta.SyncedColumn
}

// ListViews returns all tracked views.
func (e *Engine) ListViews(ctx context.Context) ([]meta.SyncedView, error) {
	views, err := e.store.ListViews(ctx)
	if err != nil {
		return nil, newError(KindInternal, err, "failed to list views")
	}
	return views, nil
}

// GetView returns one tracked view by ID, optionally with its full column
// history including tombstoned columns.
func (e *Engine) GetView(ctx context.Context, id uuid.UUID, includeColumns bool) (*ViewDetail, error) {
	v, err := e.store.GetViewByID(ctx, id)
	if err != nil {
		if errors.Is(err, meta.ErrViewNotFound) {
			return nil, err
		}
		return nil, newError(KindInternal, err, "failed to load view %s", id)
	}
	detail := &ViewDetail{View: *v}
	if includeColumns {
		cols, err := e.store.ListColumns(ctx, id)
		if err != nil {
			return nil, newError(KindInternal, err, "failed to load columns of view %s", id)
		}
		detail.Columns = cols
	}
	return detail, nil
}

// GetLogs returns recent sync logs for a view, most recent first. A limit
// outside [1, 100] is clamped to the default of 20.
func (e *Engine) GetLogs(ctx context.Context, id uuid.UUID, limit int) ([]meta.SyncLog, error) {
	if limit < 1 || limit > maxLogLimit {
		limit = defaultLogLimit
	}
	if _, err := e.store.GetViewByID(ctx, id); err != nil {
		if errors.Is(err, meta.ErrViewNotFound) {
			return nil, err
		}
		return nil, newError(KindInternal, err, "failed to load view %s", id)
	}
	logs, err := e.store.ListLogs(ctx, id, limit)
	if err != nil {
		return nil, newError(KindInternal, err, "failed to list sync logs of view %s", id)
	}
	return logs, nil
}

// DeleteView removes a tracked view: the destination table is dropped and
// all metadata, columns and logs included, is deleted. The view's lease is
// taken first so an in-flight sync cannot race the drop.
func (e *Engine) DeleteView(ctx context.Context, id uuid.UUID) error {
	v, err := e.store.GetViewByID(ctx, id)
	if err != nil {
		if errors.Is(err, meta.ErrViewNotFound) {
			return err
		}
		return newError(KindInternal, err, "failed to load view %s", id)
	}

	if _, err := e.guard.Acquire(ctx, v.ID); err != nil {
		if errors.Is(err, ErrSyncConflict) {
			return fmt.Errorf("%w: cannot delete %s while a sync is running", ErrSyncConflict, v.Key())
		}
		return newError(KindConnection, err, "failed to acquire lease for %s", v.Key())
	}

	if err := e.tables.DropTable(ctx, v.DestTable); err != nil {
		// Leave metadata in place so the next delete retries the drop.
		e.guard.Abandon(ctx, &Lease{ViewID: v.ID}, "table drop failed: "+err.Error())
		return newError(KindSchemaEvolution, err, "failed to drop table %s", v.DestTable)
	}

	if err := e.store.DeleteView(ctx, id); err != nil {
		return newError(KindInternal, err, "failed to delete metadata of %s", v.Key())
	}

	slog.Info("View deleted", "view", v.Key(), "dest_table", v.DestTable)
	return nil
}
