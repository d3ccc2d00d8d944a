package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridiandata/viewsync/internal/meta"
	"github.com/meridiandata/viewsync/internal/source"
	"github.com/meridiandata/viewsync/internal/warehouse"
)

// reload replaces the destination table's contents with a fresh snapshot of
// the source view. Delete and all inserts run in one destination
// transaction, so a failure anywhere leaves the previous rows intact.
func (e *Engine) reload(
	ctx context.Context,
	client SourceClient,
	v *meta.SyncedView,
	specs []meta.ColumnSpec,
) (int64, error) {
	dialect := e.exec.Dialect()

	loadCols := make([]source.LoadColumn, len(specs))
	insertCols := make([]string, 0, len(specs)+2)
	for i, spec := range specs {
		loadCols[i] = source.LoadColumn{Name: spec.Name, Cast: warehouse.LoadCast(spec.SourceType)}
		insertCols = append(insertCols, spec.Name)
	}
	insertCols = append(insertCols, warehouse.RowKeyColumn, warehouse.SyncedAtColumn)

	query, err := source.SelectAll(v.SourceSchema, v.SourceView, loadCols)
	if err != nil {
		return 0, err
	}

	tx, err := e.exec.BeginLoad(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Warn("Failed to roll back load transaction", "table", v.DestTable, "error", rbErr)
			}
		}
	}()

	deleteStmt, err := warehouse.RenderDeleteAll(dialect, v.DestTable)
	if err != nil {
		return 0, err
	}
	if err := tx.Exec(ctx, deleteStmt); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", v.DestTable, err)
	}

	// One timestamp for the whole snapshot, so _synced_at identifies the run.
	syncedAt := time.Now().UTC()

	argsPerRow := len(insertCols)
	args := make([]any, 0, e.batch*argsPerRow)
	pending := 0
	var total int64

	flush := func() error {
		if pending == 0 {
			return nil
		}
		stmt, err := warehouse.RenderInsert(dialect, v.DestTable, insertCols, pending)
		if err != nil {
			return err
		}
		if err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to insert batch into %s: %w", v.DestTable, err)
		}
		total += int64(pending)
		args = args[:0]
		pending = 0
		return nil
	}

	err = client.ForEachRow(ctx, query, func(values []any) error {
		if len(values) != len(specs) {
			return fmt.Errorf("source row has %d values, expected %d columns", len(values), len(specs))
		}
		args = append(args, values...)
		args = append(args, uuid.NewString(), syncedAt)
		pending++
		if pending >= e.batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read from %s: %w", v.Key(), err)
	}
	if err := flush(); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load into %s: %w", v.DestTable, err)
	}
	committed = true

	return total, nil
}
