package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrViewNotFound is returned when a synced view can't be found.
var ErrViewNotFound = errors.New("synced view not found")

// ColumnRecord is the input for recording a newly appeared column.
type ColumnRecord struct {
	ColumnSpec
	DestType string
}

// Store is the durable metadata store for synced views, their columns and
// their sync logs. The sync engine is the sole writer.
type Store interface {
	// EnsureView returns the tracked view for the tuple, creating a PENDING
	// record on first sight.
	EnsureView(ctx context.Context, binding, schema, view, destTable string) (*SyncedView, error)

	// GetView looks a view up by its (binding, schema, view) tuple.
	GetView(ctx context.Context, binding, schema, view string) (*SyncedView, error)

	// GetViewByID looks a view up by ID.
	GetViewByID(ctx context.Context, id uuid.UUID) (*SyncedView, error)

	// ListViews returns all tracked views.
	ListViews(ctx context.Context) ([]SyncedView, error)

	// DeleteView removes the view; columns and logs cascade.
	DeleteView(ctx context.Context, id uuid.UUID) error

	// AcquireSyncLease conditionally transitions the view to SYNCING.
	// It succeeds when the view is not currently SYNCING, or when a SYNCING
	// status is older than the staleness window (an abandoned sync from a
	// crashed process). Returns false when another sync holds the lease.
	AcquireSyncLease(ctx context.Context, id uuid.UUID, staleness time.Duration) (bool, error)

	// MarkSyncSucceeded finalizes a successful run.
	MarkSyncSucceeded(ctx context.Context, id uuid.UUID, rows, durationMs int64) error

	// MarkSyncFailed finalizes a failed run, recording the error message.
	MarkSyncFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// ListColumns returns all column records for the view, live and
	// tombstoned, ordered by ordinal position.
	ListColumns(ctx context.Context, viewID uuid.UUID) ([]SyncedColumn, error)

	// ListLiveColumns returns only columns not yet tombstoned.
	ListLiveColumns(ctx context.Context, viewID uuid.UUID) ([]SyncedColumn, error)

	// ApplySchemaDiff records added and tombstoned columns at newVersion and
	// bumps the view's schema version, all in one transaction. Callers must
	// only invoke it with a non-empty diff.
	ApplySchemaDiff(ctx context.Context, viewID uuid.UUID, newVersion int, added []ColumnRecord, removed []string) error

	// UpdateColumnOrdinals refreshes ordinal positions of live columns to
	// match the latest introspection.
	UpdateColumnOrdinals(ctx context.Context, viewID uuid.UUID, specs []ColumnSpec) error

	// CreateLog opens a RUNNING sync log for a new attempt.
	CreateLog(ctx context.Context, viewID uuid.UUID) (*SyncLog, error)

	// FinalizeLog closes a sync log with its terminal state.
	FinalizeLog(ctx context.Context, logID uuid.UUID, status LogStatus, rows, durationMs int64, errMsg string, changes []SchemaChange) error

	// ListLogs returns up to limit sync logs for the view, most recent first.
	ListLogs(ctx context.Context, viewID uuid.UUID, limit int) ([]SyncLog, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a Postgres-backed metadata store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const viewColumns = `id, source_binding, source_schema, source_view, dest_table,
	status, status_changed_at, schema_version, last_sync_at, last_sync_rows,
	last_sync_duration_ms, last_error, created_at, updated_at`

func scanView(row pgx.Row) (*SyncedView, error) {
	var v SyncedView
	err := row.Scan(
		&v.ID, &v.SourceBinding, &v.SourceSchema, &v.SourceView, &v.DestTable,
		&v.Status, &v.StatusChangedAt, &v.SchemaVersion, &v.LastSyncAt, &v.LastSyncRows,
		&v.LastSyncMs, &v.LastError, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrViewNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *pgStore) EnsureView(ctx context.Context, binding, schema, view, destTable string) (*SyncedView, error) {
	// dest_table follows the configuration, so renaming a view's destination
	// table in config takes effect on the next sync.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO synced_views (id, source_binding, source_schema, source_view, dest_table)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_binding, source_schema, source_view) DO UPDATE
			SET dest_table = EXCLUDED.dest_table,
			    updated_at = now()
		RETURNING `+viewColumns,
		uuid.New(), binding, schema, view, destTable)
	return scanView(row)
}

func (s *pgStore) GetView(ctx context.Context, binding, schema, view string) (*SyncedView, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+viewColumns+` FROM synced_views
		WHERE source_binding = $1 AND source_schema = $2 AND source_view = $3`,
		binding, schema, view)
	return scanView(row)
}

func (s *pgStore) GetViewByID(ctx context.Context, id uuid.UUID) (*SyncedView, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+viewColumns+` FROM synced_views WHERE id = $1`, id)
	return scanView(row)
}

func (s *pgStore) ListViews(ctx context.Context) ([]SyncedView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+viewColumns+` FROM synced_views
		ORDER BY source_binding, source_schema, source_view`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []SyncedView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, rows.Err()
}

func (s *pgStore) DeleteView(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM synced_views WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrViewNotFound
	}
	return nil
}

func (s *pgStore) AcquireSyncLease(ctx context.Context, id uuid.UUID, staleness time.Duration) (bool, error) {
	// Single conditional UPDATE so the transition is atomic across
	// processes. An over-stale SYNCING row is an abandoned sync and may be
	// taken over.
	tag, err := s.pool.Exec(ctx, `
		UPDATE synced_views
		SET status = 'SYNCING', status_changed_at = now(), updated_at = now()
		WHERE id = $1
		  AND (status <> 'SYNCING' OR status_changed_at < now() - $2::interval)`,
		id, staleness)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgStore) MarkSyncSucceeded(ctx context.Context, id uuid.UUID, rows, durationMs int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE synced_views
		SET status = 'SYNCED', status_changed_at = now(), last_sync_at = now(),
		    last_sync_rows = $2, last_sync_duration_ms = $3, last_error = NULL,
		    updated_at = now()
		WHERE id = $1`,
		id, rows, durationMs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrViewNotFound
	}
	return nil
}

func (s *pgStore) MarkSyncFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE synced_views
		SET status = 'FAILED', status_changed_at = now(), last_error = $2,
		    updated_at = now()
		WHERE id = $1`,
		id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrViewNotFound
	}
	return nil
}

const columnColumns = `id, view_id, column_name, source_type, dest_type,
	is_nullable, ordinal_position, removed_in_version, created_at`

func (s *pgStore) listColumns(ctx context.Context, viewID uuid.UUID, liveOnly bool) ([]SyncedColumn, error) {
	query := `SELECT ` + columnColumns + ` FROM synced_columns WHERE view_id = $1`
	if liveOnly {
		query += ` AND removed_in_version IS NULL`
	}
	query += ` ORDER BY ordinal_position, column_name`

	rows, err := s.pool.Query(ctx, query, viewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []SyncedColumn
	for rows.Next() {
		var c SyncedColumn
		if err := rows.Scan(
			&c.ID, &c.ViewID, &c.Name, &c.SourceType, &c.DestType,
			&c.Nullable, &c.OrdinalPosition, &c.RemovedInVersion, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (s *pgStore) ListColumns(ctx context.Context, viewID uuid.UUID) ([]SyncedColumn, error) {
	return s.listColumns(ctx, viewID, false)
}

func (s *pgStore) ListLiveColumns(ctx context.Context, viewID uuid.UUID) ([]SyncedColumn, error) {
	return s.listColumns(ctx, viewID, true)
}

func (s *pgStore) ApplySchemaDiff(
	ctx context.Context, viewID uuid.UUID, newVersion int, added []ColumnRecord, removed []string,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, col := range added {
		_, err := tx.Exec(ctx, `
			INSERT INTO synced_columns
				(id, view_id, column_name, source_type, dest_type, is_nullable, ordinal_position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), viewID, col.Name, col.SourceType, col.DestType, col.Nullable, col.OrdinalPosition)
		if err != nil {
			return fmt.Errorf("failed to record column %q: %w", col.Name, err)
		}
	}

	if len(removed) > 0 {
		_, err := tx.Exec(ctx, `
			UPDATE synced_columns SET removed_in_version = $3
			WHERE view_id = $1 AND column_name = ANY($2) AND removed_in_version IS NULL`,
			viewID, removed, newVersion)
		if err != nil {
			return fmt.Errorf("failed to tombstone columns: %w", err)
		}
	}

	// newVersion equals the current version on the very first table
	// creation (version stays at 1) and current+1 on later diffs.
	tag, err := tx.Exec(ctx, `
		UPDATE synced_views SET schema_version = $2, updated_at = now()
		WHERE id = $1 AND schema_version <= $2`,
		viewID, newVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schema version of view %s regressed past %d", viewID, newVersion)
	}

	return tx.Commit(ctx)
}

func (s *pgStore) UpdateColumnOrdinals(ctx context.Context, viewID uuid.UUID, specs []ColumnSpec) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, spec := range specs {
		_, err := tx.Exec(ctx, `
			UPDATE synced_columns SET ordinal_position = $3
			WHERE view_id = $1 AND column_name = $2 AND removed_in_version IS NULL`,
			viewID, spec.Name, spec.OrdinalPosition)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *pgStore) CreateLog(ctx context.Context, viewID uuid.UUID) (*SyncLog, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sync_logs (id, view_id, status)
		VALUES ($1, $2, 'RUNNING')
		RETURNING id, view_id, status, rows_synced, duration_ms, error, schema_changes, started_at, completed_at`,
		uuid.New(), viewID)
	return scanLog(row)
}

func (s *pgStore) FinalizeLog(
	ctx context.Context, logID uuid.UUID, status LogStatus, rows, durationMs int64, errMsg string, changes []SchemaChange,
) error {
	if changes == nil {
		changes = []SchemaChange{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal schema changes: %w", err)
	}

	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_logs
		SET status = $2, rows_synced = $3, duration_ms = $4, error = $5,
		    schema_changes = $6, completed_at = now()
		WHERE id = $1`,
		logID, status, rows, durationMs, errPtr, changesJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync log %s not found", logID)
	}
	return nil
}

func (s *pgStore) ListLogs(ctx context.Context, viewID uuid.UUID, limit int) ([]SyncLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, view_id, status, rows_synced, duration_ms, error, schema_changes, started_at, completed_at
		FROM sync_logs
		WHERE view_id = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		viewID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []SyncLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func scanLog(row pgx.Row) (*SyncLog, error) {
	var l SyncLog
	var changesJSON []byte
	err := row.Scan(
		&l.ID, &l.ViewID, &l.Status, &l.RowsSynced, &l.DurationMs,
		&l.Error, &changesJSON, &l.StartedAt, &l.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(changesJSON) > 0 {
		if err := json.Unmarshal(changesJSON, &l.SchemaChanges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema changes: %w", err)
		}
	}
	return &l, nil
}
