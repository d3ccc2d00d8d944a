// Package meta defines the metadata model for synced views and the
// Postgres-backed store that persists it.
package meta

import (
	"time"

	"github.com/google/uuid"
)

// ViewStatus represents the lifecycle state of a synced view.
type ViewStatus string

const (
	// ViewStatusPending means the view is registered but has never completed a sync
	ViewStatusPending ViewStatus = "PENDING"

	// ViewStatusSyncing means a sync is currently in progress
	ViewStatusSyncing ViewStatus = "SYNCING"

	// ViewStatusSynced means the last sync completed successfully
	ViewStatusSynced ViewStatus = "SYNCED"

	// ViewStatusFailed means the last sync failed
	ViewStatusFailed ViewStatus = "FAILED"
)

// LogStatus represents the state of a single sync attempt.
type LogStatus string

const (
	// LogStatusRunning means the attempt is still in flight
	LogStatusRunning LogStatus = "RUNNING"

	// LogStatusCompleted means the attempt finished successfully
	LogStatusCompleted LogStatus = "COMPLETED"

	// LogStatusFailed means the attempt finished with an error
	LogStatusFailed LogStatus = "FAILED"
)

// SyncedView tracks one (source binding, schema, view) pair and its
// destination mirror. The engine is the sole writer.
type SyncedView struct {
	ID              uuid.UUID  `json:"id"`
	SourceBinding   string     `json:"source_binding"`
	SourceSchema    string     `json:"source_schema"`
	SourceView      string     `json:"source_view"`
	DestTable       string     `json:"dest_table"`
	Status          ViewStatus `json:"status"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
	SchemaVersion   int        `json:"schema_version"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LastSyncRows    int64      `json:"last_sync_rows"`
	LastSyncMs      int64      `json:"last_sync_duration_ms"`
	LastError       *string    `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Key returns the (binding, schema, view) tuple as a single string,
// used for logging and conflict reporting.
func (v *SyncedView) Key() string {
	return v.SourceBinding + "/" + v.SourceSchema + "." + v.SourceView
}

// SyncedColumn is one column of a synced view's destination schema at a
// point in time. Columns are never physically deleted: when a column
// disappears from the source, RemovedInVersion records the schema version
// at which it was tombstoned.
type SyncedColumn struct {
	ID               uuid.UUID `json:"id"`
	ViewID           uuid.UUID `json:"view_id"`
	Name             string    `json:"name"`
	SourceType       string    `json:"source_type"`
	DestType         string    `json:"dest_type"`
	Nullable         bool      `json:"nullable"`
	OrdinalPosition  int       `json:"ordinal_position"`
	RemovedInVersion *int      `json:"removed_in_version,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Live reports whether the column is still present in the source schema.
func (c *SyncedColumn) Live() bool {
	return c.RemovedInVersion == nil
}

// SyncLog is one record per sync attempt. Append-only.
type SyncLog struct {
	ID            uuid.UUID      `json:"id"`
	ViewID        uuid.UUID      `json:"view_id"`
	Status        LogStatus      `json:"status"`
	RowsSynced    int64          `json:"rows_synced"`
	DurationMs    int64          `json:"duration_ms"`
	Error         *string        `json:"error,omitempty"`
	SchemaChanges []SchemaChange `json:"schema_changes"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// ColumnSpec describes one column as reported by source introspection.
type ColumnSpec struct {
	Name            string `json:"name"`
	SourceType      string `json:"source_type"`
	Nullable        bool   `json:"nullable"`
	OrdinalPosition int    `json:"ordinal_position"`
}

// SchemaChangeKind classifies one observed schema change.
type SchemaChangeKind string

const (
	// ChangeTableCreated means the destination table was created from scratch
	ChangeTableCreated SchemaChangeKind = "table_created"

	// ChangeColumnAdded means a new source column was added to the destination
	ChangeColumnAdded SchemaChangeKind = "column_added"

	// ChangeColumnRemoved means a source column disappeared and was tombstoned
	ChangeColumnRemoved SchemaChangeKind = "column_removed"

	// ChangeTypeChanged means a live column's source type changed. This is a
	// breaking change and aborts the sync attempt.
	ChangeTypeChanged SchemaChangeKind = "type_changed"
)

// SchemaChange is one structured entry in a sync attempt's change list.
type SchemaChange struct {
	Kind       SchemaChangeKind `json:"kind"`
	Column     string           `json:"column,omitempty"`
	SourceType string           `json:"source_type,omitempty"`
	DestType   string           `json:"dest_type,omitempty"`
	// PrevSourceType is set for type_changed entries
	PrevSourceType string `json:"prev_source_type,omitempty"`
}
