package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridiandata/viewsync/internal/meta"
	"github.com/meridiandata/viewsync/internal/sqlident"
)

// ErrBreakingTypeChange is returned when a live column's source type changed
// between syncs. Automatic casts can fail or silently truncate data, so the
// change requires operator attention.
var ErrBreakingTypeChange = errors.New("breaking source type change")

// EvolveResult describes what EnsureTable did to the destination schema.
type EvolveResult struct {
	// Created is true when the table was created from scratch
	Created bool

	// Changes is the structured change list for the sync log
	Changes []meta.SchemaChange

	// Added are columns that appeared this run, to be recorded in metadata
	Added []meta.ColumnRecord

	// Removed are live column names that disappeared from the source, to be
	// tombstoned in metadata. No DDL is issued for them.
	Removed []string
}

// Empty reports whether the run observed no schema change.
func (r *EvolveResult) Empty() bool {
	return len(r.Changes) == 0
}

// Manager translates introspected column specs into destination DDL.
type Manager struct {
	exec Executor
}

// NewManager creates a table manager over the given warehouse executor.
func NewManager(exec Executor) *Manager {
	return &Manager{exec: exec}
}

// EnsureTable creates the destination table if missing, or evolves it to
// match the introspected specs, diffing against the last known live column
// set. All DDL runs in its own transaction, committed before any data load.
//
// Column names are normalized through the sanitizer; a name that fails
// validation aborts before any DDL is issued. A changed source type on a
// live column aborts with ErrBreakingTypeChange.
func (m *Manager) EnsureTable(
	ctx context.Context, destTable string, specs []meta.ColumnSpec, live []meta.SyncedColumn,
) (*EvolveResult, error) {
	table, err := sqlident.Sanitize(destTable)
	if err != nil {
		return nil, err
	}

	specs, err = SanitizeSpecs(specs)
	if err != nil {
		return nil, err
	}

	exists, err := m.exec.TableExists(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to check destination table %q: %w", table, err)
	}

	if !exists {
		return m.createTable(ctx, table, specs)
	}
	return m.evolveTable(ctx, table, specs, live)
}

// DropTable physically drops the destination table. Used only by explicit
// view deletion.
func (m *Manager) DropTable(ctx context.Context, destTable string) error {
	stmt, err := RenderDropTable(m.exec.Dialect(), destTable)
	if err != nil {
		return err
	}
	return m.exec.ExecDDL(ctx, []string{stmt})
}

func (m *Manager) createTable(ctx context.Context, table string, specs []meta.ColumnSpec) (*EvolveResult, error) {
	d := m.exec.Dialect()

	result := &EvolveResult{
		Created: true,
		Changes: []meta.SchemaChange{{Kind: meta.ChangeTableCreated}},
	}

	cols := make([]Column, 0, len(specs))
	for _, spec := range specs {
		destType := mapColumnType(d, spec)
		cols = append(cols, Column{Name: spec.Name, Type: destType, Nullable: spec.Nullable})
		result.Added = append(result.Added, meta.ColumnRecord{ColumnSpec: spec, DestType: destType})
		result.Changes = append(result.Changes, meta.SchemaChange{
			Kind:       meta.ChangeColumnAdded,
			Column:     spec.Name,
			SourceType: spec.SourceType,
			DestType:   destType,
		})
	}

	stmt, err := RenderCreateTable(d, table, cols)
	if err != nil {
		return nil, err
	}
	if err := m.exec.ExecDDL(ctx, []string{stmt}); err != nil {
		return nil, fmt.Errorf("failed to create destination table %q: %w", table, err)
	}

	slog.Info("Created destination table", "table", table, "columns", len(specs))
	return result, nil
}

func (m *Manager) evolveTable(
	ctx context.Context, table string, specs []meta.ColumnSpec, live []meta.SyncedColumn,
) (*EvolveResult, error) {
	d := m.exec.Dialect()

	liveByName := make(map[string]meta.SyncedColumn, len(live))
	for _, col := range live {
		liveByName[col.Name] = col
	}
	specByName := make(map[string]meta.ColumnSpec, len(specs))
	for _, spec := range specs {
		specByName[spec.Name] = spec
	}

	// A changed source type is a breaking change: abort before any DDL. The
	// partial result carries the offending columns so the failed attempt's
	// log still records what changed.
	var changedCols []string
	var changed []meta.SchemaChange
	for _, spec := range specs {
		prev, ok := liveByName[spec.Name]
		if !ok || prev.SourceType == spec.SourceType {
			continue
		}
		changedCols = append(changedCols, fmt.Sprintf("%s (%s -> %s)", spec.Name, prev.SourceType, spec.SourceType))
		changed = append(changed, meta.SchemaChange{
			Kind:           meta.ChangeTypeChanged,
			Column:         spec.Name,
			SourceType:     spec.SourceType,
			DestType:       prev.DestType,
			PrevSourceType: prev.SourceType,
		})
	}
	if len(changedCols) > 0 {
		return &EvolveResult{Changes: changed},
			fmt.Errorf("%w on %s: %s", ErrBreakingTypeChange, table, strings.Join(changedCols, ", "))
	}

	result := &EvolveResult{}
	var ddl []string

	for _, spec := range specs {
		if _, known := liveByName[spec.Name]; known {
			continue
		}
		destType := mapColumnType(d, spec)
		stmt, err := RenderAddColumn(d, table, Column{Name: spec.Name, Type: destType})
		if err != nil {
			return nil, err
		}
		ddl = append(ddl, stmt)
		result.Added = append(result.Added, meta.ColumnRecord{ColumnSpec: spec, DestType: destType})
		result.Changes = append(result.Changes, meta.SchemaChange{
			Kind:       meta.ChangeColumnAdded,
			Column:     spec.Name,
			SourceType: spec.SourceType,
			DestType:   destType,
		})
	}

	// Columns that disappeared upstream are tombstoned in metadata only.
	// The destination column and its historical data stay in place.
	for _, col := range live {
		if _, still := specByName[col.Name]; still {
			continue
		}
		result.Removed = append(result.Removed, col.Name)
		result.Changes = append(result.Changes, meta.SchemaChange{
			Kind:       meta.ChangeColumnRemoved,
			Column:     col.Name,
			SourceType: col.SourceType,
			DestType:   col.DestType,
		})
	}

	if len(ddl) > 0 {
		if err := m.exec.ExecDDL(ctx, ddl); err != nil {
			return nil, fmt.Errorf("failed to evolve destination table %q: %w", table, err)
		}
		slog.Info("Evolved destination table",
			"table", table,
			"columns_added", len(result.Added),
			"columns_removed", len(result.Removed))
	}

	return result, nil
}

// mapColumnType maps a column's source type, logging when it lands in the
// textual fallback so an exotic upstream type never degrades silently.
func mapColumnType(d Dialect, spec meta.ColumnSpec) string {
	if !RecognizedType(spec.SourceType) {
		slog.Warn("Unrecognized source type, storing as text",
			"column", spec.Name,
			"source_type", spec.SourceType)
	}
	return MapType(d, spec.SourceType)
}

// SanitizeSpecs normalizes column names in the introspected specs. The
// sanitized name is the destination column name and the metadata key.
func SanitizeSpecs(specs []meta.ColumnSpec) ([]meta.ColumnSpec, error) {
	out := make([]meta.ColumnSpec, len(specs))
	for i, spec := range specs {
		name, err := sqlident.Sanitize(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("source column %d: %w", spec.OrdinalPosition, err)
		}
		spec.Name = name
		out[i] = spec
	}
	return out, nil
}
