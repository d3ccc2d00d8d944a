package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandata/viewsync/internal/config"
	"github.com/meridiandata/viewsync/internal/meta"
	"github.com/meridiandata/viewsync/internal/source"
	"github.com/meridiandata/viewsync/internal/warehouse"
)

// fakeStore is an in-memory meta.Store with the same conditional lease
// semantics as the Postgres implementation.
type fakeStore struct {
	views   map[uuid.UUID]*meta.SyncedView
	columns []meta.SyncedColumn
	logs    []meta.SyncLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{views: make(map[uuid.UUID]*meta.SyncedView)}
}

func (s *fakeStore) EnsureView(_ context.Context, binding, schema, view, destTable string) (*meta.SyncedView, error) {
	for _, v := range s.views {
		if v.SourceBinding == binding && v.SourceSchema == schema && v.SourceView == view {
			v.DestTable = destTable
			out := *v
			return &out, nil
		}
	}
	v := &meta.SyncedView{
		ID:            uuid.New(),
		SourceBinding: binding,
		SourceSchema:  schema,
		SourceView:    view,
		DestTable:     destTable,
		Status:        meta.ViewStatusPending,
		SchemaVersion: 1,
		CreatedAt:     time.Now(),
	}
	s.views[v.ID] = v
	out := *v
	return &out, nil
}

func (s *fakeStore) GetView(_ context.Context, binding, schema, view string) (*meta.SyncedView, error) {
	for _, v := range s.views {
		if v.SourceBinding == binding && v.SourceSchema == schema && v.SourceView == view {
			out := *v
			return &out, nil
		}
	}
	return nil, meta.ErrViewNotFound
}

func (s *fakeStore) GetViewByID(_ context.Context, id uuid.UUID) (*meta.SyncedView, error) {
	v, ok := s.views[id]
	if !ok {
		return nil, meta.ErrViewNotFound
	}
	out := *v
	return &out, nil
}

func (s *fakeStore) ListViews(_ context.Context) ([]meta.SyncedView, error) {
	var out []meta.SyncedView
	for _, v := range s.views {
		out = append(out, *v)
	}
	return out, nil
}

func (s *fakeStore) DeleteView(_ context.Context, id uuid.UUID) error {
	if _, ok := s.views[id]; !ok {
		return meta.ErrViewNotFound
	}
	delete(s.views, id)
	return nil
}

func (s *fakeStore) AcquireSyncLease(_ context.Context, id uuid.UUID, staleness time.Duration) (bool, error) {
	v, ok := s.views[id]
	if !ok {
		return false, nil
	}
	if v.Status == meta.ViewStatusSyncing && time.Since(v.StatusChangedAt) < staleness {
		return false, nil
	}
	v.Status = meta.ViewStatusSyncing
	v.StatusChangedAt = time.Now()
	return true, nil
}

func (s *fakeStore) MarkSyncSucceeded(_ context.Context, id uuid.UUID, rows, durationMs int64) error {
	v, ok := s.views[id]
	if !ok {
		return meta.ErrViewNotFound
	}
	now := time.Now()
	v.Status = meta.ViewStatusSynced
	v.StatusChangedAt = now
	v.LastSyncAt = &now
	v.LastSyncRows = rows
	v.LastSyncMs = durationMs
	v.LastError = nil
	return nil
}

func (s *fakeStore) MarkSyncFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	v, ok := s.views[id]
	if !ok {
		return meta.ErrViewNotFound
	}
	v.Status = meta.ViewStatusFailed
	v.StatusChangedAt = time.Now()
	v.LastError = &errMsg
	return nil
}

func (s *fakeStore) ListColumns(_ context.Context, viewID uuid.UUID) ([]meta.SyncedColumn, error) {
	var out []meta.SyncedColumn
	for _, c := range s.columns {
		if c.ViewID == viewID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) ListLiveColumns(_ context.Context, viewID uuid.UUID) ([]meta.SyncedColumn, error) {
	var out []meta.SyncedColumn
	for _, c := range s.columns {
		if c.ViewID == viewID && c.Live() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) ApplySchemaDiff(
	_ context.Context, viewID uuid.UUID, newVersion int, added []meta.ColumnRecord, removed []string,
) error {
	for _, rec := range added {
		s.columns = append(s.columns, meta.SyncedColumn{
			ID:              uuid.New(),
			ViewID:          viewID,
			Name:            rec.Name,
			SourceType:      rec.SourceType,
			DestType:        rec.DestType,
			Nullable:        rec.Nullable,
			OrdinalPosition: rec.OrdinalPosition,
			CreatedAt:       time.Now(),
		})
	}
	for i := range s.columns {
		c := &s.columns[i]
		if c.ViewID != viewID || !c.Live() {
			continue
		}
		for _, name := range removed {
			if c.Name == name {
				version := newVersion
				c.RemovedInVersion = &version
			}
		}
	}
	v, ok := s.views[viewID]
	if !ok {
		return meta.ErrViewNotFound
	}
	if v.SchemaVersion > newVersion {
		return fmt.Errorf("schema version regressed")
	}
	v.SchemaVersion = newVersion
	return nil
}

func (s *fakeStore) UpdateColumnOrdinals(_ context.Context, viewID uuid.UUID, specs []meta.ColumnSpec) error {
	for i := range s.columns {
		c := &s.columns[i]
		if c.ViewID != viewID || !c.Live() {
			continue
		}
		for _, spec := range specs {
			if spec.Name == c.Name {
				c.OrdinalPosition = spec.OrdinalPosition
			}
		}
	}
	return nil
}

func (s *fakeStore) CreateLog(_ context.Context, viewID uuid.UUID) (*meta.SyncLog, error) {
	l := meta.SyncLog{
		ID:        uuid.New(),
		ViewID:    viewID,
		Status:    meta.LogStatusRunning,
		StartedAt: time.Now(),
	}
	s.logs = append(s.logs, l)
	return &l, nil
}

func (s *fakeStore) FinalizeLog(
	_ context.Context, logID uuid.UUID, status meta.LogStatus, rows, durationMs int64, errMsg string, changes []meta.SchemaChange,
) error {
	for i := range s.logs {
		if s.logs[i].ID != logID {
			continue
		}
		now := time.Now()
		s.logs[i].Status = status
		s.logs[i].RowsSynced = rows
		s.logs[i].DurationMs = durationMs
		s.logs[i].SchemaChanges = changes
		s.logs[i].CompletedAt = &now
		if errMsg != "" {
			s.logs[i].Error = &errMsg
		}
		return nil
	}
	return fmt.Errorf("sync log %s not found", logID)
}

func (s *fakeStore) ListLogs(_ context.Context, viewID uuid.UUID, limit int) ([]meta.SyncLog, error) {
	var out []meta.SyncLog
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.logs[i].ViewID == viewID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

// fakeSourceClient serves canned introspection results and rows.
type fakeSourceClient struct {
	specs []meta.ColumnSpec
	rows  [][]any

	introspectErr error
	rowsErr       error
}

func (c *fakeSourceClient) Introspect(_ context.Context, _, _ string) ([]meta.ColumnSpec, error) {
	if c.introspectErr != nil {
		return nil, c.introspectErr
	}
	return c.specs, nil
}

func (c *fakeSourceClient) ForEachRow(_ context.Context, _ string, fn func(values []any) error) error {
	if c.rowsErr != nil {
		return c.rowsErr
	}
	for _, row := range c.rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

type fakeSourceProvider struct {
	client *fakeSourceClient
	err    error
}

func (p *fakeSourceProvider) Client(_ context.Context, _ string) (SourceClient, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

// fakeLoadTx records load statements.
type fakeLoadTx struct {
	execs      []string
	args       [][]any
	committed  bool
	rolledBack bool

	execErr error
}

func (tx *fakeLoadTx) Exec(_ context.Context, query string, args ...any) error {
	if tx.execErr != nil && strings.HasPrefix(query, "INSERT") {
		return tx.execErr
	}
	tx.execs = append(tx.execs, query)
	tx.args = append(tx.args, args)
	return nil
}

func (tx *fakeLoadTx) Commit() error {
	tx.committed = true
	return nil
}

func (tx *fakeLoadTx) Rollback() error {
	tx.rolledBack = true
	return nil
}

// fakeWarehouse is a warehouse.Executor over recorded state.
type fakeWarehouse struct {
	dialect warehouse.Dialect
	exists  bool
	ddl     []string
	tx      *fakeLoadTx

	// failNextLoad makes INSERTs in the next load transaction fail
	failNextLoad error
}

func (f *fakeWarehouse) Dialect() warehouse.Dialect {
	return f.dialect
}

func (f *fakeWarehouse) TableExists(_ context.Context, _ string) (bool, error) {
	return f.exists, nil
}

func (f *fakeWarehouse) ExecDDL(_ context.Context, stmts []string) error {
	f.ddl = append(f.ddl, stmts...)
	f.exists = true
	return nil
}

func (f *fakeWarehouse) BeginLoad(_ context.Context) (warehouse.LoadTx, error) {
	f.tx = &fakeLoadTx{execErr: f.failNextLoad}
	f.failNextLoad = nil
	return f.tx, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Bindings: []config.BindingConfig{
			{Name: "orders-db", Database: &config.DatabaseConfig{
				Host: "localhost", Port: 5432, User: "app", Database: "orders",
			}},
		},
		Views: []config.ViewConfig{
			{Binding: "orders-db", Schema: "public", View: "order_lines", DestTable: "order_lines"},
		},
		Warehouse:     config.WarehouseConfig{Driver: "duckdb", Path: "/tmp/wh.db"},
		LoadBatchSize: 2,
	}
}

func orderLineSpecs() []meta.ColumnSpec {
	return []meta.ColumnSpec{
		{Name: "id", SourceType: "integer", Nullable: false, OrdinalPosition: 1},
		{Name: "total", SourceType: "numeric(10,2)", Nullable: true, OrdinalPosition: 2},
	}
}

func newTestEngine(store *fakeStore, client *fakeSourceClient, wh *fakeWarehouse) *Engine {
	return NewEngine(testConfig(), store, &fakeSourceProvider{client: client}, wh)
}

func TestTriggerSyncNotAllowed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	engine := newTestEngine(store, &fakeSourceClient{}, &fakeWarehouse{dialect: warehouse.DialectDuckDB})

	_, err := engine.TriggerSync(context.Background(), "orders-db", "public", "secret_table")
	require.ErrorIs(t, err, ErrViewNotAllowed)

	// Fails closed before touching the metadata store.
	assert.Empty(t, store.views)
	assert.Empty(t, store.logs)
}

func TestTriggerSyncFirstRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{
		specs: orderLineSpecs(),
		rows: [][]any{
			{int64(1), 9.99},
			{int64(2), 19.99},
			{int64(3), 29.99},
		},
	}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, client, wh)

	result, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.RowsSynced)
	require.NotEmpty(t, result.SchemaChanges)
	assert.Equal(t, meta.ChangeTableCreated, result.SchemaChanges[0].Kind)

	// Table created with internal columns.
	require.NotEmpty(t, wh.ddl)
	assert.Contains(t, wh.ddl[0], "CREATE TABLE order_lines")

	// Reload ran in one transaction: DELETE, two batched INSERTs, commit.
	require.NotNil(t, wh.tx)
	require.Len(t, wh.tx.execs, 3)
	assert.Equal(t, "DELETE FROM order_lines", wh.tx.execs[0])
	assert.Contains(t, wh.tx.execs[1], "INSERT INTO order_lines")
	assert.True(t, wh.tx.committed)
	assert.False(t, wh.tx.rolledBack)

	// Each inserted row carries the two engine columns.
	assert.Len(t, wh.tx.args[1], 2*4) // batch of 2 rows, 2 business + 2 internal columns
	assert.Len(t, wh.tx.args[2], 1*4) // final batch of 1 row

	// First materialization keeps schema version 1.
	v, err := store.GetView(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, 1, v.SchemaVersion)
	assert.Equal(t, meta.ViewStatusSynced, v.Status)
	assert.Equal(t, int64(3), v.LastSyncRows)

	cols, err := store.ListLiveColumns(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	require.Len(t, store.logs, 1)
	assert.Equal(t, meta.LogStatusCompleted, store.logs[0].Status)
	assert.Equal(t, int64(3), store.logs[0].RowsSynced)
}

func TestTriggerSyncConflict(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, &fakeSourceClient{specs: orderLineSpecs()}, wh)

	v, err := store.EnsureView(context.Background(), "orders-db", "public", "order_lines", "order_lines")
	require.NoError(t, err)
	store.views[v.ID].Status = meta.ViewStatusSyncing
	store.views[v.ID].StatusChangedAt = time.Now()

	_, err = engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.ErrorIs(t, err, ErrSyncConflict)

	// A rejected request leaves no sync log behind.
	assert.Empty(t, store.logs)
	// The in-flight sync's status is untouched.
	assert.Equal(t, meta.ViewStatusSyncing, store.views[v.ID].Status)
}

func TestTriggerSyncRecoversStaleLease(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{specs: orderLineSpecs(), rows: [][]any{{int64(1), 9.99}}}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, client, wh)

	// A crashed process left the view SYNCING past the staleness window.
	v, err := store.EnsureView(context.Background(), "orders-db", "public", "order_lines", "order_lines")
	require.NoError(t, err)
	store.views[v.ID].Status = meta.ViewStatusSyncing
	store.views[v.ID].StatusChangedAt = time.Now().Add(-2 * time.Hour)

	result, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowsSynced)
	assert.Equal(t, meta.ViewStatusSynced, store.views[v.ID].Status)
}

func TestTriggerSyncSchemaEvolution(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{specs: orderLineSpecs(), rows: [][]any{{int64(1), 9.99}}}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, client, wh)

	// First run creates the table at version 1.
	_, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)

	// Second run sees a new column and a removed one.
	client.specs = []meta.ColumnSpec{
		{Name: "id", SourceType: "integer", Nullable: false, OrdinalPosition: 1},
		{Name: "discount", SourceType: "numeric", Nullable: true, OrdinalPosition: 2},
	}
	client.rows = [][]any{{int64(1), 0.5}}

	result, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)

	kinds := make([]meta.SchemaChangeKind, 0, len(result.SchemaChanges))
	for _, c := range result.SchemaChanges {
		kinds = append(kinds, c.Kind)
	}
	assert.Contains(t, kinds, meta.ChangeColumnAdded)
	assert.Contains(t, kinds, meta.ChangeColumnRemoved)

	// ALTER for the addition, no DDL for the removal.
	assert.Contains(t, wh.ddl, "ALTER TABLE order_lines ADD COLUMN discount NUMERIC")

	v, err := store.GetView(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, 2, v.SchemaVersion)

	live, err := store.ListLiveColumns(context.Background(), v.ID)
	require.NoError(t, err)
	liveNames := make([]string, 0, len(live))
	for _, c := range live {
		liveNames = append(liveNames, c.Name)
	}
	assert.ElementsMatch(t, []string{"id", "discount"}, liveNames)

	// The removed column survives as a tombstone carrying its version.
	all, err := store.ListColumns(context.Background(), v.ID)
	require.NoError(t, err)
	var tombstone *meta.SyncedColumn
	for i := range all {
		if all[i].Name == "total" {
			tombstone = &all[i]
		}
	}
	require.NotNil(t, tombstone)
	require.NotNil(t, tombstone.RemovedInVersion)
	assert.Equal(t, 2, *tombstone.RemovedInVersion)
}

func TestTriggerSyncFollowsDestTableRename(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{specs: orderLineSpecs(), rows: [][]any{{int64(1), 9.99}}}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	cfg := testConfig()
	engine := NewEngine(cfg, store, &fakeSourceProvider{client: client}, wh)

	_, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)

	// The destination table is renamed in config; the next sync must target
	// the new name, not the one recorded on first registration.
	cfg.Views[0].DestTable = "order_lines_v2"
	wh.exists = false

	_, err = engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)

	assert.Contains(t, wh.ddl[len(wh.ddl)-1], "CREATE TABLE order_lines_v2")
	assert.Equal(t, "DELETE FROM order_lines_v2", wh.tx.execs[0])

	v, err := store.GetView(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, "order_lines_v2", v.DestTable)
}

func TestTriggerSyncNoChangeKeepsVersion(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{specs: orderLineSpecs(), rows: [][]any{{int64(1), 9.99}}}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, client, wh)

	_, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)

	result, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Empty(t, result.SchemaChanges)

	v, err := store.GetView(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, 1, v.SchemaVersion)
}

func TestTriggerSyncBreakingTypeChange(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{specs: orderLineSpecs(), rows: [][]any{{int64(1), 9.99}}}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, client, wh)

	_, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	ddlBefore := len(wh.ddl)

	changed := orderLineSpecs()
	changed[1].SourceType = "text"
	client.specs = changed

	_, err = engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.ErrorIs(t, err, warehouse.ErrBreakingTypeChange)
	assert.Equal(t, KindSchemaEvolution, Classify(err))

	// Aborts before any DDL.
	assert.Len(t, wh.ddl, ddlBefore)

	v, err := store.GetView(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, meta.ViewStatusFailed, v.Status)
	require.NotNil(t, v.LastError)

	require.Len(t, store.logs, 2)
	assert.Equal(t, meta.LogStatusFailed, store.logs[1].Status)
	require.NotNil(t, store.logs[1].Error)

	// The failed log names the breaking change.
	require.Len(t, store.logs[1].SchemaChanges, 1)
	assert.Equal(t, meta.ChangeTypeChanged, store.logs[1].SchemaChanges[0].Kind)
	assert.Equal(t, "total", store.logs[1].SchemaChanges[0].Column)
	assert.Equal(t, "numeric(10,2)", store.logs[1].SchemaChanges[0].PrevSourceType)
}

func TestTriggerSyncLoadFailureRollsBack(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{specs: orderLineSpecs(), rows: [][]any{{int64(1), 9.99}}}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, client, wh)

	_, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)

	// Second run fails during the insert phase.
	wh.failNextLoad = errors.New("disk full")
	_, err = engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.Error(t, err)
	assert.Equal(t, KindDataLoad, Classify(err))

	assert.True(t, wh.tx.rolledBack)
	assert.False(t, wh.tx.committed)

	v, err := store.GetView(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, meta.ViewStatusFailed, v.Status)
}

func TestTriggerSyncIntrospectionFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{introspectErr: source.ErrViewMissing}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, client, wh)

	_, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.Error(t, err)
	assert.Equal(t, KindIntrospection, Classify(err))

	// The attempt still reached a terminal, recorded state.
	v, err := store.GetView(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, meta.ViewStatusFailed, v.Status)
	require.Len(t, store.logs, 1)
	assert.Equal(t, meta.LogStatusFailed, store.logs[0].Status)
}

func TestDeleteView(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeSourceClient{specs: orderLineSpecs(), rows: [][]any{{int64(1), 9.99}}}
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, client, wh)

	_, err := engine.TriggerSync(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)
	v, err := store.GetView(context.Background(), "orders-db", "public", "order_lines")
	require.NoError(t, err)

	require.NoError(t, engine.DeleteView(context.Background(), v.ID))
	assert.Contains(t, wh.ddl, "DROP TABLE IF EXISTS order_lines")
	_, err = store.GetViewByID(context.Background(), v.ID)
	assert.ErrorIs(t, err, meta.ErrViewNotFound)

	// Deleting again reports not found.
	err = engine.DeleteView(context.Background(), v.ID)
	assert.ErrorIs(t, err, meta.ErrViewNotFound)
}

func TestDeleteViewConflictsWithRunningSync(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	wh := &fakeWarehouse{dialect: warehouse.DialectDuckDB}
	engine := newTestEngine(store, &fakeSourceClient{}, wh)

	v, err := store.EnsureView(context.Background(), "orders-db", "public", "order_lines", "order_lines")
	require.NoError(t, err)
	store.views[v.ID].Status = meta.ViewStatusSyncing
	store.views[v.ID].StatusChangedAt = time.Now()

	err = engine.DeleteView(context.Background(), v.ID)
	require.ErrorIs(t, err, ErrSyncConflict)
	assert.NotContains(t, wh.ddl, "DROP TABLE IF EXISTS order_lines")
}
