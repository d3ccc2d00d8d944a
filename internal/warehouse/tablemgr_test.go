package warehouse

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandata/viewsync/internal/meta"
)

// fakeExecutor records DDL instead of executing it.
type fakeExecutor struct {
	dialect Dialect
	exists  bool
	ddl     [][]string

	existsErr error
	ddlErr    error
}

func (f *fakeExecutor) Dialect() Dialect {
	return f.dialect
}

func (f *fakeExecutor) TableExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeExecutor) ExecDDL(_ context.Context, stmts []string) error {
	if f.ddlErr != nil {
		return f.ddlErr
	}
	f.ddl = append(f.ddl, stmts)
	return nil
}

func (f *fakeExecutor) BeginLoad(_ context.Context) (LoadTx, error) {
	return nil, nil
}

func specsFixture() []meta.ColumnSpec {
	return []meta.ColumnSpec{
		{Name: "id", SourceType: "integer", Nullable: false, OrdinalPosition: 1},
		{Name: "total", SourceType: "numeric(10,2)", Nullable: true, OrdinalPosition: 2},
	}
}

func liveFixture() []meta.SyncedColumn {
	return []meta.SyncedColumn{
		{Name: "id", SourceType: "integer", DestType: "NUMERIC", OrdinalPosition: 1},
		{Name: "total", SourceType: "numeric(10,2)", DestType: "NUMERIC", OrdinalPosition: 2},
	}
}

func TestEnsureTableCreates(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{dialect: DialectDuckDB, exists: false}
	mgr := NewManager(exec)

	result, err := mgr.EnsureTable(context.Background(), "order_lines", specsFixture(), nil)
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.False(t, result.Empty())
	require.Len(t, exec.ddl, 1)
	require.Len(t, exec.ddl[0], 1)
	assert.Contains(t, exec.ddl[0][0], "CREATE TABLE order_lines")
	assert.Contains(t, exec.ddl[0][0], RowKeyColumn)
	assert.Contains(t, exec.ddl[0][0], SyncedAtColumn)

	require.Len(t, result.Added, 2)
	assert.Equal(t, "id", result.Added[0].Name)
	assert.Equal(t, "NUMERIC", result.Added[0].DestType)

	require.NotEmpty(t, result.Changes)
	assert.Equal(t, meta.ChangeTableCreated, result.Changes[0].Kind)
}

func TestEnsureTableNoChanges(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{dialect: DialectDuckDB, exists: true}
	mgr := NewManager(exec)

	result, err := mgr.EnsureTable(context.Background(), "order_lines", specsFixture(), liveFixture())
	require.NoError(t, err)

	assert.False(t, result.Created)
	assert.True(t, result.Empty())
	assert.Empty(t, exec.ddl)
}

func TestEnsureTableAddsColumn(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{dialect: DialectPostgres, exists: true}
	mgr := NewManager(exec)

	specs := append(specsFixture(), meta.ColumnSpec{
		Name: "discount", SourceType: "numeric", Nullable: true, OrdinalPosition: 3,
	})

	result, err := mgr.EnsureTable(context.Background(), "order_lines", specs, liveFixture())
	require.NoError(t, err)

	require.Len(t, exec.ddl, 1)
	require.Len(t, exec.ddl[0], 1)
	assert.Equal(t, "ALTER TABLE order_lines ADD COLUMN discount NUMERIC", exec.ddl[0][0])

	require.Len(t, result.Added, 1)
	assert.Equal(t, "discount", result.Added[0].Name)
	assert.Empty(t, result.Removed)
}

func TestEnsureTableTombstonesRemovedColumn(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{dialect: DialectDuckDB, exists: true}
	mgr := NewManager(exec)

	// "total" disappeared from the source.
	specs := specsFixture()[:1]

	result, err := mgr.EnsureTable(context.Background(), "order_lines", specs, liveFixture())
	require.NoError(t, err)

	// No DDL: the destination column and its data stay in place.
	assert.Empty(t, exec.ddl)
	assert.Equal(t, []string{"total"}, result.Removed)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, meta.ChangeColumnRemoved, result.Changes[0].Kind)
}

func TestEnsureTableBreakingTypeChange(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{dialect: DialectDuckDB, exists: true}
	mgr := NewManager(exec)

	specs := specsFixture()
	specs[1].SourceType = "text"

	result, err := mgr.EnsureTable(context.Background(), "order_lines", specs, liveFixture())
	require.ErrorIs(t, err, ErrBreakingTypeChange)
	assert.Contains(t, err.Error(), "total")

	// The partial result names the breaking change for the sync log.
	require.NotNil(t, result)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, meta.ChangeTypeChanged, result.Changes[0].Kind)
	assert.Equal(t, "total", result.Changes[0].Column)

	// The abort happens before any DDL is issued.
	assert.Empty(t, exec.ddl)
}

func TestEnsureTableSanitizesNames(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{dialect: DialectDuckDB, exists: false}
	mgr := NewManager(exec)

	t.Run("hostile table name", func(t *testing.T) {
		t.Parallel()
		_, err := mgr.EnsureTable(context.Background(), "t; DROP TABLE x", specsFixture(), nil)
		assert.Error(t, err)
	})

	t.Run("hostile column name", func(t *testing.T) {
		t.Parallel()
		specs := []meta.ColumnSpec{{Name: "id\"; DROP TABLE x--", SourceType: "integer"}}
		_, err := mgr.EnsureTable(context.Background(), "orders_copy", specs, nil)
		assert.Error(t, err)
	})

	t.Run("uppercase names are normalized", func(t *testing.T) {
		t.Parallel()
		local := &fakeExecutor{dialect: DialectDuckDB, exists: false}
		localMgr := NewManager(local)

		specs := []meta.ColumnSpec{{Name: "OrderID", SourceType: "integer", OrdinalPosition: 1}}
		result, err := localMgr.EnsureTable(context.Background(), "Orders_Copy", specs, nil)
		require.NoError(t, err)

		require.Len(t, local.ddl, 1)
		assert.Contains(t, local.ddl[0][0], "CREATE TABLE orders_copy")
		assert.Contains(t, local.ddl[0][0], "orderid NUMERIC")
		assert.Equal(t, "orderid", result.Added[0].Name)
	})
}

func TestDropTable(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{dialect: DialectDuckDB}
	mgr := NewManager(exec)

	require.NoError(t, mgr.DropTable(context.Background(), "order_lines"))
	require.Len(t, exec.ddl, 1)
	assert.True(t, strings.HasPrefix(exec.ddl[0][0], "DROP TABLE IF EXISTS order_lines"))
}
