package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCreateTable(t *testing.T) {
	t.Parallel()

	cols := []Column{
		{Name: "id", Type: "NUMERIC", Nullable: false},
		{Name: "customer_name", Type: "TEXT", Nullable: true},
	}

	stmt, err := RenderCreateTable(DialectDuckDB, "order_lines", cols)
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE TABLE order_lines ("+
			"_sync_row_id TEXT NOT NULL, _synced_at TIMESTAMP NOT NULL, "+
			"id NUMERIC NOT NULL, customer_name TEXT)",
		stmt)
}

func TestRenderCreateTableRejectsHostileNames(t *testing.T) {
	t.Parallel()

	_, err := RenderCreateTable(DialectDuckDB, "orders; DROP TABLE users--", nil)
	assert.Error(t, err)

	_, err = RenderCreateTable(DialectDuckDB, "orders", []Column{
		{Name: "ok", Type: "TEXT'); DROP TABLE users--"},
	})
	assert.Error(t, err)
}

func TestRenderAddColumn(t *testing.T) {
	t.Parallel()

	// Added columns are always nullable, existing rows predate them.
	stmt, err := RenderAddColumn(DialectPostgres, "order_lines", Column{
		Name: "discount", Type: "NUMERIC", Nullable: false,
	})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE order_lines ADD COLUMN discount NUMERIC", stmt)
}

func TestRenderDropAndDelete(t *testing.T) {
	t.Parallel()

	stmt, err := RenderDropTable(DialectDuckDB, "order_lines")
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE IF EXISTS order_lines", stmt)

	stmt, err = RenderDeleteAll(DialectDuckDB, "order_lines")
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM order_lines", stmt)
}

func TestRenderTableExists(t *testing.T) {
	t.Parallel()

	// The lookup is scoped to the active schema, so a same-named table in
	// another schema does not count.
	assert.Equal(t,
		"SELECT COUNT(*) FROM information_schema.tables"+
			" WHERE lower(table_name) = ? AND table_schema = 'main'",
		RenderTableExists(DialectDuckDB))
	assert.Equal(t,
		"SELECT COUNT(*) FROM information_schema.tables"+
			" WHERE lower(table_name) = $1 AND table_schema = current_schema()",
		RenderTableExists(DialectPostgres))
}

func TestRenderInsert(t *testing.T) {
	t.Parallel()

	t.Run("duckdb placeholders", func(t *testing.T) {
		t.Parallel()
		stmt, err := RenderInsert(DialectDuckDB, "t", []string{"a", "b"}, 2)
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO t (a, b) VALUES (?, ?), (?, ?)", stmt)
	})

	t.Run("postgres placeholders", func(t *testing.T) {
		t.Parallel()
		stmt, err := RenderInsert(DialectPostgres, "t", []string{"a", "b"}, 2)
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4)", stmt)
	})

	t.Run("zero rows", func(t *testing.T) {
		t.Parallel()
		_, err := RenderInsert(DialectDuckDB, "t", []string{"a"}, 0)
		assert.Error(t, err)
	})

	t.Run("no columns", func(t *testing.T) {
		t.Parallel()
		_, err := RenderInsert(DialectDuckDB, "t", nil, 1)
		assert.Error(t, err)
	})

	t.Run("hostile column name", func(t *testing.T) {
		t.Parallel()
		_, err := RenderInsert(DialectDuckDB, "t", []string{"a); DROP TABLE t--"}, 1)
		assert.Error(t, err)
	})
}
