package source

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogRow is one information_schema.columns row.
type catalogRow struct {
	name     string
	dataType string
	nullable string
	ordinal  int
}

// fakeRows implements pgx.Rows over canned catalog rows.
type fakeRows struct {
	rows []catalogRow
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	*dest[0].(*string) = row.name
	*dest[1].(*string) = row.dataType
	*dest[2].(*string) = row.nullable
	*dest[3].(*int) = row.ordinal
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	row := r.rows[r.pos-1]
	return []any{row.name, row.dataType, row.nullable, row.ordinal}, nil
}

type fakeQuerier struct {
	rows *fakeRows
	err  error
}

func (q *fakeQuerier) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func TestIntrospect(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{rows: &fakeRows{rows: []catalogRow{
		{"id", "integer", "NO", 1},
		{"total", "numeric", "YES", 2},
	}}}

	specs, err := Introspect(context.Background(), q, "public", "order_lines")
	require.NoError(t, err)

	require.Len(t, specs, 2)
	assert.Equal(t, "id", specs[0].Name)
	assert.Equal(t, "integer", specs[0].SourceType)
	assert.False(t, specs[0].Nullable)
	assert.Equal(t, 1, specs[0].OrdinalPosition)
	assert.True(t, specs[1].Nullable)
}

func TestIntrospectMissingView(t *testing.T) {
	t.Parallel()

	// An empty catalog result means the view does not exist or is not
	// visible to this role.
	q := &fakeQuerier{rows: &fakeRows{}}
	_, err := Introspect(context.Background(), q, "public", "nope")
	require.ErrorIs(t, err, ErrViewMissing)
}

func TestSelectAll(t *testing.T) {
	t.Parallel()

	cols := []LoadColumn{
		{Name: "id"},
		{Name: "total", Cast: "::float8"},
		{Name: "ref", Cast: "::text"},
	}

	query, err := SelectAll("public", "order_lines", cols)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, total::float8, ref::text FROM public.order_lines", query)
}

func TestSelectAllRejectsHostileInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		schema string
		view   string
		cols   []LoadColumn
	}{
		{
			name:   "hostile schema",
			schema: "public; DROP TABLE x--",
			view:   "v",
			cols:   []LoadColumn{{Name: "id"}},
		},
		{
			name:   "hostile view",
			schema: "public",
			view:   "v' OR '1'='1",
			cols:   []LoadColumn{{Name: "id"}},
		},
		{
			name:   "hostile column",
			schema: "public",
			view:   "v",
			cols:   []LoadColumn{{Name: "id, (SELECT password FROM users)"}},
		},
		{
			name:   "hostile cast",
			schema: "public",
			view:   "v",
			cols:   []LoadColumn{{Name: "id", Cast: "::text; DROP TABLE x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := SelectAll(tt.schema, tt.view, tt.cols)
			assert.Error(t, err)
		})
	}
}
