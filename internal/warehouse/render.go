package warehouse

import (
	"fmt"
	"strings"

	"github.com/meridiandata/viewsync/internal/sqlident"
)

// Engine-internal columns present on every synced table. They carry the
// synthetic row key and the sync timestamp, and are excluded from business
// row counts.
const (
	RowKeyColumn   = "_sync_row_id"
	SyncedAtColumn = "_synced_at"
)

// Column is one rendered column definition. Name must already be a valid
// identifier; the renderer sanitizes it again before interpolation so that
// no call site can bypass the defense.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// InternalColumns returns the engine-internal column definitions for the
// given dialect.
func InternalColumns(_ Dialect) []Column {
	return []Column{
		{Name: RowKeyColumn, Type: "TEXT", Nullable: false},
		{Name: SyncedAtColumn, Type: "TIMESTAMP", Nullable: false},
	}
}

// RenderCreateTable renders a CREATE TABLE statement for the business
// columns plus the engine-internal columns.
func RenderCreateTable(d Dialect, table string, cols []Column) (string, error) {
	tbl, err := sqlident.Sanitize(table)
	if err != nil {
		return "", err
	}

	all := make([]Column, 0, len(cols)+2)
	all = append(all, InternalColumns(d)...)
	all = append(all, cols...)

	defs := make([]string, 0, len(all))
	for _, col := range all {
		def, err := renderColumnDef(col)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", tbl, strings.Join(defs, ", ")), nil
}

// RenderAddColumn renders an ALTER TABLE ADD COLUMN statement. Added
// columns are always nullable: existing rows predate the column.
func RenderAddColumn(_ Dialect, table string, col Column) (string, error) {
	tbl, err := sqlident.Sanitize(table)
	if err != nil {
		return "", err
	}
	col.Nullable = true
	def, err := renderColumnDef(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tbl, def), nil
}

// RenderDropTable renders a DROP TABLE IF EXISTS statement.
func RenderDropTable(_ Dialect, table string) (string, error) {
	tbl, err := sqlident.Sanitize(table)
	if err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + tbl, nil
}

// RenderDeleteAll renders the statement that clears all business rows ahead
// of a reload. DELETE rather than TRUNCATE so it participates in the load
// transaction on every dialect.
func RenderDeleteAll(_ Dialect, table string) (string, error) {
	tbl, err := sqlident.Sanitize(table)
	if err != nil {
		return "", err
	}
	return "DELETE FROM " + tbl, nil
}

// RenderTableExists renders the catalog lookup for a table in the active
// schema. The table name binds as the first parameter. Scoping to the active
// schema keeps a same-named table elsewhere in the warehouse from
// suppressing creation.
func RenderTableExists(d Dialect) string {
	schema := "'main'"
	if d == DialectPostgres {
		schema = "current_schema()"
	}
	return "SELECT COUNT(*) FROM information_schema.tables" +
		" WHERE lower(table_name) = " + d.Placeholder(1) +
		" AND table_schema = " + schema
}

// RenderInsert renders a multi-row INSERT for rowCount rows of the given
// columns (engine-internal columns included by the caller), with
// dialect-appropriate placeholders.
func RenderInsert(d Dialect, table string, columns []string, rowCount int) (string, error) {
	if rowCount < 1 {
		return "", fmt.Errorf("insert requires at least one row")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("insert requires at least one column")
	}

	tbl, err := sqlident.Sanitize(table)
	if err != nil {
		return "", err
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		name, err := sqlident.Sanitize(c)
		if err != nil {
			return "", err
		}
		names[i] = name
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(tbl)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(") VALUES ")

	n := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for col := range names {
			if col > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.Placeholder(n))
			n++
		}
		sb.WriteString(")")
	}

	return sb.String(), nil
}

func renderColumnDef(col Column) (string, error) {
	name, err := sqlident.Sanitize(col.Name)
	if err != nil {
		return "", err
	}
	if col.Type == "" || strings.ContainsAny(col.Type, ";'\"`") {
		return "", fmt.Errorf("invalid column type %q for column %q", col.Type, name)
	}
	def := name + " " + col.Type
	if !col.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}
