package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meridiandata/viewsync/internal/meta"
	"github.com/meridiandata/viewsync/internal/sqlident"
)

// ErrViewMissing is returned when the view does not exist in the source
// catalog or introspection is denied.
var ErrViewMissing = errors.New("source view not found or not accessible")

// introspectQuery reads the column list from the source catalog, strictly
// ordered by ordinal position. Ordering is significant for diffing and for
// initial table creation order.
const introspectQuery = `
SELECT column_name, data_type, is_nullable, ordinal_position
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Introspect queries the source catalog for the view's columns.
func Introspect(ctx context.Context, q Querier, schema, view string) ([]meta.ColumnSpec, error) {
	rows, err := q.Query(ctx, introspectQuery, schema, view)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s.%s: %w", schema, view, err)
	}
	defer rows.Close()

	var specs []meta.ColumnSpec
	for rows.Next() {
		var spec meta.ColumnSpec
		var nullable string
		if err := rows.Scan(&spec.Name, &spec.SourceType, &nullable, &spec.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row for %s.%s: %w", schema, view, err)
		}
		spec.Nullable = strings.EqualFold(nullable, "YES")
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to introspect %s.%s: %w", schema, view, err)
	}

	// An existing view always has at least one column; zero rows means the
	// view is missing or the catalog is not visible to this role.
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrViewMissing, schema, view)
	}

	return specs, nil
}

// LoadColumn is one column of the bulk-transfer SELECT. Cast is an optional
// SQL cast suffix (e.g. "::text") applied on the source side so that every
// transferred value binds cleanly as a destination parameter.
type LoadColumn struct {
	Name string
	Cast string
}

// SelectAll renders the full-view SELECT used for the bulk transfer. Schema,
// view and column names all pass through the sanitizer.
func SelectAll(schema, view string, columns []LoadColumn) (string, error) {
	s, err := sqlident.Sanitize(schema)
	if err != nil {
		return "", err
	}
	v, err := sqlident.Sanitize(view)
	if err != nil {
		return "", err
	}

	cols := make([]string, len(columns))
	for i, c := range columns {
		name, err := sqlident.Sanitize(c.Name)
		if err != nil {
			return "", err
		}
		if c.Cast != "" && !validCast(c.Cast) {
			return "", fmt.Errorf("invalid cast %q for column %q", c.Cast, name)
		}
		cols[i] = name + c.Cast
	}

	return fmt.Sprintf("SELECT %s FROM %s.%s", strings.Join(cols, ", "), s, v), nil
}

// validCast accepts only "::" followed by a plain type name.
func validCast(cast string) bool {
	if !strings.HasPrefix(cast, "::") || len(cast) == 2 {
		return false
	}
	for _, r := range cast[2:] {
		if (r < 'a' || r > 'z') && r != '8' && r != '4' {
			return false
		}
	}
	return true
}
