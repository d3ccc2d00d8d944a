// Package warehouse manages the destination side of a sync: connections,
// type mapping, DDL/DML rendering and dynamic table management.
package warehouse

import (
	"fmt"
	"strconv"
)

// Dialect identifies the destination warehouse flavor. It parameterizes the
// few places where generated SQL differs between supported warehouses.
type Dialect string

const (
	// DialectDuckDB targets a DuckDB warehouse file
	DialectDuckDB Dialect = "duckdb"

	// DialectPostgres targets a PostgreSQL warehouse
	DialectPostgres Dialect = "postgres"
)

// Valid reports whether the dialect is one of the supported warehouses.
func (d Dialect) Valid() bool {
	return d == DialectDuckDB || d == DialectPostgres
}

// Placeholder returns the bind-parameter placeholder for 1-based position n.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// BinaryType returns the dialect's binary blob column type.
func (d Dialect) BinaryType() string {
	if d == DialectPostgres {
		return "BYTEA"
	}
	return "BLOB"
}

// ParseDialect converts a config string into a Dialect.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(s)
	if !d.Valid() {
		return "", fmt.Errorf("unsupported warehouse dialect %q (expected duckdb or postgres)", s)
	}
	return d, nil
}
