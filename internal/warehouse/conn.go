package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres warehouse driver
	_ "github.com/marcboeker/go-duckdb" // DuckDB warehouse driver

	"github.com/meridiandata/viewsync/internal/sqlident"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
)

// Executor runs DDL and DML against the destination warehouse. Identifiers
// are pre-sanitized by the renderer; values are always bound parameters.
//
// LoadTx is the unit of a data reload: DELETE plus batched INSERTs commit
// together, so a mid-load failure rolls back to the previous rows.
type Executor interface {
	// Dialect returns the warehouse dialect for rendering.
	Dialect() Dialect

	// TableExists reports whether the named table exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// ExecDDL executes schema statements in a single transaction.
	ExecDDL(ctx context.Context, stmts []string) error

	// BeginLoad opens the transaction for a truncate-and-reload.
	BeginLoad(ctx context.Context) (LoadTx, error)
}

// LoadTx is a destination transaction used for data loading.
type LoadTx interface {
	Exec(ctx context.Context, query string, args ...any) error
	Commit() error
	Rollback() error
}

// Conn is an Executor over a database/sql connection pool.
type Conn struct {
	db      *sql.DB
	dialect Dialect
}

// OpenDuckDB opens (or creates) a DuckDB warehouse file.
func OpenDuckDB(path string) (*Conn, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create warehouse directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	return newConn(db, DialectDuckDB, "duckdb file "+path)
}

// OpenPostgres opens a PostgreSQL warehouse from a connection string.
func OpenPostgres(connStr string) (*Conn, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	return newConn(db, DialectPostgres, "postgres warehouse")
}

func newConn(db *sql.DB, d Dialect, desc string) (*Conn, error) {
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close warehouse connection after ping failure", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	slog.Info("Warehouse connection established", "warehouse", desc)
	return &Conn{db: db, dialect: d}, nil
}

// Dialect returns the warehouse dialect.
func (c *Conn) Dialect() Dialect {
	return c.dialect
}

// Close closes the underlying pool.
func (c *Conn) Close() error {
	return c.db.Close()
}

// TableExists checks the warehouse catalog for the named table in the
// active schema. Both supported dialects expose information_schema.tables.
func (c *Conn) TableExists(ctx context.Context, table string) (bool, error) {
	tbl, err := sqlident.Sanitize(table)
	if err != nil {
		return false, err
	}

	var count int64
	if err := c.db.QueryRowContext(ctx, RenderTableExists(c.dialect), tbl).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// ExecDDL runs the given statements in one transaction, committed before any
// data load begins so a later load failure never leaves the schema
// half-applied.
func (c *Conn) ExecDDL(ctx context.Context, stmts []string) error {
	if len(stmts) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin DDL transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("DDL failed (%s): %w", stmt, err)
		}
	}

	return tx.Commit()
}

// BeginLoad opens the transaction for a full reload.
func (c *Conn) BeginLoad(ctx context.Context) (LoadTx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin load transaction: %w", err)
	}
	return &loadTx{tx: tx}, nil
}

type loadTx struct {
	tx *sql.Tx
}

func (l *loadTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := l.tx.ExecContext(ctx, query, args...)
	return err
}

func (l *loadTx) Commit() error {
	return l.tx.Commit()
}

func (l *loadTx) Rollback() error {
	return l.tx.Rollback()
}
