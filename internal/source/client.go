package source

import (
	"context"
	"fmt"

	"github.com/meridiandata/viewsync/internal/meta"
)

// Client wraps one source connection with the operations the sync engine
// needs: catalog introspection and streaming reads.
type Client struct {
	q Querier
}

// NewClient creates a client over any Querier.
func NewClient(q Querier) *Client {
	return &Client{q: q}
}

// Client returns a source client for the named binding.
func (p *Provider) Client(ctx context.Context, binding string) (*Client, error) {
	pool, err := p.Get(ctx, binding)
	if err != nil {
		return nil, err
	}
	return NewClient(pool), nil
}

// Introspect queries the source catalog for the view's column list.
func (c *Client) Introspect(ctx context.Context, schema, view string) ([]meta.ColumnSpec, error) {
	return Introspect(ctx, c.q, schema, view)
}

// ForEachRow streams the query's result set row by row, without
// materializing it. fn receives each row's values in column order.
func (c *Client) ForEachRow(ctx context.Context, query string, fn func(values []any) error) error {
	rows, err := c.q.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return fmt.Errorf("failed to read source row: %w", err)
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}
