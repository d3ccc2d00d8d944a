// Package source provides pooled connections to upstream source databases
// and live schema introspection against their catalogs.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridiandata/viewsync/internal/config"
)

// ErrUnknownBinding is returned for a binding name not present in the
// configuration.
var ErrUnknownBinding = errors.New("unknown source binding")

// Querier is the subset of a pgx pool the introspector and loader use.
// pgx.Rows is an interface, so tests can supply fakes.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Provider hands out one pooled connection per configured source binding.
// Pools are created lazily on first use and reused afterwards.
type Provider struct {
	cfg *config.Config

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewProvider creates a provider over the configured bindings.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		cfg:   cfg,
		pools: make(map[string]*pgxpool.Pool),
	}
}

// Get returns the pool for the named binding, connecting on first use.
func (p *Provider) Get(ctx context.Context, binding string) (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pool, ok := p.pools[binding]; ok {
		return pool, nil
	}

	bindingCfg, ok := p.cfg.FindBinding(binding)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBinding, binding)
	}

	connStr, err := bindingCfg.Database.ConnectionString("postgres")
	if err != nil {
		return nil, fmt.Errorf("binding %q: %w", binding, err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("binding %q: invalid connection string: %w", binding, err)
	}
	if bindingCfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = int32(bindingCfg.Database.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("binding %q: failed to create pool: %w", binding, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("binding %q: failed to ping source: %w", binding, err)
	}

	slog.Info("Source connection established",
		"binding", binding,
		"host", bindingCfg.Database.Host,
		"database", bindingCfg.Database.Database)

	p.pools[binding] = pool
	return pool, nil
}

// Close closes all pools.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, pool := range p.pools {
		pool.Close()
		delete(p.pools, name)
	}
}
