package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridiandata/viewsync/internal/meta"
)

// Guard enforces at-most-one in-flight sync per view, across processes.
// It is backed by a conditional state transition on the persisted view
// status rather than an in-memory lock: a pure in-memory lock cannot
// survive a process restart and would strand a crashed view in SYNCING
// forever. A SYNCING status older than the staleness window is treated as
// abandoned and may be taken over.
type Guard struct {
	store     meta.Store
	staleness time.Duration
}

// Lease is an acquired sync lease for one view. It is released by the
// owner's terminal status write (SYNCED or FAILED).
type Lease struct {
	ViewID     uuid.UUID
	AcquiredAt time.Time
}

// NewGuard creates a conflict guard with the given staleness window.
func NewGuard(store meta.Store, staleness time.Duration) *Guard {
	if staleness <= 0 {
		staleness = 30 * time.Minute
	}
	return &Guard{store: store, staleness: staleness}
}

// Acquire transitions the view to SYNCING if no other sync holds it.
// Returns ErrSyncConflict when a fresh SYNCING status already exists.
func (g *Guard) Acquire(ctx context.Context, viewID uuid.UUID) (*Lease, error) {
	acquired, err := g.store.AcquireSyncLease(ctx, viewID, g.staleness)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	if !acquired {
		return nil, ErrSyncConflict
	}
	return &Lease{ViewID: viewID, AcquiredAt: time.Now()}, nil
}

// Abandon force-releases a lease by marking the view FAILED. Used on paths
// where no regular terminal status write will happen.
func (g *Guard) Abandon(ctx context.Context, lease *Lease, reason string) {
	if lease == nil {
		return
	}
	if err := g.store.MarkSyncFailed(ctx, lease.ViewID, reason); err != nil {
		slog.Error("Failed to release abandoned sync lease",
			"view_id", lease.ViewID,
			"error", err)
	}
}
