// Package sync implements the view-sync engine: it mirrors allow-listed
// source views into the destination warehouse, evolving the destination
// schema and recording sync outcomes in the metadata store.
package sync

import (
	"errors"
	"fmt"

	"github.com/meridiandata/viewsync/internal/source"
	"github.com/meridiandata/viewsync/internal/sqlident"
	"github.com/meridiandata/viewsync/internal/warehouse"
)

// Kind classifies a sync failure for callers and for the API boundary.
type Kind string

const (
	// KindConnection means the source, destination or metadata store was
	// unreachable. Not retried automatically by the engine.
	KindConnection Kind = "connection"

	// KindIntrospection means the view is missing or inaccessible
	KindIntrospection Kind = "introspection"

	// KindIdentifier means a name failed sanitization. Fatal before any
	// DDL or DML is issued.
	KindIdentifier Kind = "identifier"

	// KindSchemaEvolution means the destination schema could not be
	// evolved, including breaking source type changes
	KindSchemaEvolution Kind = "schema_evolution"

	// KindConflict means another sync already holds the view's lease
	KindConflict Kind = "conflict"

	// KindDataLoad means the bulk transfer failed. The evolved schema
	// stays in place; a retried sync reloads in full.
	KindDataLoad Kind = "data_load"

	// KindNotAllowed means the view is not in the configured allow-list
	KindNotAllowed Kind = "not_allowed"

	// KindInternal covers metadata store failures and everything else
	KindInternal Kind = "internal"
)

// ErrSyncConflict is returned when a sync is already in flight for the view.
// The running sync is unaffected.
var ErrSyncConflict = errors.New("sync already in progress for this view")

// ErrViewNotAllowed is returned for views outside the configured allow-list.
// Requests fail closed without touching the source.
var ErrViewNotAllowed = errors.New("view is not in the configured sync allow-list")

// Error is a structured sync failure carrying its taxonomy kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err with a classified kind and a formatted message.
func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...) + ": " + err.Error(),
		Err:     err,
	}
}

// Classify maps an error to its taxonomy kind.
func Classify(err error) Kind {
	var syncErr *Error
	switch {
	case errors.As(err, &syncErr):
		return syncErr.Kind
	case errors.Is(err, ErrSyncConflict):
		return KindConflict
	case errors.Is(err, ErrViewNotAllowed):
		return KindNotAllowed
	case errors.Is(err, sqlident.ErrInvalidIdentifier):
		return KindIdentifier
	case errors.Is(err, source.ErrViewMissing):
		return KindIntrospection
	case errors.Is(err, source.ErrUnknownBinding):
		return KindNotAllowed
	case errors.Is(err, warehouse.ErrBreakingTypeChange):
		return KindSchemaEvolution
	default:
		return KindInternal
	}
}
