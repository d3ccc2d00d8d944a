// Package v0 provides the REST API handlers for view sync operations.
package v0

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridiandata/viewsync/internal/meta"
	"github.com/meridiandata/viewsync/internal/source"
	pkgsync "github.com/meridiandata/viewsync/internal/sync"
	"github.com/meridiandata/viewsync/internal/sync/driver"
)

// SyncService is the engine surface the API depends on.
type SyncService interface {
	TriggerSync(ctx context.Context, binding, schema, view string) (*pkgsync.Result, error)
	ListViews(ctx context.Context) ([]meta.SyncedView, error)
	GetView(ctx context.Context, id uuid.UUID, includeColumns bool) (*pkgsync.ViewDetail, error)
	GetLogs(ctx context.Context, id uuid.UUID, limit int) ([]meta.SyncLog, error)
	DeleteView(ctx context.Context, id uuid.UUID) error
}

// RunService runs a sync cycle over the configured views, optionally scoped
// to one source binding.
type RunService interface {
	SyncAll(ctx context.Context, binding string, sink driver.Sink) (*driver.Summary, error)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SyncRequest identifies the view to sync.
type SyncRequest struct {
	Binding string `json:"binding"`
	Schema  string `json:"schema"`
	View    string `json:"view"`
}

// SyncResponse is the outcome of a completed sync.
type SyncResponse struct {
	RowsSynced    int64               `json:"rows_synced"`
	DurationMs    int64               `json:"duration_ms"`
	SchemaChanges []meta.SchemaChange `json:"schema_changes"`
}

// SyncAllRequest optionally scopes a sync cycle to one source binding. An
// empty body (or empty binding) syncs every configured view.
type SyncAllRequest struct {
	Binding string `json:"binding,omitempty"`
}

// SyncAllResponse is the outcome of a sync cycle over all configured views.
type SyncAllResponse struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Events    []driver.Event `json:"events"`
}

// ViewResponse is one tracked view, with columns when requested.
type ViewResponse struct {
	meta.SyncedView
	Columns []meta.SyncedColumn `json:"columns,omitempty"`
}

// Routes defines the routes for the sync API with dependency injection
type Routes struct {
	service SyncService
	runner  RunService
}

// NewRoutes creates a new Routes instance with the provided services
func NewRoutes(svc SyncService, runner RunService) *Routes {
	return &Routes{
		service: svc,
		runner:  runner,
	}
}

// Router creates a new router for the sync API
func Router(svc SyncService, runner RunService) http.Handler {
	routes := NewRoutes(svc, runner)

	r := chi.NewRouter()

	r.Post("/sync", routes.triggerSync)
	r.Post("/sync-all", routes.syncAll)

	r.Get("/views", routes.listViews)
	r.Get("/views/{id}", routes.getView)
	r.Get("/views/{id}/logs", routes.getViewLogs)
	r.Delete("/views/{id}", routes.deleteView)

	return r
}

// triggerSync handles POST /api/v0/sync
func (rr *Routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Binding == "" || req.Schema == "" || req.View == "" {
		rr.writeErrorResponse(w, "binding, schema and view are required", http.StatusBadRequest)
		return
	}

	result, err := rr.service.TriggerSync(r.Context(), req.Binding, req.Schema, req.View)
	if err != nil {
		rr.writeSyncError(w, err)
		return
	}

	rr.writeJSONResponse(w, SyncResponse{
		RowsSynced:    result.RowsSynced,
		DurationMs:    result.Duration.Milliseconds(),
		SchemaChanges: result.SchemaChanges,
	})
}

// syncAll handles POST /api/v0/sync-all
func (rr *Routes) syncAll(w http.ResponseWriter, r *http.Request) {
	var req SyncAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var events []driver.Event
	summary, err := rr.runner.SyncAll(r.Context(), req.Binding, func(e driver.Event) {
		events = append(events, e)
	})
	if err != nil {
		if errors.Is(err, source.ErrUnknownBinding) {
			rr.writeErrorResponse(w, err.Error(), http.StatusNotFound)
			return
		}
		slog.Error("Sync-all run aborted", "error", err)
		rr.writeErrorResponse(w, "Sync run aborted: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, SyncAllResponse{
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Events:    events,
	})
}

// listViews handles GET /api/v0/views
func (rr *Routes) listViews(w http.ResponseWriter, r *http.Request) {
	views, err := rr.service.ListViews(r.Context())
	if err != nil {
		slog.Error("Failed to list views", "error", err)
		rr.writeErrorResponse(w, "Failed to list views", http.StatusInternalServerError)
		return
	}
	if views == nil {
		views = []meta.SyncedView{}
	}
	rr.writeJSONResponse(w, views)
}

// getView handles GET /api/v0/views/{id}?include=columns
func (rr *Routes) getView(w http.ResponseWriter, r *http.Request) {
	id, ok := rr.viewID(w, r)
	if !ok {
		return
	}

	includeColumns := r.URL.Query().Get("include") == "columns"
	detail, err := rr.service.GetView(r.Context(), id, includeColumns)
	if err != nil {
		if errors.Is(err, meta.ErrViewNotFound) {
			rr.writeErrorResponse(w, "View not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get view", "id", id, "error", err)
		rr.writeErrorResponse(w, "Failed to get view", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, ViewResponse{SyncedView: detail.View, Columns: detail.Columns})
}

// getViewLogs handles GET /api/v0/views/{id}/logs?limit=20
func (rr *Routes) getViewLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := rr.viewID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			rr.writeErrorResponse(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	logs, err := rr.service.GetLogs(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, meta.ErrViewNotFound) {
			rr.writeErrorResponse(w, "View not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to list sync logs", "id", id, "error", err)
		rr.writeErrorResponse(w, "Failed to list sync logs", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []meta.SyncLog{}
	}
	rr.writeJSONResponse(w, logs)
}

// deleteView handles DELETE /api/v0/views/{id}
func (rr *Routes) deleteView(w http.ResponseWriter, r *http.Request) {
	id, ok := rr.viewID(w, r)
	if !ok {
		return
	}

	if err := rr.service.DeleteView(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, meta.ErrViewNotFound):
			rr.writeErrorResponse(w, "View not found", http.StatusNotFound)
		case errors.Is(err, pkgsync.ErrSyncConflict):
			rr.writeErrorResponse(w, "A sync is currently running for this view", http.StatusConflict)
		default:
			slog.Error("Failed to delete view", "id", id, "error", err)
			rr.writeErrorResponse(w, "Failed to delete view", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) viewID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		rr.writeErrorResponse(w, "Invalid view ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeSyncError maps sync errors to HTTP status codes.
func (rr *Routes) writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgsync.ErrViewNotAllowed):
		rr.writeErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pkgsync.ErrSyncConflict):
		rr.writeErrorResponse(w, err.Error(), http.StatusConflict)
	case pkgsync.Classify(err) == pkgsync.KindConnection:
		rr.writeErrorResponse(w, err.Error(), http.StatusBadGateway)
	default:
		slog.Error("Sync failed", "error", err)
		rr.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSONResponse writes a JSON response with OK status
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
