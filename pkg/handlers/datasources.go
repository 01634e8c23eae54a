package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/services"
)

// DataSourceRequest is the create/update body for a data source.
type DataSourceRequest struct {
	Name                   string         `json:"name"`
	Backend                string         `json:"backend"`
	Config                 map[string]any `json:"config"`
	RefreshIntervalSeconds int            `json:"refresh_interval_seconds"`
	Enabled                bool           `json:"enabled"`
}

// DataSourcesHandler exposes data source management over HTTP.
type DataSourcesHandler struct {
	sources services.SourceService
	logger  *zap.Logger
}

// NewDataSourcesHandler creates a new DataSourcesHandler.
func NewDataSourcesHandler(sources services.SourceService, logger *zap.Logger) *DataSourcesHandler {
	return &DataSourcesHandler{sources: sources, logger: logger}
}

// RegisterRoutes registers the data source handler's routes on the given mux.
func (h *DataSourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasources", h.List)
	mux.HandleFunc("POST /api/datasources", h.Create)
	mux.HandleFunc("GET /api/datasources/{id}", h.Get)
	mux.HandleFunc("PUT /api/datasources/{id}", h.Update)
	mux.HandleFunc("DELETE /api/datasources/{id}", h.Delete)
	mux.HandleFunc("POST /api/datasources/{id}/test", h.Test)
}

// List handles GET /api/datasources.
func (h *DataSourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sources.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sources == nil {
		sources = []*models.DataSourceConfig{}
	}
	if err := WriteJSON(w, http.StatusOK, sources); err != nil {
		h.logger.Error("Failed to encode data sources", zap.Error(err))
	}
}

// Create handles POST /api/datasources.
func (h *DataSourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req DataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	backend, err := models.ParseBackendType(req.Backend)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	src := &models.DataSourceConfig{
		Name:            req.Name,
		Backend:         backend,
		Config:          req.Config,
		RefreshInterval: time.Duration(req.RefreshIntervalSeconds) * time.Second,
		Enabled:         req.Enabled,
	}
	if err := h.sources.Create(r.Context(), src); err != nil {
		h.writeError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, src); err != nil {
		h.logger.Error("Failed to encode data source", zap.Error(err))
	}
}

// Get handles GET /api/datasources/{id}.
func (h *DataSourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	src, err := h.sources.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, src); err != nil {
		h.logger.Error("Failed to encode data source", zap.Error(err))
	}
}

// Update handles PUT /api/datasources/{id}.
func (h *DataSourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req DataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	backend, err := models.ParseBackendType(req.Backend)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	src := &models.DataSourceConfig{
		ID:              id,
		Name:            req.Name,
		Backend:         backend,
		Config:          req.Config,
		RefreshInterval: time.Duration(req.RefreshIntervalSeconds) * time.Second,
		Enabled:         req.Enabled,
	}
	if err := h.sources.Update(r.Context(), src); err != nil {
		h.writeError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, src); err != nil {
		h.logger.Error("Failed to encode data source", zap.Error(err))
	}
}

// Delete handles DELETE /api/datasources/{id}.
func (h *DataSourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.sources.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /api/datasources/{id}/test.
func (h *DataSourcesHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.sources.TestConnection(r.Context(), id); err != nil {
		var connErr *apperrors.ConnectivityError
		if errors.As(err, &connErr) {
			_ = ErrorResponse(w, http.StatusBadGateway, "unreachable", connErr.Error())
			return
		}
		h.writeError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		h.logger.Error("Failed to encode test response", zap.Error(err))
	}
}

func (h *DataSourcesHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *DataSourcesHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		_ = ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrSourceDisabled):
		_ = ErrorResponse(w, http.StatusConflict, "source_disabled", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
