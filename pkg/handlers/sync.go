package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/services"
)

// SyncRequest is the body for job submission.
type SyncRequest struct {
	SourceConnection string `json:"source_connection"`
	TargetConnection string `json:"target_connection,omitempty"`
	UserID           string `json:"user_id"`
}

// SyncResponse acknowledges a submitted job.
type SyncResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ResolveRequest is the body for conflict resolution.
type ResolveRequest struct {
	Strategy     string     `json:"strategy"`
	ResolvedData models.Row `json:"resolved_data,omitempty"`
	ResolvedBy   string     `json:"resolved_by,omitempty"`
}

// SyncHandler exposes the sync job lifecycle, conflict resolution, audit
// queries, and schema validation over HTTP.
type SyncHandler struct {
	jobs      services.JobService
	conflicts services.ConflictService
	audit     AuditQuerier
	sources   services.SourceService
	health    services.HealthService
	logger    *zap.Logger
}

// AuditQuerier is the slice of the audit repository the handler needs.
type AuditQuerier interface {
	Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditEntry, error)
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(
	jobs services.JobService,
	conflicts services.ConflictService,
	audit AuditQuerier,
	sources services.SourceService,
	health services.HealthService,
	logger *zap.Logger,
) *SyncHandler {
	return &SyncHandler{
		jobs:      jobs,
		conflicts: conflicts,
		audit:     audit,
		sources:   sources,
		health:    health,
		logger:    logger,
	}
}

// RegisterRoutes registers the sync handler's routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sync/full", h.SubmitFull)
	mux.HandleFunc("POST /api/sync/incremental", h.SubmitIncremental)
	mux.HandleFunc("POST /api/sync/upsync", h.SubmitUpSync)
	mux.HandleFunc("GET /api/sync/status/{job_id}", h.Status)
	mux.HandleFunc("POST /api/sync/cancel/{job_id}", h.Cancel)
	mux.HandleFunc("GET /api/sync/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/sync/logs/{job_id}", h.Logs)
	mux.HandleFunc("GET /api/sync/conflicts/{job_id}", h.Conflicts)
	mux.HandleFunc("POST /api/sync/conflicts/{job_id}/{conflict_id}/resolve", h.Resolve)
	mux.HandleFunc("GET /api/sync/audit/{job_id}", h.Audit)
	mux.HandleFunc("POST /api/sync/validate/{job_id}/{table_name}", h.Validate)
	mux.HandleFunc("GET /api/sync/health", h.Health)
}

// SubmitFull handles POST /api/sync/full.
func (h *SyncHandler) SubmitFull(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.JobTypeFull)
}

// SubmitIncremental handles POST /api/sync/incremental.
func (h *SyncHandler) SubmitIncremental(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.JobTypeIncremental)
}

// SubmitUpSync handles POST /api/sync/upsync.
func (h *SyncHandler) SubmitUpSync(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.JobTypeUpSync)
}

func (h *SyncHandler) submit(w http.ResponseWriter, r *http.Request, jobType models.JobType) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sourceID, err := uuid.Parse(req.SourceConnection)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "source_connection must be a data source id")
		return
	}

	var targetID *uuid.UUID
	if req.TargetConnection != "" {
		id, err := uuid.Parse(req.TargetConnection)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "target_connection must be a data source id")
			return
		}
		targetID = &id
	}
	if jobType == models.JobTypeUpSync && targetID == nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "up-sync requires target_connection")
		return
	}

	job, err := h.jobs.Submit(r.Context(), jobType, sourceID, targetID, req.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, SyncResponse{JobID: job.ID.String(), Status: "started"}); err != nil {
		h.logger.Error("Failed to encode sync response", zap.Error(err))
	}
}

// Status handles GET /api/sync/status/{job_id}.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathUUID(w, r, "job_id")
	if !ok {
		return
	}
	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, job); err != nil {
		h.logger.Error("Failed to encode job status", zap.Error(err))
	}
}

// Cancel handles POST /api/sync/cancel/{job_id}.
func (h *SyncHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathUUID(w, r, "job_id")
	if !ok {
		return
	}
	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, SyncResponse{JobID: jobID.String(), Status: "cancelled"}); err != nil {
		h.logger.Error("Failed to encode cancel response", zap.Error(err))
	}
}

// ListJobs handles GET /api/sync/jobs.
func (h *SyncHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	status := models.JobStatus(r.URL.Query().Get("status"))

	jobs, err := h.jobs.List(r.Context(), status, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*models.SyncJob{}
	}
	if err := WriteJSON(w, http.StatusOK, jobs); err != nil {
		h.logger.Error("Failed to encode job list", zap.Error(err))
	}
}

// Logs handles GET /api/sync/logs/{job_id}.
func (h *SyncHandler) Logs(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathUUID(w, r, "job_id")
	if !ok {
		return
	}
	limit, _ := pagination(r)
	logs, err := h.jobs.Logs(r.Context(), jobID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []*models.SyncLog{}
	}
	if err := WriteJSON(w, http.StatusOK, logs); err != nil {
		h.logger.Error("Failed to encode job logs", zap.Error(err))
	}
}

// Conflicts handles GET /api/sync/conflicts/{job_id}.
func (h *SyncHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathUUID(w, r, "job_id")
	if !ok {
		return
	}
	limit, offset := pagination(r)
	q := r.URL.Query()

	conflicts, err := h.conflicts.List(r.Context(), jobID, q.Get("table_name"), q.Get("status"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.SyncConflict{}
	}
	if err := WriteJSON(w, http.StatusOK, conflicts); err != nil {
		h.logger.Error("Failed to encode conflicts", zap.Error(err))
	}
}

// Resolve handles POST /api/sync/conflicts/{job_id}/{conflict_id}/resolve.
func (h *SyncHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathUUID(w, r, "job_id")
	if !ok {
		return
	}
	conflictID, ok := h.pathUUID(w, r, "conflict_id")
	if !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	strategy := models.ResolutionStrategy(req.Strategy)
	if !strategy.Valid() {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_strategy", "strategy must be source_wins, target_wins, or manual")
		return
	}

	err := h.conflicts.Resolve(r.Context(), jobID, conflictID, strategy, req.ResolvedData, req.ResolvedBy)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "resolved"}); err != nil {
		h.logger.Error("Failed to encode resolve response", zap.Error(err))
	}
}

// Audit handles GET /api/sync/audit/{job_id}.
func (h *SyncHandler) Audit(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathUUID(w, r, "job_id")
	if !ok {
		return
	}
	limit, offset := pagination(r)
	q := r.URL.Query()

	entries, err := h.audit.Query(r.Context(), models.AuditQuery{
		JobID:     jobID,
		EventType: q.Get("event_type"),
		TableName: q.Get("table_name"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	if err := WriteJSON(w, http.StatusOK, entries); err != nil {
		h.logger.Error("Failed to encode audit entries", zap.Error(err))
	}
}

// Validate handles POST /api/sync/validate/{job_id}/{table_name}.
func (h *SyncHandler) Validate(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathUUID(w, r, "job_id")
	if !ok {
		return
	}
	tableName := r.PathValue("table_name")

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	result, err := h.sources.Validate(r.Context(), job.SourceID, tableName)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode validation result", zap.Error(err))
	}
}

// Health handles GET /api/sync/health.
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.health.Check(r.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, code, status); err != nil {
		h.logger.Error("Failed to encode health status", zap.Error(err))
	}
}

func (h *SyncHandler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *SyncHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrJobNotCancellable):
		_ = ErrorResponse(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, apperrors.ErrConflictAlreadyResolved):
		_ = ErrorResponse(w, http.StatusConflict, "already_resolved", err.Error())
	case errors.Is(err, apperrors.ErrUnknownStrategy):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_strategy", err.Error())
	case errors.Is(err, apperrors.ErrSourceDisabled):
		_ = ErrorResponse(w, http.StatusConflict, "source_disabled", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}
