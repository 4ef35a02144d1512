package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/feed-audit/internal/api/middleware"
	"github.com/dvloznov/feed-audit/internal/jobs"
)

// RunsHandler handles audit run endpoints.
type RunsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(store jobs.JobStore, publisher jobs.Publisher, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// EnqueueRun handles POST /api/runs
// It enqueues an audit run for the given load date. An omitted load_date
// defaults to yesterday (UTC).
func (h *RunsHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoadDate   string `json:"load_date"`
		WindowSize int    `json:"window_size"`
		TopK       int    `json:"top_k"`
	}

	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	loadDate := civil.DateOf(time.Now().UTC().AddDate(0, 0, -1))
	if req.LoadDate != "" {
		parsed, err := civil.ParseDate(req.LoadDate)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid load_date, expected YYYY-MM-DD")
			return
		}
		loadDate = parsed
	}
	if req.WindowSize < 0 || req.TopK < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "window_size and top_k must be positive")
		return
	}

	job := &jobs.RunAuditJob{
		LoadDate:   loadDate,
		WindowSize: req.WindowSize,
		TopK:       req.TopK,
	}

	if err := h.publisher.PublishRunAudit(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("load_date", loadDate.String()).Msg("Failed to enqueue audit run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue audit run")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("load_date", loadDate.String()).Msg("Audit run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":    job.JobID,
		"load_date": loadDate.String(),
		"status":    string(job.Status),
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		LoadDate: query.Get("load_date"),
		Status:   jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	runs, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
