// -----------------------------------------------------------------------
// Job Handler - Operator API over active and archived workflow jobs
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
)

type JobHandler struct {
	engine  interfaces.WorkflowEngine
	archive interfaces.JobArchiveStorage
	logger  arbor.ILogger
}

func NewJobHandler(engine interfaces.WorkflowEngine, archive interfaces.JobArchiveStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		engine:  engine,
		archive: archive,
		logger:  logger,
	}
}

// ListJobsHandler returns every active job and its stage.
// GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	active := h.engine.GetActiveJobs()
	jobs := make([]models.JobSummary, 0, len(active))
	for jobID, stage := range active {
		summary := models.JobSummary{
			ID:     jobID,
			Stage:  stage,
			Paused: h.engine.IsJobPaused(jobID),
		}
		if record, err := h.engine.GetJobContext(jobID); err == nil {
			summary.CreatedAt = record.CreatedAt
			summary.LastUpdatedAt = record.LastUpdatedAt
			summary.ErrorCount = record.ErrorCount
			summary.RetryCount = record.RetryCount
			summary.LastError = record.LastError
		}
		jobs = append(jobs, summary)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

// ListArchivedJobsHandler returns recently archived terminal jobs.
// GET /api/jobs/archive?limit=N
func (h *JobHandler) ListArchivedJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.archive.ListJobs(r.Context(), limit)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Archive listing failed")
		WriteError(w, http.StatusInternalServerError, "failed to list archived jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"jobs":  records,
	})
}

// GetJobStatsHandler returns active-by-stage counts plus historical
// totals from the archive.
// GET /api/jobs/stats
func (h *JobHandler) GetJobStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.engine.GetWorkflowStats(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Stats query failed")
		WriteError(w, http.StatusInternalServerError, "failed to compute workflow stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// JobRoutesHandler dispatches /api/jobs/{id} and its sub-actions.
//
//	GET  /api/jobs/{id}         full job record, active store first then archive
//	POST /api/jobs/{id}/pause   suspend handler dispatch for the job
//	POST /api/jobs/{id}/resume  lift the suspension
//	POST /api/jobs/{id}/cancel  cancel the job, body {"reason": "..."}
func (h *JobHandler) JobRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)

	jobID := parts[0]
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	if len(parts) == 1 {
		h.getJob(w, r, jobID)
		return
	}

	switch parts[1] {
	case "pause":
		h.pauseJob(w, r, jobID)
	case "resume":
		h.resumeJob(w, r, jobID)
	case "cancel":
		h.cancelJob(w, r, jobID)
	default:
		WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown job action %q", parts[1]))
	}
}

func (h *JobHandler) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	record, err := h.engine.GetJobContext(jobID)
	if err != nil {
		record, err = h.archive.GetJob(r.Context(), jobID)
	}
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

func (h *JobHandler) pauseJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.engine.PauseJob(jobID); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteSuccess(w, fmt.Sprintf("job %s paused", jobID))
}

func (h *JobHandler) resumeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.engine.ResumeJob(jobID); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteSuccess(w, fmt.Sprintf("job %s resumed", jobID))
}

func (h *JobHandler) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Reason == "" {
		body.Reason = "cancelled by operator"
	}

	if _, err := h.engine.GetJobState(jobID); err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return
	}

	h.engine.CancelJob(r.Context(), jobID, body.Reason)
	WriteSuccess(w, fmt.Sprintf("job %s cancelled", jobID))
}
