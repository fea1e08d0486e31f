package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/services/scheduler"
	"github.com/ternarybob/laboro/internal/workflow"
)

type StatusHandler struct {
	orchestrator *workflow.Orchestrator
	scheduler    *scheduler.Service
	logger       arbor.ILogger
}

func NewStatusHandler(orchestrator *workflow.Orchestrator, sched *scheduler.Service, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		orchestrator: orchestrator,
		scheduler:    sched,
		logger:       logger,
	}
}

// GetStatusHandler reports the orchestrator, workflow and scheduler state.
// GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status, err := h.orchestrator.GetSystemStatus(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Status query failed")
		WriteError(w, http.StatusInternalServerError, "failed to collect system status")
		return
	}
	status["scheduler_running"] = h.scheduler.IsRunning()
	status["scheduled_tasks"] = h.scheduler.TaskStatus()

	WriteJSON(w, http.StatusOK, status)
}

// TriggerSearchHandler forces an immediate job search sweep.
// POST /api/search/trigger
func (h *StatusHandler) TriggerSearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.scheduler.RunTaskNow(r.Context(), "job-search"); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, "search sweep finished")
}

// HealthHandler is the liveness probe.
// GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// VersionHandler reports the build version.
// GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetFullVersion(),
	})
}
