package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
)

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	schedulerService interfaces.SchedulerService
	logger           arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(schedulerService interfaces.SchedulerService, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		schedulerService: schedulerService,
		logger:           logger,
	}
}

// ListJobsHandler handles GET /api/scheduler/jobs
func (h *SchedulerHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.schedulerService.IsRunning(),
		"jobs":    h.schedulerService.GetAllJobStatuses(),
	})
}

// JobActionHandler handles POST /api/scheduler/jobs/{name}/{trigger|enable|disable}
func (h *SchedulerHandler) JobActionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/scheduler/jobs/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		WriteError(w, http.StatusNotFound, "Expected /api/scheduler/jobs/{name}/{action}")
		return
	}
	name, action := parts[0], parts[1]

	if _, err := h.schedulerService.GetJobStatus(name); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	var err error
	switch action {
	case "trigger":
		err = h.schedulerService.TriggerJob(name)
	case "enable":
		err = h.schedulerService.EnableJob(name)
	case "disable":
		err = h.schedulerService.DisableJob(name)
	default:
		WriteError(w, http.StatusNotFound, "Unknown job action")
		return
	}

	if err != nil {
		h.logger.Warn().Err(err).Str("job_name", name).Str("action", action).Msg("Scheduler action failed")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	status, _ := h.schedulerService.GetJobStatus(name)
	WriteJSON(w, http.StatusOK, status)
}
