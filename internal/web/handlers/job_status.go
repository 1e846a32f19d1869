package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// JobsHandler exposes async job state.
type JobsHandler struct {
	jobManager *JobManager
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(jm *JobManager) *JobsHandler {
	return &JobsHandler{jobManager: jm}
}

// Status returns the job status
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, job.View())
}

// Events streams a verification or enrollment job as server-sent events.
func (h *JobsHandler) Events(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	streamJob(w, r, job, func() any { return job.View() })
}
