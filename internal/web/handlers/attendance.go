package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

// AttendanceHandler handles login/logout and the attendance log.
type AttendanceHandler struct {
	service    *attendance.Service
	source     frame.Source
	events     database.EventReader
	jobManager *JobManager
	log        *logger.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(svc *attendance.Service, source frame.Source, events database.EventReader, jm *JobManager, log *logger.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: svc, source: source, events: events, jobManager: jm, log: log}
}

// VerifyResponse is the result of a verification job.
type VerifyResponse struct {
	Direction database.Direction `json:"direction"`
	attendance.Outcome
	Notifications []string `json:"notifications"`
}

// Verify starts a verification job for the direction in the URL.
func (h *AttendanceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	dir, err := database.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := parseForm(w, r); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	f, err := frameFromRequest(r.Context(), r, h.source)
	if err != nil {
		respondError(w, frameErrorStatus(err), err.Error())
		return
	}

	job := h.jobManager.CreateJob(uuid.New().String(), JobTypeVerify)
	h.log.Debug("verification job submitted", "job", job.ID, "direction", dir)
	h.jobManager.Run(job, func(ctx context.Context) (any, error) {
		out, err := h.service.Verify(ctx, f, dir)
		if err != nil && len(out.Recognized) == 0 {
			return nil, err
		}
		// On a partial failure the job fails but still reports who was recorded.
		return VerifyResponse{
			Direction:     dir,
			Outcome:       out,
			Notifications: out.Notifications(dir),
		}, err
	})

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

// Events returns the attendance log in append order.
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.Events(r.Context())
	if err != nil {
		h.log.Error("failed to read attendance log", "kind", attendance.KindStorage.String(), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read attendance log")
		return
	}
	if events == nil {
		events = []database.AttendanceEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}
