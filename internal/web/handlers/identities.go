package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

// IdentitiesHandler handles enrollment endpoints
type IdentitiesHandler struct {
	service    *attendance.Service
	source     frame.Source
	jobManager *JobManager
	log        *logger.Logger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(svc *attendance.Service, source frame.Source, jm *JobManager, log *logger.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{service: svc, source: source, jobManager: jm, log: log}
}

// IdentityResponse represents an enrolled identity without its embedding.
type IdentityResponse struct {
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EnrollRequest is the JSON body of an enrollment request.
type EnrollRequest struct {
	Name string `json:"name"`
}

// List returns all enrolled identities in name order.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.Identities(r.Context())
	if err != nil {
		respondError(w, statusForError(err), "failed to list identities")
		return
	}

	result := make([]IdentityResponse, len(ids))
	for i, id := range ids {
		result[i] = IdentityResponse{Name: id.Name, Dim: id.Dim, Model: id.Model, CreatedAt: id.CreatedAt}
	}
	respondJSON(w, http.StatusOK, result)
}

// Snapshot serves the stored reference image.
func (h *IdentitiesHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		respondError(w, http.StatusBadRequest, "missing name")
		return
	}

	snap, err := h.service.Snapshot(r.Context(), name)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		respondError(w, statusForError(err), "failed to load snapshot")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap)
}

// Enroll starts an enrollment job. The name comes from a JSON body or the
// "name" multipart field; the frame from the "frame" file or the frame slot.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	var req EnrollRequest
	if r.MultipartForm != nil {
		req.Name = r.FormValue("name")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	name, err := facematch.ValidateName(req.Name)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid name: "+err.Error())
		return
	}

	f, err := frameFromRequest(r.Context(), r, h.source)
	if err != nil {
		respondError(w, frameErrorStatus(err), err.Error())
		return
	}

	job := h.jobManager.CreateJob(uuid.New().String(), JobTypeEnroll)
	h.log.Info("enrollment job submitted", "job", job.ID, "name", sanitizeForLog(name))
	h.jobManager.Run(job, func(ctx context.Context) (any, error) {
		res, err := h.service.Enroll(ctx, name, f)
		if err != nil {
			return nil, err
		}
		return res, nil
	})

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}
