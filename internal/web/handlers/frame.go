package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/frame"
)

// FrameHandler receives camera frames from the shell.
type FrameHandler struct {
	slot *frame.Slot
}

// NewFrameHandler creates a new frame handler
func NewFrameHandler(slot *frame.Slot) *FrameHandler {
	return &FrameHandler{slot: slot}
}

// Put replaces the latest frame with the raw request body.
func (h *FrameHandler) Put(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxFrameSize))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "frame too large")
		return
	}
	f, err := frame.New(data, time.Now())
	if err != nil {
		respondError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	h.slot.Put(f)
	respondJSON(w, http.StatusOK, map[string]any{
		"format":      f.Format,
		"size":        len(f.Data),
		"captured_at": f.CapturedAt,
	})
}

// frameFromRequest returns the uploaded "frame" file of a multipart request,
// or the latest frame from the slot when none was uploaded.
func frameFromRequest(ctx context.Context, r *http.Request, slot frame.Source) (frame.Frame, error) {
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["frame"]; len(files) > 0 {
			file, err := files[0].Open()
			if err != nil {
				return frame.Frame{}, fmt.Errorf("open uploaded frame: %w", err)
			}
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, constants.MaxFrameSize))
			if err != nil {
				return frame.Frame{}, fmt.Errorf("read uploaded frame: %w", err)
			}
			return frame.New(data, time.Now())
		}
	}
	return slot.Current(ctx)
}

// parseForm parses multipart bodies; other bodies are left untouched.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxFrameSize+constants.MultipartMemory)
	return r.ParseMultipartForm(constants.MultipartMemory)
}

// frameErrorStatus maps frame acquisition errors to HTTP statuses.
func frameErrorStatus(err error) int {
	switch {
	case errors.Is(err, frame.ErrNoFrame):
		return http.StatusConflict
	case errors.Is(err, frame.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}
