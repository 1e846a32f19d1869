package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseHeartbeat keeps idle job streams open through kiosk proxies.
const sseHeartbeat = 15 * time.Second

// SSEJob is a job whose progress can be streamed to a kiosk.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// jobStream writes numbered server-sent events for one job.
type jobStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

func newJobStream(w http.ResponseWriter) (*jobStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &jobStream{w: w, flusher: flusher}, true
}

func (s *jobStream) send(eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{}`)
	}
	s.seq++
	_, _ = fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", eventType, s.seq, payload)
	s.flusher.Flush()
}

func (s *jobStream) ping() {
	_, _ = fmt.Fprint(s.w, ": ping\n\n")
	s.flusher.Flush()
}

// streamJob sends the job's current state as a "status" event, then relays
// its events until a terminal one, client disconnect, or the listener
// closing. A job already finished gets only the status event.
func streamJob(w http.ResponseWriter, r *http.Request, job SSEJob, status func() any) {
	stream, ok := newJobStream(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := job.AddListener()
	defer job.RemoveListener(events)

	stream.send("status", status())
	if s := job.GetStatus(); s == JobStatusCompleted || s == JobStatusFailed {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			stream.ping()
		case event, ok := <-events:
			if !ok {
				return
			}
			stream.send(event.Type, event)
			if event.Type == jobEventCompleted || event.Type == jobEventError {
				return
			}
		}
	}
}
