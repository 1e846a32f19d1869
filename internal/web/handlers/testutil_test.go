package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	embmock "github.com/kozaktomas/face-attendance/internal/embedder/mock"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

var testNow = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

// testEnv bundles a service wired to in-memory fakes.
type testEnv struct {
	service  *attendance.Service
	store    *mock.MockIdentityStore
	embedder *embmock.MockEmbedder
	ledger   *mock.MockLedger
	jobs     *JobManager
	log      *logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    mock.NewMockIdentityStore(),
		embedder: embmock.NewMockEmbedder(),
		ledger:   mock.NewMockLedger(),
		jobs:     NewJobManager(),
		log:      logger.Nop(),
	}
	env.service = attendance.NewService(attendance.Deps{
		Store:    env.store,
		Embedder: env.embedder,
		Ledger:   env.ledger,
		Clock:    func() time.Time { return testNow },
	}, attendance.Options{Threshold: 0.6})
	return env
}

// testPNG returns PNG bytes that differ per seed.
func testPNG(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x * 16), B: uint8(y * 16), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartRequest builds a multipart request with optional fields and a "frame" file.
func multipartRequest(t *testing.T, method, path string, fields map[string]string, frameData []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if frameData != nil {
		part, err := w.CreateFormFile("frame", "frame.png")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(frameData)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// waitForJob waits for all submitted jobs and returns the view of id.
func waitForJob(t *testing.T, jm *JobManager, id string) JobView {
	t.Helper()
	jm.Wait()
	job := jm.GetJob(id)
	if job == nil {
		t.Fatalf("job %s not found", id)
	}
	return job.View()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
