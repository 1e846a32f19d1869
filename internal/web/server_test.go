package web

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/filestore"
	embmock "github.com/kozaktomas/face-attendance/internal/embedder/mock"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// jpegHeader is enough for format detection; the mock embedder never decodes it.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'a', 'l', 'i', 'c', 'e'}

type testServer struct {
	server   *Server
	embedder *embmock.MockEmbedder
	ledger   *ledger.FileLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	emb := embmock.NewMockEmbedder()
	led := ledger.NewFileLedger(filepath.Join(dir, "log.txt"), filepath.Join(dir, "log.csv"))

	svc := attendance.NewService(attendance.Deps{
		Store:    filestore.New(filepath.Join(dir, "db")),
		Embedder: emb,
		Ledger:   led,
		Metrics:  metrics.New(reg),
	}, attendance.Options{Threshold: 0.6})

	cfg := &config.Config{}
	cfg.Web.Host = "127.0.0.1"
	cfg.Web.Port = 0

	srv := NewServer(cfg, Deps{
		Service:  svc,
		Slot:     frame.NewSlot(),
		Events:   led,
		Gatherer: reg,
	})
	return &testServer{server: srv, embedder: emb, ledger: led}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(recorder, req)
	return recorder
}

func (ts *testServer) jobResult(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var accepted map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &accepted); err != nil {
		t.Fatal(err)
	}
	ts.server.Jobs().Wait()

	status := ts.do(t, httptest.NewRequest("GET", "/api/v1/jobs/"+accepted["job_id"], nil))
	if status.Code != http.StatusOK {
		t.Fatalf("job status: %d", status.Code)
	}
	var view map[string]any
	if err := json.Unmarshal(status.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	return view
}

func vec(first float32) []float32 {
	v := make([]float32, 128)
	v[0] = first
	return v
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, httptest.NewRequest("GET", "/api/v1/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, httptest.NewRequest("GET", "/api/v1/photos", nil))

	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", recorder.Code)
	}
}

func TestServer_EnrollThenLogIn(t *testing.T) {
	ts := newTestServer(t)
	ts.embedder.SetFaces(jpegHeader, vec(1))

	put := ts.do(t, httptest.NewRequest("PUT", "/api/v1/frame", bytes.NewReader(jpegHeader)))
	if put.Code != http.StatusOK {
		t.Fatalf("frame upload: %d %s", put.Code, put.Body.String())
	}

	enroll := httptest.NewRequest("POST", "/api/v1/identities", strings.NewReader(`{"name":"alice"}`))
	enroll.Header.Set("Content-Type", "application/json")
	view := ts.jobResult(t, ts.do(t, enroll))
	if view["status"] != "completed" {
		t.Fatalf("enroll job: %v", view)
	}

	list := ts.do(t, httptest.NewRequest("GET", "/api/v1/identities", nil))
	if !strings.Contains(list.Body.String(), `"name":"alice"`) {
		t.Errorf("identity list: %s", list.Body.String())
	}

	view = ts.jobResult(t, ts.do(t, httptest.NewRequest("POST", "/api/v1/attendance/in", nil)))
	if view["status"] != "completed" {
		t.Fatalf("verify job: %v", view)
	}
	result, _ := view["result"].(map[string]any)
	if notes, _ := result["notifications"].([]any); len(notes) != 1 || notes[0] != "Welcome, alice." {
		t.Errorf("notifications: %v", result["notifications"])
	}

	events, err := ts.ledger.Events(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Name != "alice" || string(events[0].Direction) != "in" {
		t.Errorf("ledger events: %+v", events)
	}
	if time.Since(events[0].Timestamp) > time.Minute {
		t.Errorf("unexpected timestamp %v", events[0].Timestamp)
	}

	log := ts.do(t, httptest.NewRequest("GET", "/api/v1/attendance", nil))
	if !strings.Contains(log.Body.String(), `"direction":"in"`) {
		t.Errorf("attendance log: %s", log.Body.String())
	}
}

func TestServer_EnrollDuplicateReportsConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.embedder.SetFaces(jpegHeader, vec(1))

	for i, want := range []string{"completed", "failed"} {
		view := ts.jobResult(t, ts.do(t, multipartEnroll(t, "alice", jpegHeader)))
		if view["status"] != want {
			t.Fatalf("attempt %d: expected %s, got %v", i, want, view)
		}
		if want == "failed" && view["http_status"] != float64(http.StatusConflict) {
			t.Errorf("expected http_status 409, got %v", view["http_status"])
		}
	}
}

func TestServer_VerifyWithoutFrame(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, httptest.NewRequest("POST", "/api/v1/attendance/out", nil))

	if recorder.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", recorder.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.embedder.SetFaces(jpegHeader, vec(1))
	ts.jobResult(t, ts.do(t, multipartEnroll(t, "alice", jpegHeader)))

	recorder := ts.do(t, httptest.NewRequest("GET", "/metrics", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body, _ := io.ReadAll(recorder.Body)
	if !strings.Contains(string(body), `face_attendance_enrollments_total{outcome="ok"} 1`) {
		t.Errorf("enrollment metric missing:\n%s", body)
	}
}

func multipartEnroll(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("name", name)
	part, err := w.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	_ = w.Close()
	req := httptest.NewRequest("POST", "/api/v1/identities", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
