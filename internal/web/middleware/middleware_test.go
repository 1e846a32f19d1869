package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://kiosk.example/"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantOrigin  string
		wantStatus  int
		wantMethods string
	}{
		{"configured origin", http.MethodGet, "https://kiosk.example", false, "https://kiosk.example", http.StatusTeapot, ""},
		{"localhost with port", http.MethodPost, "http://localhost:5173", false, "http://localhost:5173", http.StatusTeapot, ""},
		{"localhost lookalike", http.MethodGet, "http://localhost.evil.com", false, "", http.StatusTeapot, ""},
		{"unknown origin", http.MethodGet, "https://evil.example", false, "", http.StatusTeapot, ""},
		{"no origin", http.MethodGet, "", false, "", http.StatusTeapot, ""},
		{"preflight", http.MethodOptions, "https://kiosk.example", true, "https://kiosk.example", http.StatusNoContent, corsMethods},
		{"preflight unknown origin", http.MethodOptions, "https://evil.example", true, "", http.StatusNoContent, ""},
		{"plain options", http.MethodOptions, "https://kiosk.example", false, "https://kiosk.example", http.StatusTeapot, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Methods"); got != tt.wantMethods {
				t.Errorf("Allow-Methods = %q, want %q", got, tt.wantMethods)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Header().Get("Vary") != "Origin" {
				t.Error("missing Vary: Origin")
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing CSP header")
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	handler := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fine", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.DebugLevel || entries[0].ContextMap()["status"] != int64(200) {
		t.Errorf("unexpected first entry: %v %v", entries[0].Level, entries[0].ContextMap())
	}
	if entries[1].Level != zap.ErrorLevel {
		t.Errorf("expected error level for 500, got %v", entries[1].Level)
	}
}
