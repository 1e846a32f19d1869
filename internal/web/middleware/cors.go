package middleware

import (
	"net/http"
	"strings"
)

// Methods and headers a kiosk page needs: frame uploads, job polling, and
// SSE reconnects that resend Last-Event-ID.
const (
	corsMethods = "GET, HEAD, POST, OPTIONS"
	corsHeaders = "Accept, Content-Type, Last-Event-ID"
)

// kioskOrigins is the set of browser origins allowed to call the API.
// A kiosk served from localhost on any port is always allowed.
type kioskOrigins map[string]struct{}

func newKioskOrigins(list []string) kioskOrigins {
	k := make(kioskOrigins, len(list))
	for _, o := range list {
		if o = strings.TrimSpace(o); o != "" {
			k[strings.TrimSuffix(o, "/")] = struct{}{}
		}
	}
	return k
}

func (k kioskOrigins) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := k[origin]; ok {
		return true
	}
	for _, scheme := range []string{"http://", "https://"} {
		host, ok := strings.CutPrefix(origin, scheme)
		if !ok {
			continue
		}
		if host == "localhost" || strings.HasPrefix(host, "localhost:") {
			return true
		}
	}
	return false
}

// CORS lets the configured kiosk origins call the API from a browser.
// Preflight requests are answered here; other requests go through with the
// CORS headers added for allowed origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := newKioskOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := origins.allows(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					h.Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets headers for a JSON API that also serves PNG snapshots.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}
