package audit

import (
	"net/http"
	"time"

	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// Middleware provides HTTP middleware for audit logging. It must run after
// authentication and tenant resolution so both are on the request context.
type Middleware struct {
	recorder       *Recorder
	logAllRequests bool // If false, only log mutations and refused requests
}

// NewMiddleware creates a new audit middleware
func NewMiddleware(recorder *Recorder, logAllRequests bool) *Middleware {
	return &Middleware{
		recorder:       recorder,
		logAllRequests: logAllRequests,
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Handler wraps an HTTP handler with audit logging. Requests without a
// resolved tenant are not recorded.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if !m.shouldLogRequest(r, wrapped.statusCode) {
			return
		}
		tenant, ok := tenants.FromContext(r.Context())
		if !ok {
			return
		}

		m.recorder.Record(r.Context(), &Event{
			TenantID:   tenant.ID,
			EventType:  EventTypeRequest,
			Status:     StatusFromCode(wrapped.statusCode),
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: wrapped.statusCode,
			Metadata: map[string]interface{}{
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
			},
		})
	})
}

// shouldLogRequest determines if a request should be logged
func (m *Middleware) shouldLogRequest(r *http.Request, statusCode int) bool {
	if m.logAllRequests {
		return true
	}

	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}

	return statusCode >= http.StatusBadRequest
}
