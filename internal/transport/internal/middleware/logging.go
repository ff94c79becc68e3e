package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jamesprial/oauth-resource-core/internal/metrics"
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

// HeaderCorrelationID links related requests across services.
const HeaderCorrelationID = "X-Correlation-ID"

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures status code is captured even if WriteHeader is not called explicitly.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap returns the underlying writer for http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// NewLoggingMiddleware creates middleware that writes one structured log
// line per request. The line carries the request's method, path, status,
// duration and correlation id, the caller's client and user ids once the
// request is authorized, and the error code and error id when it failed.
// If logger is nil, it uses the default slog logger. m may be nil.
func NewLoggingMiddleware(logger *slog.Logger, m *metrics.Metrics) transportcore.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			entry := &transportcore.LogEntry{
				ID:            uuid.NewString(),
				CorrelationID: r.Header.Get(HeaderCorrelationID),
			}
			if entry.CorrelationID == "" {
				entry.CorrelationID = uuid.NewString()
			}
			w.Header().Set(HeaderCorrelationID, entry.CorrelationID)

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			ctx := transportcore.ContextWithLogEntry(r.Context(), entry)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			m.HTTPRequest(r.Method, wrapped.statusCode)

			attrs := []any{
				"id", entry.ID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"correlation_id", entry.CorrelationID,
			}
			if entry.ClientID != "" {
				attrs = append(attrs, "client_id", entry.ClientID)
			}
			if entry.UserID != "" {
				attrs = append(attrs, "user_id", entry.UserID)
			}
			if entry.ErrorCode != "" {
				attrs = append(attrs, "error_code", entry.ErrorCode)
			}
			if entry.ErrorID != "" {
				attrs = append(attrs, "error_id", entry.ErrorID)
			}
			logger.InfoContext(ctx, "http request", attrs...)
		})
	}
}
