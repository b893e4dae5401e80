package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/thushan/llamatap/internal/core/constants"
	"github.com/thushan/llamatap/internal/logger"
	"github.com/thushan/llamatap/internal/util"
	"github.com/thushan/llamatap/pkg/format"
)

// responseWriter records what the handler sent so it can be logged afterwards
type responseWriter struct {
	http.ResponseWriter
	status      int
	size        int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *responseWriter) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.status = status
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(status)
}

// Flush must reach the real writer or streamed chunks sit in the buffer
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// AccessLogging writes one file-only access record per request. The proxy logs its
// own outcome, so the console line stays at debug.
func AccessLogging(log *logger.StyledLogger, trustProxyHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			requestSize := max(r.ContentLength, 0)

			log.Debug("HTTP request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", format.Duration(duration),
				"size_flow", format.Bytes(requestSize)+" -> "+format.Bytes(wrapped.size))

			detailedCtx := context.WithValue(r.Context(), logger.DefaultDetailedCookie, true)
			log.GetUnderlying().LogAttrs(detailedCtx, slog.LevelInfo, "Access log",
				slog.String("timestamp", start.Format(time.RFC3339)),
				slog.String("request_id", wrapped.Header().Get(constants.HeaderRequestID)),
				slog.String("remote_addr", util.GetClientIP(r, trustProxyHeaders)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.status),
				slog.Int64("request_bytes", requestSize),
				slog.Int64("response_bytes", wrapped.size),
				slog.Int64("duration_ms", duration.Milliseconds()),
				slog.String("user_agent", r.UserAgent()),
				slog.String("content_type", r.Header.Get(constants.ContentTypeHeader)))
		})
	}
}
