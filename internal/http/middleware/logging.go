package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// UnmatchedRoute labels requests that matched no route.
const UnmatchedRoute = "unmatched"

// RequestRecorder receives per-request metrics.
type RequestRecorder interface {
	RecordRequest(method, route string, status int, d time.Duration)
}

// Logging logs every request with its status and latency. If recorder is
// non-nil the request is also counted under its route pattern, or
// UnmatchedRoute when no route matched.
func Logging(logger *slog.Logger, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			route := UnmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)

			if recorder != nil {
				recorder.RecordRequest(r.Method, route, status, elapsed)
			}
		})
	}
}
