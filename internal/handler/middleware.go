package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/metrics"
)

// accessLog logs each request and records HTTP metrics, labelled by the
// matched chi route pattern.
func accessLog(logger zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.ObserveHTTP(route, r.Method, status, elapsed)

			ev := logger.Info()
			if status >= http.StatusInternalServerError {
				ev = logger.Error()
			} else if status >= http.StatusBadRequest {
				ev = logger.Warn()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", elapsed).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request")
		})
	}
}
