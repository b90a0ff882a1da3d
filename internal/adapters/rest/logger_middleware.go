package rest

import (
	"net/http"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/port"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// LoggerMiddleware кладет в контекст логгер с trace_id и пишет начало и конец запроса
func LoggerMiddleware(logger port.LoggerPort) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := contextkeys.NormalizeTraceID(r.Header.Get("X-Trace-ID"))
			w.Header().Set("X-Trace-ID", traceID)

			// use case получает логгер без HTTP-полей
			ctx, coreLogger := contextkeys.ContextWithTrace(r.Context(), logger, traceID)
			httpLogger := coreLogger.WithFields(port.Fields{
				"http_method": r.Method,
				"http_path":   r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})


			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			httpLogger.Debug("Request started", nil)

			next.ServeHTTP(ww, r.WithContext(ctx))

			httpLogger.Info("Request finished", port.Fields{
				"status_code":   ww.Status(),
				"bytes_written": ww.BytesWritten(),
				"duration_ms":   time.Since(started).Milliseconds(),
			})
		})
	}
}
