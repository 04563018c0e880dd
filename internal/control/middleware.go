package control

import (
	"net/http"
	"time"
)

// loggingMiddleware logs each request's method, path, status, and
// duration, mirroring the daemon's structured-logging conventions.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.log.Info("control request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", statusFromPath(r.URL.Path),
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// recoveryMiddleware converts a panic in the handler chain into a 500
// response instead of taking down the control HTTP server's goroutine.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("control handler panic", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
