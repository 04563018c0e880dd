// Package control exposes the daemon's HTTP control surface: endpoint
// introspection, endpoint shutdown, and a liveness probe. It replaces
// the teacher's generated-RPC control plane with a plain net/http +
// encoding/json API, since the generated protobuf/ConnectRPC stubs this
// daemon's former control surface depended on cannot be regenerated in
// this environment.
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dantte-lp/udpmgrd/internal/netio"
)

// Manager is the subset of netio.Manager's API the control surface
// depends on.
type Manager interface {
	Snapshot() []netio.EndpointSnapshot
	Shutdown(fd int) error
}

// Server is the control-plane HTTP server.
type Server struct {
	mgr Manager
	log *slog.Logger
	mux *http.ServeMux
}

// NewServer builds a Server wired to mgr. log defaults to slog.Default.
func NewServer(mgr Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{mgr: mgr, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /v1/endpoints", s.handleListEndpoints)
	s.mux.HandleFunc("POST /v1/endpoints/{fd}/shutdown", s.handleShutdownEndpoint)
}

// ServeHTTP implements http.Handler, wrapping every request with the
// daemon's standard logging and panic-recovery middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.recoveryMiddleware(s.loggingMiddleware(s.mux)).ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Snapshot())
}

func (s *Server) handleShutdownEndpoint(w http.ResponseWriter, r *http.Request) {
	fd, err := strconv.Atoi(r.PathValue("fd"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fd")
		return
	}

	if err := s.mgr.Shutdown(fd); err != nil {
		if errors.Is(err, netio.ErrNotFound) {
			writeError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFromPath(path string) string {
	if strings.HasPrefix(path, "/v1/endpoints") {
		return "endpoints"
	}
	return path
}
