// Package api exposes the limbo's administrative operations over HTTP,
// following this codebase's gorilla/mux routing convention (lxd/daemon.go's
// createCmd). Every request gets a correlation id so a single operation
// can be traced across the log lines it produces.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/canonical/synclimbo/limbo"
)

func msToDuration(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Server wires the limbo's public operations to a mux.Router.
type Server struct {
	limbo  *limbo.Limbo
	log    *logrus.Entry
	router *mux.Router
}

// New builds a Server around an existing Limbo. Callers pass the router to
// http.Serve (or net/http.Server.Handler) themselves, mirroring how
// lxd/daemon.go hands its restAPI router to the stdlib HTTP server rather
// than owning the listener itself.
func New(l *limbo.Limbo, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{limbo: l, log: log.WithField("component", "api"), router: mux.NewRouter()}
	s.router.HandleFunc("/1.0/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/1.0/force-empty", s.handleForceEmpty).Methods(http.MethodPost)
	s.router.HandleFunc("/1.0/quorum", s.handleSetQuorum).Methods(http.MethodPut)
	s.router.HandleFunc("/1.0/timeout", s.handleSetTimeout).Methods(http.MethodPut)
	return s
}

// Router returns the underlying mux.Router for embedding in an
// http.Server.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) withRequestID(r *http.Request) *logrus.Entry {
	return s.log.WithField("request_id", uuid.NewString()).WithField("path", r.URL.Path)
}

type statusResponse struct {
	Len           int              `json:"len"`
	Quorum        int              `json:"quorum"`
	TimeoutMillis int64            `json:"timeout_ms"`
	RollbackCount uint64           `json:"rollback_count"`
	PeerPositions map[uint32]int64 `json:"peer_positions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	log := s.withRequestID(r)
	resp := statusResponse{
		Len:           s.limbo.Len(),
		Quorum:        s.limbo.Quorum(),
		TimeoutMillis: s.limbo.Timeout().Milliseconds(),
		RollbackCount: s.limbo.RollbackCount(),
		PeerPositions: s.limbo.PeerPositionsSnapshot(),
	}
	writeJSON(w, log, http.StatusOK, resp)
}

type forceEmptyRequest struct {
	ConfirmPos int64 `json:"confirm_pos"`
}

func (s *Server) handleForceEmpty(w http.ResponseWriter, r *http.Request) {
	log := s.withRequestID(r)
	var req forceEmptyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.WithError(err).Warn("malformed force-empty request")
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	log.WithField("confirm_pos", req.ConfirmPos).Info("forcing limbo empty")
	s.limbo.ForceEmpty(req.ConfirmPos)
	writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetQuorum(w http.ResponseWriter, r *http.Request) {
	s.handleSetIntParam(w, r, "n", func(n int) {
		s.limbo.SetQuorum(n)
		s.limbo.OnParametersChange()
	})
}

func (s *Server) handleSetTimeout(w http.ResponseWriter, r *http.Request) {
	s.handleSetIntParam(w, r, "millis", func(n int) {
		s.limbo.SetTimeout(msToDuration(n))
		s.limbo.OnParametersChange()
	})
}

func (s *Server) handleSetIntParam(w http.ResponseWriter, r *http.Request, field string, apply func(int)) {
	log := s.withRequestID(r)
	raw := r.URL.Query().Get(field)
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.WithError(err).Warn("malformed parameter value")
		http.Error(w, "malformed "+field+" value", http.StatusBadRequest)
		return
	}
	apply(n)
	writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, log *logrus.Entry, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("failed to encode response body")
	}
}
