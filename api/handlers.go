package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"vigil/core"
	"vigil/service"
	"vigil/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the thin operational HTTP surface: health, metrics and the alert
// lifecycle endpoints. No auth; it is meant to sit behind the deployment's
// ingress controls.
type Server struct {
	lifecycle *service.Lifecycle
	logger    *zap.SugaredLogger
	router    *mux.Router
}

// NewServer builds the router.
func NewServer(lifecycle *service.Lifecycle, logger *zap.SugaredLogger) *Server {
	s := &Server{lifecycle: lifecycle, logger: logger, router: mux.NewRouter()}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/alerts/{id}", s.handleGetAlert).Methods(http.MethodGet)
	s.router.HandleFunc("/alerts/{id}/status", s.handleTransition).Methods(http.MethodPost)
	s.router.HandleFunc("/alerts/{id}/transitions", s.handleAllowedTransitions).Methods(http.MethodGet)

	return s
}

// Handler returns the root handler for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alert, err := s.lifecycle.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// transitionRequest is the POST /alerts/{id}/status body.
type transitionRequest struct {
	Status  string `json:"status"`
	Actor   string `json:"actor"`
	Comment string `json:"comment,omitempty"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("status is required"))
		return
	}

	alert, err := s.lifecycle.Transition(r.Context(), id, core.AlertStatus(req.Status), req.Actor, req.Comment)
	if err != nil {
		s.writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleAllowedTransitions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	allowed, err := s.lifecycle.AllowedTransitions(r.Context(), id)
	if err != nil {
		s.writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"allowed": allowed})
}

// writeError maps domain errors to HTTP statuses: unknown alert is 404, a
// rejected transition is 409 carrying the from/to pair in the message.
func (s *Server) writeError(w http.ResponseWriter, alertID string, err error) {
	switch {
	case errors.Is(err, storage.ErrAlertNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("alert not found"))
	case errors.Is(err, core.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		s.logger.Errorw("Request failed", "alert_id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
