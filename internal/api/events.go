package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/center"
	"github.com/patrickwarner/inappserve/internal/middleware"
	"github.com/patrickwarner/inappserve/internal/models"
)

// EventRequest is the body of POST /events.
type EventRequest struct {
	Name  string            `json:"name"`
	Label string            `json:"label,omitempty"`
	Data  *models.EventData `json:"data,omitempty"`
}

// TrackEventHandler handles POST /events. It answers 202 when the event was
// queued for evaluation and 204 when no campaign watches it.
func (s *Server) TrackEventHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "events"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req EventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadSize)).Decode(&req); err != nil {
		logger.Warn("invalid event body", zap.Error(err))
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	queued, err := s.Center.TrackEvent(req.Name, req.Label, req.Data, s.device(r))
	switch {
	case errors.Is(err, center.ErrTrackingDisabled):
		s.observe(endpoint, method, http.StatusForbidden, start)
		http.Error(w, "tracking disabled", http.StatusForbidden)
		return
	case err != nil:
		logger.Error("track event", zap.String("event", req.Name), zap.Error(err))
		s.observe(endpoint, method, http.StatusServiceUnavailable, start)
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}

	if !queued {
		s.observe(endpoint, method, http.StatusNoContent, start)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.observe(endpoint, method, http.StatusAccepted, start)
	w.WriteHeader(http.StatusAccepted)
}

// StartSessionHandler handles POST /sessions.
func (s *Server) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "sessions"
	const method = "POST"

	if err := s.Center.StartSession(s.device(r)); err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("start session", zap.Error(err))
		s.observe(endpoint, method, http.StatusServiceUnavailable, start)
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	s.observe(endpoint, method, http.StatusAccepted, start)
	w.WriteHeader(http.StatusAccepted)
}
