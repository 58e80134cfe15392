package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/campaigns"
	"github.com/patrickwarner/inappserve/internal/center"
	"github.com/patrickwarner/inappserve/internal/middleware"
	"github.com/patrickwarner/inappserve/internal/models"
	"github.com/patrickwarner/inappserve/internal/payload"
	"github.com/patrickwarner/inappserve/internal/remote"
)

// CampaignSummary is one entry of GET /campaigns.
type CampaignSummary struct {
	ID          string   `json:"id"`
	Priority    int      `json:"priority"`
	RequiresJIT bool     `json:"requireJIT"`
	Persist     bool     `json:"persist"`
	OutputType  string   `json:"outputType"`
	Events      []string `json:"events,omitempty"`
	NextSession bool     `json:"nextSession,omitempty"`
}

func summarize(c *models.Campaign) CampaignSummary {
	sum := CampaignSummary{
		ID:          c.ID,
		Priority:    c.Priority,
		RequiresJIT: c.RequiresJIT,
		Persist:     c.Persist,
		OutputType:  c.Output.Type,
		NextSession: c.HasSessionTrigger(),
	}
	for _, t := range c.Triggers {
		if t.Type == models.TriggerEvent {
			sum.Events = append(sum.Events, t.Event)
		}
	}
	return sum
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListCampaignsHandler handles GET /campaigns.
func (s *Server) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	list := s.Center.Campaigns()
	out := make([]CampaignSummary, 0, len(list))
	for _, c := range list {
		out = append(out, summarize(c))
	}
	writeJSON(w, http.StatusOK, out)
	s.observe("campaigns", "GET", http.StatusOK, start)
}

// LoadCampaignsHandler handles PUT /campaigns with a raw campaign payload.
// The persistable campaigns are cached unless persist=false is given.
func (s *Server) LoadCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "campaigns"
	const method = "PUT"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadSize))
	if err != nil {
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	persist := true
	if v := r.URL.Query().Get("persist"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			persist = b
		}
	}

	report, err := s.Center.LoadPayload(r.Context(), raw, persist)
	if err != nil {
		if errors.Is(err, payload.ErrInvalidPayload) {
			s.observe(endpoint, method, http.StatusBadRequest, start)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("load campaigns", zap.Error(err))
		s.observe(endpoint, method, http.StatusServiceUnavailable, start)
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("X-Dropped-Records", strconv.Itoa(len(report.Dropped)))
	s.observe(endpoint, method, http.StatusNoContent, start)
	w.WriteHeader(http.StatusNoContent)
}

// RefreshHandler handles POST /campaigns/refresh. A server asking to retry
// later is relayed as 503 with Retry-After.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "refresh"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	_, err := s.Center.Refresh(r.Context())
	if err == nil {
		s.observe(endpoint, method, http.StatusNoContent, start)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if delay, ok := remote.RetryAfter(err); ok {
		logger.Warn("campaign refresh deferred", zap.Duration("retry_after", delay))
		w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())))
		s.observe(endpoint, method, http.StatusServiceUnavailable, start)
		http.Error(w, "retry later", http.StatusServiceUnavailable)
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, center.ErrNoRemote) {
		status = http.StatusNotImplemented
	}
	logger.Error("campaign refresh failed", zap.Error(err))
	s.observe(endpoint, method, status, start)
	http.Error(w, "refresh failed", status)
}

// DisplayCampaignHandler handles POST /campaigns/{id}/display.
func (s *Server) DisplayCampaignHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "display"
	const method = "POST"
	id := mux.Vars(r)["id"]

	err := s.Center.DisplayCampaign(r.Context(), id, s.device(r))
	switch {
	case err == nil:
		s.observe(endpoint, method, http.StatusNoContent, start)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, campaigns.ErrUnknownCampaign):
		s.observe(endpoint, method, http.StatusNotFound, start)
		http.Error(w, "campaign not found", http.StatusNotFound)
	case errors.Is(err, campaigns.ErrNotEligible):
		s.observe(endpoint, method, http.StatusConflict, start)
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		middleware.LoggerFromRequest(r, s.Logger).Error("display campaign", zap.String("campaign_id", id), zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "display failed", http.StatusInternalServerError)
	}
}
