package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/center"
	"github.com/patrickwarner/inappserve/internal/middleware"
)

// remoteHealthTimeout bounds the campaign server probe of /health.
const remoteHealthTimeout = 2 * time.Second

// HealthHandler responds with the engine state. An unreachable campaign
// server is reported but does not fail the check; the engine keeps serving
// the cached campaigns.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	state := s.Center.State()
	status := http.StatusOK
	if state != center.StateReady {
		status = http.StatusServiceUnavailable
	}
	body := map[string]any{
		"status":    state.String(),
		"campaigns": len(s.Center.Campaigns()),
	}
	if s.Remote != nil {
		body["remote"] = s.remoteHealth(r)
	}
	writeJSON(w, status, body)
	s.observe(endpoint, method, status, start)
}

func (s *Server) remoteHealth(r *http.Request) map[string]any {
	ctx, cancel := context.WithTimeout(r.Context(), remoteHealthTimeout)
	defer cancel()

	out := map[string]any{
		"status":      "ok",
		"jit_cache":   s.Remote.GetCacheStats(),
		"rate_limits": s.Remote.RateLimitStats(),
	}
	if err := s.Remote.HealthCheck(ctx); err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Warn("campaign server unhealthy", zap.Error(err))
		out["status"] = "unavailable"
		out["error"] = err.Error()
	}
	return out
}

// TraceHandler returns the selection trace of the latest signal or manual
// display.
func (s *Server) TraceHandler(w http.ResponseWriter, r *http.Request) {
	trace := s.Center.LastTrace()
	if trace == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}
