// Package api exposes the campaign engine to the host application over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/center"
	"github.com/patrickwarner/inappserve/internal/geoip"
	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/logic/ratelimit"
	"github.com/patrickwarner/inappserve/internal/models"
	"github.com/patrickwarner/inappserve/internal/observability"
)

// maxPayloadSize bounds request bodies, campaign payloads included.
const maxPayloadSize = 16 << 20

// AttributeStore is the write side of the user attribute store.
type AttributeStore interface {
	SetAttributes(ctx context.Context, attrs map[string]any) error
	AddTags(ctx context.Context, collection string, tags ...string) error
	RemoveTags(ctx context.Context, collection string, tags ...string) error
}

// RemoteStatus is the campaign server client as reported by /health.
type RemoteStatus interface {
	HealthCheck(ctx context.Context) error
	GetCacheStats() map[string]interface{}
	RateLimitStats() map[string]ratelimit.RateLimitStats
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger     *zap.Logger
	Center     *center.Center
	Attributes AttributeStore
	GeoIP      *geoip.GeoIP
	Metrics    observability.MetricsRegistry
	// Remote is optional; set it when a campaign server is configured.
	Remote RemoteStatus
	// APILevel is reported for requests that do not send X-Api-Level.
	APILevel   int
	DebugTrace bool
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, c *center.Center, attrs AttributeStore, geo *geoip.GeoIP, metrics observability.MetricsRegistry, apiLevel int, debug bool) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:     logger,
		Center:     c,
		Attributes: attrs,
		GeoIP:      geo,
		Metrics:    metrics,
		APILevel:   apiLevel,
		DebugTrace: debug,
	}
}

// device describes the caller from its User-Agent and address.
func (s *Server) device(r *http.Request) models.DeviceInfo {
	apiLevel := s.APILevel
	if v := r.Header.Get("X-Api-Level"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			apiLevel = n
		}
	}
	return logic.ResolveDeviceFromRequest(r, s.GeoIP, apiLevel)
}

func (s *Server) observe(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
