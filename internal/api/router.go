package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/patrickwarner/inappserve/internal/middleware"
)

// Router wires every route. The returned handler is instrumented with
// OpenTelemetry and carries a trace aware logger in the request context.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/events", s.TrackEventHandler).Methods("POST")
	r.HandleFunc("/sessions", s.StartSessionHandler).Methods("POST")

	r.HandleFunc("/campaigns", s.ListCampaignsHandler).Methods("GET")
	r.HandleFunc("/campaigns", s.LoadCampaignsHandler).Methods("PUT")
	r.HandleFunc("/campaigns/refresh", s.RefreshHandler).Methods("POST")
	r.HandleFunc("/campaigns/{id}/display", s.DisplayCampaignHandler).Methods("POST")

	r.HandleFunc("/attributes", s.SetAttributesHandler).Methods("PUT")

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	if s.DebugTrace {
		r.HandleFunc("/debug/trace", s.TraceHandler).Methods("GET")
	}
	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "inappserve")
}
