package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/middleware"
)

// AttributesRequest is the body of PUT /attributes. A null attribute value
// removes the attribute.
type AttributesRequest struct {
	Attributes map[string]any      `json:"attributes,omitempty"`
	AddTags    map[string][]string `json:"addTags,omitempty"`
	RemoveTags map[string][]string `json:"removeTags,omitempty"`
}

// SetAttributesHandler handles PUT /attributes.
func (s *Server) SetAttributesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "attributes"
	const method = "PUT"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	if s.Attributes == nil {
		s.observe(endpoint, method, http.StatusNotImplemented, start)
		http.Error(w, "attribute store unavailable", http.StatusNotImplemented)
		return
	}

	var req AttributesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadSize)).Decode(&req); err != nil {
		s.observe(endpoint, method, http.StatusBadRequest, start)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	fail := func(err error) {
		logger.Error("update attributes", zap.Error(err))
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		http.Error(w, "update failed", http.StatusInternalServerError)
	}
	if len(req.Attributes) > 0 {
		if err := s.Attributes.SetAttributes(ctx, req.Attributes); err != nil {
			fail(err)
			return
		}
	}
	for collection, tags := range req.AddTags {
		if err := s.Attributes.AddTags(ctx, collection, tags...); err != nil {
			fail(err)
			return
		}
	}
	for collection, tags := range req.RemoveTags {
		if err := s.Attributes.RemoveTags(ctx, collection, tags...); err != nil {
			fail(err)
			return
		}
	}
	s.observe(endpoint, method, http.StatusNoContent, start)
	w.WriteHeader(http.StatusNoContent)
}
