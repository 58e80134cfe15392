// Package remote talks to the campaign server: it downloads the campaign
// payload and asks for just-in-time eligibility decisions.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/logic/ratelimit"
	"github.com/patrickwarner/inappserve/internal/observability"
)

// maxBodySize bounds how much of a campaign payload is read.
const maxBodySize = 16 << 20

// Client is the HTTP client of the campaign server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      map[string]*cachedVerdict
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
	now        func() time.Time
}

// cachedVerdict is a JIT answer for one campaign.
type cachedVerdict struct {
	Eligible  bool
	Timestamp time.Time
	TTL       time.Duration
}

func (c *cachedVerdict) expired(now time.Time) bool {
	return now.Sub(c.Timestamp) > c.TTL
}

// NewClient creates a client for the server at baseURL. A cacheTTL of zero
// disables JIT result caching; a nil limiter never throttles.
func NewClient(baseURL string, timeout, cacheTTL time.Duration, limiter *ratelimit.Limiter, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cache:    make(map[string]*cachedVerdict),
		cacheTTL: cacheTTL,
		limiter:  limiter,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// FetchCampaigns downloads the raw campaign payload.
func (c *Client) FetchCampaigns(ctx context.Context) ([]byte, error) {
	if !c.limiter.Allow(ratelimit.KeyFetch) {
		return nil, ErrThrottled
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/campaigns", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer c.closeBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if err := checkStatus(resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

// JITCampaign is one candidate sent for a just-in-time decision.
type JITCampaign struct {
	CampaignID string `json:"campaignId"`
	Views      int64  `json:"views"`
}

// JITRequest asks the server which candidates may be displayed now.
type JITRequest struct {
	RequestID string        `json:"requestId"`
	Campaigns []JITCampaign `json:"campaigns"`
}

// JITResponse maps campaign ids to the server's verdict. A missing id means
// not eligible.
type JITResponse struct {
	EligibleCampaigns map[string]bool `json:"eligibleCampaigns"`
}

// Eligible reports the verdict for id.
func (r JITResponse) Eligible(id string) bool {
	return r.EligibleCampaigns[id]
}

// CheckEligibility asks the server about req.Campaigns. Cached verdicts are
// reused while fresh; only the remaining campaigns go on the wire.
func (c *Client) CheckEligibility(ctx context.Context, req JITRequest) (JITResponse, error) {
	out := JITResponse{EligibleCampaigns: make(map[string]bool, len(req.Campaigns))}

	pending := make([]JITCampaign, 0, len(req.Campaigns))
	now := c.now()
	c.cacheMu.RLock()
	for _, jc := range req.Campaigns {
		if v, ok := c.cache[jc.CampaignID]; ok && !v.expired(now) {
			out.EligibleCampaigns[jc.CampaignID] = v.Eligible
			continue
		}
		pending = append(pending, jc)
	}
	c.cacheMu.RUnlock()

	if len(pending) == 0 {
		c.metrics.IncrementJITRequests("cached")
		return out, nil
	}
	if !c.limiter.Allow(ratelimit.KeyJIT) {
		c.metrics.IncrementJITRequests("throttled")
		return out, ErrThrottled
	}

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Campaigns = pending

	resp, err := c.callJIT(ctx, req)
	if err != nil {
		c.logger.Warn("JIT eligibility request failed",
			zap.String("request_id", req.RequestID),
			zap.Int("campaigns", len(pending)),
			zap.Error(err))
		return out, err
	}

	if c.cacheTTL > 0 {
		c.cacheMu.Lock()
		for _, jc := range pending {
			c.cache[jc.CampaignID] = &cachedVerdict{
				Eligible:  resp.Eligible(jc.CampaignID),
				Timestamp: now,
				TTL:       c.cacheTTL,
			}
		}
		c.cacheMu.Unlock()
	}
	for _, jc := range pending {
		out.EligibleCampaigns[jc.CampaignID] = resp.Eligible(jc.CampaignID)
	}
	return out, nil
}

func (c *Client) callJIT(ctx context.Context, req JITRequest) (JITResponse, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordJITLatency(time.Since(start))
		c.metrics.IncrementJITRequests(outcome)
	}()

	reqBody, err := json.Marshal(req)
	if err != nil {
		outcome = "failure"
		return JITResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/campaigns/jit", bytes.NewReader(reqBody))
	if err != nil {
		outcome = "failure"
		return JITResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		outcome = "failure"
		return JITResponse{}, fmt.Errorf("http request: %w", err)
	}
	defer c.closeBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		outcome = "failure"
		return JITResponse{}, fmt.Errorf("read body: %w", err)
	}
	if err := checkStatus(resp, body); err != nil {
		outcome = "failure"
		if _, ok := RetryAfter(err); ok {
			outcome = "retry_after"
		}
		return JITResponse{}, err
	}

	var decoded JITResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		outcome = "failure"
		return JITResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}

// checkStatus turns a non-2xx response into an error. 429, 503 and any
// refusal carrying a retry delay become a *RetryableError.
func checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	delay, found := retryDelay(resp, body)
	if found || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if !found {
			delay = DefaultRetryAfter
		}
		return &RetryableError{StatusCode: resp.StatusCode, RetryAfter: delay}
	}
	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, snippet)
}

// retryDelay reads the Retry-After header (seconds or HTTP date) or a
// retryAfter field in the body, in seconds.
func retryDelay(resp *http.Response, body []byte) (time.Duration, bool) {
	if h := strings.TrimSpace(resp.Header.Get("Retry-After")); h != "" {
		if secs, err := strconv.ParseInt(h, 10, 64); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
		if at, err := http.ParseTime(h); err == nil {
			if d := time.Until(at); d > 0 {
				return d, true
			}
			return 0, true
		}
	}
	var probe struct {
		RetryAfter *int64 `json:"retryAfter"`
	}
	if json.Unmarshal(body, &probe) == nil && probe.RetryAfter != nil && *probe.RetryAfter >= 0 {
		return time.Duration(*probe.RetryAfter) * time.Second, true
	}
	return 0, false
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn("failed to close response body", zap.Error(err))
	}
}

// HealthCheck checks if the campaign server is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// RateLimitStats returns the throttle statistics of the client's limiter.
func (c *Client) RateLimitStats() map[string]ratelimit.RateLimitStats {
	return c.limiter.GetStats()
}

// ClearCache drops every cached JIT verdict. Verdicts are keyed by campaign
// id only, so they are cleared whenever the campaign list is replaced.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]*cachedVerdict)
}

// GetCacheStats returns statistics about the JIT verdict cache.
func (c *Client) GetCacheStats() map[string]interface{} {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	now := c.now()
	expired := 0
	for _, v := range c.cache {
		if v.expired(now) {
			expired++
		}
	}
	return map[string]interface{}{
		"total_entries":   len(c.cache),
		"expired_entries": expired,
		"active_entries":  len(c.cache) - expired,
	}
}

// CleanupExpiredCache removes expired verdicts.
func (c *Client) CleanupExpiredCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	now := c.now()
	for id, v := range c.cache {
		if v.expired(now) {
			delete(c.cache, id)
		}
	}
}

// StartCacheCleanup periodically removes expired verdicts until ctx is done.
func (c *Client) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanupExpiredCache()
			}
		}
	}()
}
