package center

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/models"
	"github.com/patrickwarner/inappserve/internal/remote"
)

// TrackEvent feeds a tracked application event to the engine. It returns
// false when no campaign watches name, in which case nothing is queued. The
// selection itself runs asynchronously; use Flush to wait for it.
func (c *Center) TrackEvent(name, label string, data *models.EventData, device models.DeviceInfo) (bool, error) {
	if !c.trackingAllowed() {
		return false, ErrTrackingDisabled
	}
	if c.State() == StateUninitialized {
		return false, ErrNotStarted
	}
	c.metrics.IncrementSignals(string(models.SignalEvent))
	if !c.manager.IsEventWatched(name) {
		c.metrics.IncrementSignalsSkipped("not_watched")
		return false, nil
	}

	sig := models.NewEventSignal(name, label, data)
	if err := c.submit(func(ctx context.Context) { c.handleSignal(ctx, sig, device) }); err != nil {
		return false, err
	}
	return true, nil
}

// StartSession resets the session view counter and evaluates the
// NEXT_SESSION triggers.
func (c *Center) StartSession(device models.DeviceInfo) error {
	if c.State() == StateUninitialized {
		return ErrNotStarted
	}
	c.metrics.IncrementSignals(string(models.SignalSessionStart))
	return c.submit(func(ctx context.Context) {
		c.sessionViews = 0
		if !c.manager.WatchesSessionStart() {
			c.metrics.IncrementSignalsSkipped("not_watched")
			return
		}
		if !c.trackingAllowed() {
			c.metrics.IncrementSignalsSkipped("tracking_disabled")
			return
		}
		c.handleSignal(ctx, models.NewSessionStartSignal(), device)
	})
}

// handleSignal runs one selection pass. Queue only.
func (c *Center) handleSignal(ctx context.Context, sig models.Signal, device models.DeviceInfo) {
	if c.jitInFlight {
		c.metrics.IncrementSignalsSkipped("jit_in_flight")
		c.logger.Debug("signal skipped while a JIT request is pending", zap.String("signal", sig.Name()))
		return
	}

	ctx, span := c.tracer.Start(ctx, "center.select")
	defer span.End()
	span.SetAttributes(
		attribute.String("signal.kind", string(sig.Kind())),
		attribute.String("signal.name", sig.Name()),
	)

	start := time.Now()
	source := signalSource(sig)
	device = c.resolveDevice(device)
	now := c.opts.Now()
	attrs := c.userAttributes(ctx)
	policy := c.manager.Policy(device.APILevel, c.opts.Location)
	state := logic.LoadCappingState(ctx, c.deps.Tracker, c.manager.IDs(), policy.Cappings, c.sessionViews, now)

	var trace *logic.SelectionTrace
	if c.opts.DebugTrace {
		trace = &logic.SelectionTrace{}
	}
	ranked := c.manager.EligibleCampaigns(sig, state, policy, device, attrs, now, trace)
	c.metrics.RecordSelectionDuration(time.Since(start))
	if trace != nil {
		c.lastTrace.Store(trace)
	}
	span.SetAttributes(attribute.Int("campaigns.eligible", len(ranked)))

	if len(ranked) == 0 {
		c.metrics.IncrementSelections("none")
		return
	}
	if !ranked[0].RequiresJIT {
		c.metrics.IncrementSelections("local")
		_ = c.display(ctx, ranked[0], source, device, false)
		return
	}
	c.startJIT(ctx, ranked, state, source, device)
}

// splitJIT returns the leading run of JIT campaigns and the first non-JIT
// campaign ranked after them.
func splitJIT(ranked []*models.Campaign) ([]*models.Campaign, *models.Campaign) {
	i := 0
	for i < len(ranked) && ranked[i].RequiresJIT {
		i++
	}
	var fallback *models.Campaign
	if i < len(ranked) {
		fallback = ranked[i]
	}
	return ranked[:i], fallback
}

func (c *Center) startJIT(ctx context.Context, ranked []*models.Campaign, state logic.CappingState, source string, device models.DeviceInfo) {
	candidates, fallback := splitJIT(ranked)
	now := c.opts.Now()

	if now.Before(c.jitBlockedUntil) {
		c.metrics.IncrementJITRequests("cooldown")
		c.logger.Debug("JIT cooldown active", zap.Time("until", c.jitBlockedUntil))
		c.jitFallback(ctx, candidates, fallback, source, device)
		return
	}
	if c.deps.Remote == nil {
		c.logger.Warn("JIT campaign selected but no campaign server is configured")
		c.jitFallback(ctx, candidates, fallback, source, device)
		return
	}

	req := remote.JITRequest{
		RequestID: uuid.NewString(),
		Campaigns: make([]remote.JITCampaign, 0, len(candidates)),
	}
	for _, cand := range candidates {
		req.Campaigns = append(req.Campaigns, remote.JITCampaign{
			CampaignID: cand.ID,
			Views:      state.View(cand.ID).Count,
		})
	}

	c.jitInFlight = true
	c.jitOutstanding.Add(1)
	go func() {
		defer c.jitOutstanding.Add(-1)

		jctx := context.Background()
		if c.opts.JITTimeout > 0 {
			var cancel context.CancelFunc
			jctx, cancel = context.WithTimeout(jctx, c.opts.JITTimeout)
			defer cancel()
		}
		resp, err := c.deps.Remote.CheckEligibility(jctx, req)

		if serr := c.submit(func(qctx context.Context) {
			c.completeJIT(qctx, req.RequestID, candidates, fallback, source, device, resp, err)
		}); serr != nil {
			c.logger.Debug("dropping JIT answer", zap.String("request_id", req.RequestID), zap.Error(serr))
		}
	}()
}

// completeJIT applies a JIT answer. Queue only.
func (c *Center) completeJIT(ctx context.Context, requestID string, candidates []*models.Campaign, fallback *models.Campaign, source string, device models.DeviceInfo, resp remote.JITResponse, err error) {
	c.jitInFlight = false

	if err != nil {
		if delay, ok := remote.RetryAfter(err); ok {
			c.jitBlockedUntil = c.opts.Now().Add(delay)
			c.logger.Warn("campaign server asked to retry later",
				zap.String("request_id", requestID), zap.Duration("retry_after", delay))
		} else if !errors.Is(err, remote.ErrThrottled) {
			c.logger.Warn("JIT request failed", zap.String("request_id", requestID), zap.Error(err))
		}
		c.jitFallback(ctx, candidates, fallback, source, device)
		return
	}

	for _, cand := range candidates {
		if !resp.Eligible(cand.ID) || !c.admissible(ctx, cand, device) {
			continue
		}
		c.metrics.IncrementSelections("jit")
		_ = c.display(ctx, cand, source, device, true)
		return
	}

	if fallback != nil && c.admissible(ctx, fallback, device) {
		c.metrics.IncrementSelections("jit_fallback")
		_ = c.display(ctx, fallback, source, device, false)
		return
	}
	c.metrics.IncrementSelections("jit_rejected")
}

// jitFallback handles a JIT pass the server could not answer.
func (c *Center) jitFallback(ctx context.Context, candidates []*models.Campaign, fallback *models.Campaign, source string, device models.DeviceInfo) {
	if c.opts.JITFallback == FallbackDisplay && len(candidates) > 0 {
		top := candidates[0]
		if c.admissible(ctx, top, device) {
			c.metrics.IncrementSelections("jit_fail_open")
			_ = c.display(ctx, top, source, device, true)
			return
		}
	}
	if fallback != nil && c.admissible(ctx, fallback, device) {
		c.metrics.IncrementSelections("jit_fallback")
		_ = c.display(ctx, fallback, source, device, false)
		return
	}
	c.metrics.IncrementSelections("jit_skipped")
}

// admissible re-checks camp right before a deferred display. Other displays
// may have run since the campaign was ranked, and the payload may have been
// replaced. Triggers are not evaluated again. Queue only.
func (c *Center) admissible(ctx context.Context, camp *models.Campaign, device models.DeviceInfo) bool {
	if c.manager.Campaign(camp.ID) != camp {
		return false
	}
	now := c.opts.Now()
	policy := c.manager.Policy(device.APILevel, c.opts.Location)
	state := logic.LoadCappingState(ctx, c.deps.Tracker, []string{camp.ID}, policy.Cappings, c.sessionViews, now)
	if ok, reason := logic.CheckEligibility(camp, nil, state, policy, nil, now); !ok {
		c.logger.Debug("deferred campaign no longer eligible",
			zap.String("campaign_id", camp.ID), zap.String("reason", reason))
		return false
	}
	return true
}

// signalSource names a signal in analytics events.
func signalSource(sig models.Signal) string {
	if sig.Kind() == models.SignalSessionStart {
		return string(models.SignalSessionStart)
	}
	return sig.Name()
}
