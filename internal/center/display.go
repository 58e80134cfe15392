package center

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/analytics"
	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/macros"
	"github.com/patrickwarner/inappserve/internal/models"
)

// display hands camp to the output. Only a successful display counts as a
// view. Queue only.
func (c *Center) display(ctx context.Context, camp *models.Campaign, source string, device models.DeviceInfo, jit bool) error {
	if c.deps.Output == nil {
		c.metrics.IncrementDisplays("failure")
		c.logger.Warn("no output configured, campaign not displayed", zap.String("campaign_id", camp.ID))
		return ErrNoOutput
	}
	if err := c.deps.Output.Display(ctx, c.personalize(camp, source)); err != nil {
		c.metrics.IncrementDisplays("failure")
		c.logger.Error("campaign display failed", zap.String("campaign_id", camp.ID), zap.Error(err))
		return fmt.Errorf("display campaign %s: %w", camp.ID, err)
	}
	c.metrics.IncrementDisplays("success")

	// RecordView logs its own failures
	_, _ = logic.RecordView(ctx, c.deps.Tracker, camp.ID)
	c.sessionViews++

	c.logger.Info("campaign displayed",
		zap.String("campaign_id", camp.ID),
		zap.String("signal", source),
		zap.Bool("jit", jit))

	if c.deps.Analytics != nil {
		ev := analytics.DisplayEvent{
			Timestamp:     c.opts.Now(),
			CampaignID:    camp.ID,
			PublicToken:   camp.PublicToken,
			DevTrackingID: camp.DevTrackingID,
			CustomUserID:  c.opts.CustomUserID,
			Signal:        source,
			OutputType:    camp.Output.Type,
			JIT:           jit,
			DeviceType:    device.DeviceType,
			Country:       device.Country,
			EventData:     camp.EventData,
		}
		if err := c.deps.Analytics.RecordDisplay(ctx, ev); err != nil {
			c.logger.Warn("failed to record display event", zap.String("campaign_id", camp.ID), zap.Error(err))
		}
	}
	return nil
}

// personalize returns camp with the macros of its output payload expanded.
// The loaded campaign itself is never modified.
func (c *Center) personalize(camp *models.Campaign, source string) *models.Campaign {
	if c.deps.Macros == nil || len(camp.Output.Payload) == 0 {
		return camp
	}
	mctx := &macros.ExpansionContext{
		DisplayID:     uuid.NewString(),
		Timestamp:     c.opts.Now(),
		CampaignID:    camp.ID,
		PublicToken:   camp.PublicToken,
		DevTrackingID: camp.DevTrackingID,
		CustomUserID:  c.opts.CustomUserID,
		Signal:        source,
		Custom:        customValues(camp.CustomPayload),
	}
	expanded, err := c.deps.Macros.ExpandPayload(camp.Output.Payload, mctx)
	if err != nil {
		c.logger.Warn("output payload macros not expanded", zap.String("campaign_id", camp.ID), zap.Error(err))
		return camp
	}
	shown := *camp
	shown.Output.Payload = expanded
	return &shown
}

// customValues exposes the scalar entries of a custom payload as
// {CUSTOM.key} macros.
func customValues(custom map[string]any) map[string]string {
	if len(custom) == 0 {
		return nil
	}
	out := make(map[string]string, len(custom))
	for k, v := range custom {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		}
	}
	return out
}

// DisplayCampaign shows the campaign with id right away, bypassing triggers
// and JIT. Dates, API level and cappings still apply.
func (c *Center) DisplayCampaign(ctx context.Context, id string, device models.DeviceInfo) error {
	return c.do(ctx, func(qctx context.Context) error {
		device = c.resolveDevice(device)
		now := c.opts.Now()
		policy := c.manager.Policy(device.APILevel, c.opts.Location)
		state := logic.LoadCappingState(qctx, c.deps.Tracker, []string{id}, policy.Cappings, c.sessionViews, now)

		var trace *logic.SelectionTrace
		if c.opts.DebugTrace {
			trace = &logic.SelectionTrace{}
			defer c.lastTrace.Store(trace)
		}
		camp, err := c.manager.CampaignForManualDisplay(id, state, policy, now, trace)
		if err != nil {
			c.metrics.IncrementSelections("manual_rejected")
			return err
		}
		c.metrics.IncrementSelections("manual")
		return c.display(qctx, camp, "manual", device, false)
	})
}
