package center

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/db"
	"github.com/patrickwarner/inappserve/internal/payload"
	"github.com/patrickwarner/inappserve/internal/remote"
)

// LoadPayload parses raw and replaces the campaign list with it. When
// persist is set, the persistable campaigns are written to the cache slot.
// A document that does not parse leaves the current list untouched.
func (c *Center) LoadPayload(ctx context.Context, raw []byte, persist bool) (payload.ParseReport, error) {
	var report payload.ParseReport
	err := c.do(ctx, func(qctx context.Context) error {
		var err error
		report, err = c.applyPayload(qctx, raw, persist)
		return err
	})
	return report, err
}

// Refresh downloads the payload from the campaign server and installs it.
func (c *Center) Refresh(ctx context.Context) (payload.ParseReport, error) {
	if c.deps.Remote == nil {
		return payload.ParseReport{}, ErrNoRemote
	}
	raw, err := c.deps.Remote.FetchCampaigns(ctx)
	if err != nil {
		if _, ok := remote.RetryAfter(err); ok {
			c.metrics.IncrementRefreshes("retry_after")
		} else {
			c.metrics.IncrementRefreshes("failure")
		}
		return payload.ParseReport{}, fmt.Errorf("fetch campaigns: %w", err)
	}

	report, err := c.LoadPayload(ctx, raw, true)
	if err != nil {
		if errors.Is(err, payload.ErrInvalidPayload) {
			c.metrics.IncrementRefreshes("invalid")
		} else {
			c.metrics.IncrementRefreshes("failure")
		}
		return report, err
	}
	c.metrics.IncrementRefreshes("success")
	return report, nil
}

// applyPayload installs raw. Queue only.
func (c *Center) applyPayload(ctx context.Context, raw []byte, persist bool) (payload.ParseReport, error) {
	set, report, err := payload.Parse(raw)
	if err != nil {
		c.logger.Warn("rejecting campaign payload", zap.Error(err))
		return report, err
	}

	c.manager.Replace(set)
	c.metrics.SetCampaignsLoaded(len(set.Campaigns))
	c.metrics.AddDroppedRecords(len(report.Dropped))
	c.logger.Info("campaign payload loaded",
		zap.Int("campaigns", len(set.Campaigns)),
		zap.Int("dropped", len(report.Dropped)),
		zap.Bool("persist", persist))

	if persist && c.deps.Cache != nil {
		encoded, err := payload.EncodePersistable(set)
		if err != nil {
			c.logger.Warn("failed to encode persistable campaigns", zap.Error(err))
		} else if err := c.deps.Cache.Store(ctx, encoded); err != nil {
			c.logger.Warn("failed to store campaign payload cache", zap.Error(err))
		}
	}

	c.notifyLoaded(c.manager.Campaigns())
	return report, nil
}

// loadCache installs the cached payload without writing it back. Queue only.
func (c *Center) loadCache(ctx context.Context) {
	if c.deps.Cache == nil {
		return
	}
	raw, err := c.deps.Cache.Load(ctx)
	if err != nil {
		if errors.Is(err, db.ErrCacheMiss) {
			c.logger.Debug("no cached campaign payload")
		} else {
			c.logger.Warn("failed to load cached campaign payload", zap.Error(err))
		}
		return
	}
	if _, err := c.applyPayload(ctx, raw, false); err != nil {
		c.logger.Warn("ignoring unreadable cached campaign payload", zap.Error(err))
	}
}
