package logic

import (
	"context"
	"time"

	"github.com/patrickwarner/inappserve/internal/models"

	"go.uber.org/zap"
)

// CappingState is a snapshot of the counters admission control reads.
type CappingState struct {
	// Views holds the view record of each campaign under consideration.
	Views map[string]models.CountedEvent
	// SessionViews is the number of displays in the current session.
	SessionViews int
	// WindowViews maps each time window rule to the views within it.
	WindowViews map[time.Duration]int64
}

// View returns the view record for campaignID, zero when unknown.
func (s CappingState) View(campaignID string) models.CountedEvent {
	if ev, ok := s.Views[campaignID]; ok {
		return ev
	}
	return models.CountedEvent{CampaignID: campaignID, Kind: models.EventKindView}
}

// LoadCappingState reads the counters needed to evaluate campaignIDs against
// cappings with one batched EventInfos call and one ViewEventCountSince call
// per distinct window. Tracker failures are logged and treated as zero counts.
func LoadCappingState(ctx context.Context, tracker models.ViewTracker, campaignIDs []string, cappings models.GlobalCappings, sessionViews int, now time.Time) CappingState {
	state := CappingState{
		Views:        make(map[string]models.CountedEvent, len(campaignIDs)),
		SessionViews: sessionViews,
		WindowViews:  make(map[time.Duration]int64, len(cappings.TimeWindows)),
	}
	if tracker == nil {
		return state
	}

	if len(campaignIDs) > 0 {
		views, err := tracker.EventInfos(ctx, campaignIDs, models.EventKindView)
		if err != nil {
			// Fail open, a broken tracker must not block every campaign
			zap.L().Warn("view tracker read failed", zap.Error(err), zap.Int("campaigns", len(campaignIDs)))
		} else {
			state.Views = views
		}
	}

	for _, rule := range cappings.TimeWindows {
		if _, done := state.WindowViews[rule.Window]; done {
			continue
		}
		n, err := tracker.ViewEventCountSince(ctx, now.Add(-rule.Window))
		if err != nil {
			zap.L().Warn("view window count failed", zap.Error(err), zap.Duration("window", rule.Window))
			n = 0
		}
		state.WindowViews[rule.Window] = n
	}
	return state
}

// RecordView increments the view counter of campaignID. It should be called
// after a campaign was actually displayed, never during filtering.
func RecordView(ctx context.Context, tracker models.ViewTracker, campaignID string) (*models.CountedEvent, error) {
	if tracker == nil {
		return nil, ErrNilTracker
	}
	ev, err := tracker.TrackEvent(ctx, campaignID, models.EventKindView)
	if err != nil {
		zap.L().Error("failed to record campaign view", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, err
	}
	return ev, nil
}
