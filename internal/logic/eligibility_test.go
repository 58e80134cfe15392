package logic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/patrickwarner/inappserve/internal/expr"
	"github.com/patrickwarner/inappserve/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)

func testCampaign(id string, priority int) *models.Campaign {
	return &models.Campaign{
		ID:        id,
		Priority:  priority,
		StartDate: models.CampaignDate{Time: baseTime.Add(-24 * time.Hour)},
		Triggers:  []models.Trigger{{Type: models.TriggerEvent, Event: "OPEN"}},
		Output:    models.Output{Type: "LANDING"},
	}
}

func utcPolicy() Policy {
	return Policy{Location: time.UTC}
}

func eligible(t *testing.T, c *models.Campaign, state CappingState, policy Policy, now time.Time) (bool, string) {
	t.Helper()
	sig := models.NewEventSignal("open", "", nil)
	return CheckEligibility(c, &sig, state, policy, NewEventContext(sig), now)
}

func TestCheckEligibility_HardCapScenario(t *testing.T) {
	ctx := context.Background()
	tracker := models.NewInMemoryViewTracker("")
	tracker.Now = func() time.Time { return baseTime }
	c := testCampaign("c1", 0)
	c.HardCap = 1

	state := LoadCappingState(ctx, tracker, []string{"c1"}, models.GlobalCappings{}, 0, baseTime)
	ok, reason := eligible(t, c, state, utcPolicy(), baseTime)
	require.True(t, ok, reason)

	_, err := RecordView(ctx, tracker, "c1")
	require.NoError(t, err)

	state = LoadCappingState(ctx, tracker, []string{"c1"}, models.GlobalCappings{}, 1, baseTime)
	ok, reason = eligible(t, c, state, utcPolicy(), baseTime.Add(time.Hour))
	assert.False(t, ok)
	assert.Equal(t, ReasonHardCap, reason)
}

func TestCheckEligibility_SoftCapScenario(t *testing.T) {
	last := baseTime
	c := testCampaign("c1", 0)
	c.SoftMinInterval = 3600 * time.Second
	state := CappingState{Views: map[string]models.CountedEvent{
		"c1": {CampaignID: "c1", Count: 1, LastOccurrence: &last},
	}}

	ok, reason := eligible(t, c, state, utcPolicy(), baseTime.Add(1800*time.Second))
	assert.False(t, ok)
	assert.Equal(t, ReasonSoftCap, reason)

	ok, _ = eligible(t, c, state, utcPolicy(), baseTime.Add(3601*time.Second))
	assert.True(t, ok)
}

func TestCheckEligibility_QuietHoursScenario(t *testing.T) {
	c := testCampaign("c1", 0)
	policy := utcPolicy()
	policy.QuietHours = &models.QuietHours{StartHour: 22, EndHour: 6}

	night := time.Date(2024, 6, 7, 23, 30, 0, 0, time.UTC)
	ok, reason := eligible(t, c, CappingState{}, policy, night)
	assert.False(t, ok)
	assert.Equal(t, ReasonQuietHours, reason)

	morning := time.Date(2024, 6, 8, 7, 0, 0, 0, time.UTC)
	ok, _ = eligible(t, c, CappingState{}, policy, morning)
	assert.True(t, ok)
}

func TestCheckEligibility_QuietHoursUseUserLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	c := testCampaign("c1", 0)
	policy := Policy{Location: tokyo, QuietHours: &models.QuietHours{StartHour: 22, EndHour: 6}}

	// 14:30 UTC is 23:30 in Tokyo
	ok, reason := eligible(t, c, CappingState{}, policy, time.Date(2024, 6, 7, 14, 30, 0, 0, time.UTC))
	assert.False(t, ok)
	assert.Equal(t, ReasonQuietHours, reason)
}

func TestCheckEligibility_Clauses(t *testing.T) {
	end := models.CampaignDate{Time: baseTime.Add(time.Hour)}
	limit := 2

	tests := []struct {
		name     string
		mutate   func(c *models.Campaign, p *Policy, s *CappingState)
		now      time.Time
		expected string
	}{
		{"eligible", func(*models.Campaign, *Policy, *CappingState) {}, baseTime, ""},
		{"not started", func(c *models.Campaign, _ *Policy, _ *CappingState) {
			c.StartDate = models.CampaignDate{Time: baseTime.Add(time.Minute)}
		}, baseTime, ReasonNotStarted},
		{"expired", func(c *models.Campaign, _ *Policy, _ *CappingState) { c.EndDate = &end }, baseTime.Add(2 * time.Hour), ReasonExpired},
		{"api level too low", func(c *models.Campaign, p *Policy, _ *CappingState) {
			c.MinAPILevel = 30
			p.APILevel = 29
		}, baseTime, ReasonAPILevel},
		{"api level too high", func(c *models.Campaign, p *Policy, _ *CappingState) {
			c.MaxAPILevel = 30
			p.APILevel = 31
		}, baseTime, ReasonAPILevel},
		{"session cap", func(_ *models.Campaign, p *Policy, s *CappingState) {
			p.Cappings.SessionLimit = &limit
			s.SessionViews = 2
		}, baseTime, ReasonSessionCap},
		{"time window cap", func(_ *models.Campaign, p *Policy, s *CappingState) {
			p.Cappings.TimeWindows = []models.TimeWindowRule{{ViewsAllowed: 1, Window: time.Hour}}
			s.WindowViews = map[time.Duration]int64{time.Hour: 1}
		}, baseTime, ReasonTimeWindowCap},
		{"no trigger", func(c *models.Campaign, _ *Policy, _ *CappingState) {
			c.Triggers = []models.Trigger{{Type: models.TriggerEvent, Event: "PURCHASE"}}
		}, baseTime, ReasonNoTrigger},
		{"manual only campaign never fires on a signal", func(c *models.Campaign, _ *Policy, _ *CappingState) {
			c.Triggers = nil
		}, baseTime, ReasonNoTrigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCampaign("c1", 0)
			p := utcPolicy()
			s := CappingState{}
			tt.mutate(c, &p, &s)
			ok, reason := eligible(t, c, s, p, tt.now)
			assert.Equal(t, tt.expected == "", ok)
			assert.Equal(t, tt.expected, reason)
		})
	}
}

func TestCheckEligibility_ManualSkipsTriggers(t *testing.T) {
	c := testCampaign("c1", 0)
	c.Triggers = nil
	ok, reason := CheckEligibility(c, nil, CappingState{}, utcPolicy(), nil, baseTime)
	assert.True(t, ok, reason)
}

type failingTracker struct{ models.ViewTracker }

func (failingTracker) EventInfos(context.Context, []string, models.EventKind) (map[string]models.CountedEvent, error) {
	return nil, errors.New("redis down")
}

func (failingTracker) ViewEventCountSince(context.Context, time.Time) (int64, error) {
	return 0, errors.New("redis down")
}

func TestLoadCappingState_FailsOpen(t *testing.T) {
	cappings := models.GlobalCappings{TimeWindows: []models.TimeWindowRule{{ViewsAllowed: 1, Window: time.Hour}}}
	state := LoadCappingState(context.Background(), failingTracker{}, []string{"c1"}, cappings, 0, baseTime)

	assert.Equal(t, int64(0), state.View("c1").Count)
	assert.Equal(t, int64(0), state.WindowViews[time.Hour])
	assert.True(t, UnderTimeWindowCaps(cappings, state))
}

func TestLoadCappingState_WindowCounts(t *testing.T) {
	ctx := context.Background()
	now := baseTime
	tracker := models.NewInMemoryViewTracker("")
	tracker.Now = func() time.Time { return now }
	_, _ = tracker.TrackEvent(ctx, "a", models.EventKindView)
	now = now.Add(2 * time.Hour)
	_, _ = tracker.TrackEvent(ctx, "b", models.EventKindView)

	cappings := models.GlobalCappings{TimeWindows: []models.TimeWindowRule{
		{ViewsAllowed: 5, Window: time.Hour},
		{ViewsAllowed: 5, Window: 24 * time.Hour},
		{ViewsAllowed: 1, Window: time.Hour},
	}}
	state := LoadCappingState(ctx, tracker, []string{"a", "b"}, cappings, 0, now)

	assert.Equal(t, int64(1), state.WindowViews[time.Hour])
	assert.Equal(t, int64(2), state.WindowViews[24*time.Hour])
	assert.False(t, UnderTimeWindowCaps(cappings, state), "the 1-per-hour rule is reached")
}

func TestRecordView_NilTracker(t *testing.T) {
	_, err := RecordView(context.Background(), nil, "c1")
	assert.ErrorIs(t, err, ErrNilTracker)
}

func TestEligibilityIsIdempotent(t *testing.T) {
	c := testCampaign("c1", 0)
	c.Triggers[0].GuardSource = `(> e.attr.amount 10)`
	c.Triggers[0].Guard = expr.Compile(c.Triggers[0].GuardSource)
	sig := models.NewEventSignal("OPEN", "", &models.EventData{Attributes: map[string]any{"amount": 20.0}})

	for i := 0; i < 3; i++ {
		ok, reason := CheckEligibility(c, &sig, CappingState{}, utcPolicy(), EvaluationContext(sig, models.UserAttributes{}, models.DeviceInfo{}), baseTime)
		require.True(t, ok, reason)
	}
}
