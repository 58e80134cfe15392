package campaigns

import (
	"errors"
	"testing"
	"time"

	"github.com/patrickwarner/inappserve/internal/expr"
	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/models"
	"github.com/patrickwarner/inappserve/internal/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)

func campaign(id string, priority int, events ...string) *models.Campaign {
	c := &models.Campaign{
		ID:        id,
		Priority:  priority,
		StartDate: models.CampaignDate{Time: now.Add(-time.Hour)},
		Output:    models.Output{Type: "LANDING"},
	}
	for _, e := range events {
		c.Triggers = append(c.Triggers, models.Trigger{Type: models.TriggerEvent, Event: models.NormalizeEventName(e)})
	}
	return c
}

func load(m *Manager, cs ...*models.Campaign) {
	m.Replace(payload.CampaignSet{Campaigns: cs})
}

func ids(cs []*models.Campaign) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestManager_PriorityScenario(t *testing.T) {
	m := NewManager()
	load(m, campaign("low", 10, "open"), campaign("high", 20, "open"))

	sig := models.NewEventSignal("open", "", nil)
	winner := m.CampaignToDisplay(sig, logic.CappingState{}, m.Policy(0, time.UTC), models.DeviceInfo{}, models.UserAttributes{}, now, nil)
	require.NotNil(t, winner)
	assert.Equal(t, "high", winner.ID)
}

func TestManager_TiesKeepPayloadOrder(t *testing.T) {
	m := NewManager()
	load(m, campaign("a", 5, "open"), campaign("b", 7, "open"), campaign("c", 5, "open"), campaign("d", 7, "open"))

	sig := models.NewEventSignal("OPEN", "", nil)
	for i := 0; i < 5; i++ {
		ranked := m.EligibleCampaigns(sig, logic.CappingState{}, m.Policy(0, time.UTC), models.DeviceInfo{}, models.UserAttributes{}, now, nil)
		assert.Equal(t, []string{"b", "d", "a", "c"}, ids(ranked))
	}
}

func TestManager_SelectedCampaignSatisfiesEveryClause(t *testing.T) {
	m := NewManager()
	capped := campaign("capped", 50, "open")
	capped.HardCap = 1
	late := campaign("late", 40, "open")
	late.StartDate = models.CampaignDate{Time: now.Add(time.Hour)}
	ok := campaign("ok", 1, "open")
	load(m, capped, late, ok)

	last := now.Add(-time.Minute)
	state := logic.CappingState{Views: map[string]models.CountedEvent{"capped": {CampaignID: "capped", Count: 1, LastOccurrence: &last}}}
	sig := models.NewEventSignal("open", "", nil)
	policy := m.Policy(0, time.UTC)

	winner := m.CampaignToDisplay(sig, state, policy, models.DeviceInfo{}, models.UserAttributes{}, now, nil)
	require.NotNil(t, winner)
	assert.Equal(t, "ok", winner.ID)

	eligible, reason := logic.CheckEligibility(winner, &sig, state, policy, logic.NewEventContext(sig), now)
	assert.True(t, eligible, reason)
}

func TestManager_TraceMatchesUntracedResult(t *testing.T) {
	m := NewManager()
	load(m, campaign("a", 1, "open"), campaign("b", 3, "open"), campaign("c", 9, "close"))
	sig := models.NewEventSignal("open", "", nil)
	policy := m.Policy(0, time.UTC)

	trace := &logic.SelectionTrace{}
	traced := m.EligibleCampaigns(sig, logic.CappingState{}, policy, models.DeviceInfo{}, models.UserAttributes{}, now, trace)
	plain := m.EligibleCampaigns(sig, logic.CappingState{}, policy, models.DeviceInfo{}, models.UserAttributes{}, now, nil)

	assert.Equal(t, ids(plain), ids(traced))
	require.NotEmpty(t, trace.Steps)
	assert.Equal(t, "ranked", trace.Steps[len(trace.Steps)-1].Stage)
	assert.Equal(t, []string{"b", "a"}, trace.Steps[len(trace.Steps)-1].CampaignIDs)
}

func TestManager_WatchedIndex(t *testing.T) {
	m := NewManager()
	assert.False(t, m.IsEventWatched("open"))
	assert.False(t, m.WatchesSessionStart())

	session := campaign("s", 0)
	session.Triggers = []models.Trigger{{Type: models.TriggerNextSession}}
	load(m, campaign("a", 0, "Open", "purchase"), session)

	assert.True(t, m.IsEventWatched("open"))
	assert.True(t, m.IsEventWatched(" PURCHASE "))
	assert.False(t, m.IsEventWatched("close"))
	assert.True(t, m.WatchesSessionStart())

	// a reload rebuilds the index from scratch
	load(m, campaign("b", 0, "close"))
	assert.False(t, m.IsEventWatched("open"))
	assert.True(t, m.IsEventWatched("close"))
	assert.False(t, m.WatchesSessionStart())
}

func TestManager_ReplaceIsWholesale(t *testing.T) {
	m := NewManager()
	limit := 3
	m.Replace(payload.CampaignSet{
		Campaigns:  []*models.Campaign{campaign("a", 0, "open"), campaign("b", 0, "open")},
		Cappings:   models.GlobalCappings{SessionLimit: &limit},
		QuietHours: &models.QuietHours{StartHour: 22, EndHour: 6},
	})
	assert.Equal(t, []string{"a", "b"}, m.IDs())
	assert.Equal(t, 2, m.Len())
	require.NotNil(t, m.Cappings().SessionLimit)
	assert.NotNil(t, m.QuietHours())
	assert.NotNil(t, m.Campaign("a"))

	m.Replace(payload.CampaignSet{})
	assert.Empty(t, m.Campaigns())
	assert.Nil(t, m.Campaign("a"))
	assert.Nil(t, m.Cappings().SessionLimit)
	assert.Nil(t, m.QuietHours())

	sig := models.NewEventSignal("open", "", nil)
	assert.Nil(t, m.CampaignToDisplay(sig, logic.CappingState{}, m.Policy(0, time.UTC), models.DeviceInfo{}, models.UserAttributes{}, now, nil))
}

func TestManager_CampaignsReturnsCopy(t *testing.T) {
	m := NewManager()
	load(m, campaign("a", 0, "open"))
	list := m.Campaigns()
	list[0] = nil
	assert.NotNil(t, m.Campaigns()[0])
}

func TestManager_ManualDisplay(t *testing.T) {
	m := NewManager()
	manual := campaign("manual", 0)
	capped := campaign("capped", 0)
	capped.HardCap = 1
	load(m, manual, capped)

	state := logic.CappingState{Views: map[string]models.CountedEvent{"capped": {CampaignID: "capped", Count: 1}}}
	policy := m.Policy(0, time.UTC)

	c, err := m.CampaignForManualDisplay("manual", state, policy, now, nil)
	require.NoError(t, err)
	assert.Equal(t, "manual", c.ID)

	trace := &logic.SelectionTrace{}
	_, err = m.CampaignForManualDisplay("capped", state, policy, now, trace)
	assert.True(t, errors.Is(err, ErrNotEligible))
	assert.Contains(t, err.Error(), logic.ReasonHardCap)
	require.NotEmpty(t, trace.Steps)
	last := trace.Steps[len(trace.Steps)-1]
	assert.Equal(t, "single_pass_complete", last.Stage)
	assert.Empty(t, last.CampaignIDs)
	assert.Equal(t, logic.ReasonHardCap, last.Details["rejected:capped"])

	_, err = m.CampaignForManualDisplay("missing", state, policy, now, nil)
	assert.True(t, errors.Is(err, ErrUnknownCampaign))
}

func TestManager_GuardsSeeDeviceAndAttributes(t *testing.T) {
	m := NewManager()
	c := campaign("android", 0)
	c.Triggers = []models.Trigger{{
		Type:        models.TriggerEvent,
		Event:       "OPEN",
		GuardSource: `(and (= d.os "Android") (= c.plan "pro"))`,
	}}
	c.Triggers[0].Guard = expr.Compile(c.Triggers[0].GuardSource)
	load(m, c)

	sig := models.NewEventSignal("open", "", nil)
	attrs := models.UserAttributes{Attributes: map[string]any{"plan": "pro"}}
	policy := m.Policy(0, time.UTC)

	assert.NotNil(t, m.CampaignToDisplay(sig, logic.CappingState{}, policy, models.DeviceInfo{OS: "Android"}, attrs, now, nil))
	assert.Nil(t, m.CampaignToDisplay(sig, logic.CappingState{}, policy, models.DeviceInfo{OS: "iOS"}, attrs, now, nil))
}
