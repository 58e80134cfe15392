package filters

import (
	"fmt"
	"testing"
	"time"

	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/models"

	"github.com/stretchr/testify/assert"
)

// TestSinglePassVsMultiPassEquivalence checks that both filter strategies
// agree on a mixed set of campaigns.
func TestSinglePassVsMultiPassEquivalence(t *testing.T) {
	last := now.Add(-30 * time.Minute)
	future := models.CampaignDate{Time: now.Add(time.Hour)}

	var in []*models.Campaign
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("c%02d", i)
		c := campaign(id)
		switch i % 5 {
		case 1:
			c.HardCap = 1
		case 2:
			c.SoftMinInterval = time.Hour
		case 3:
			c.StartDate = future
		case 4:
			c.Triggers[0].Event = "PURCHASE"
		}
		in = append(in, c)
	}
	views := make(map[string]models.CountedEvent)
	for _, c := range in {
		views[c.ID] = models.CountedEvent{CampaignID: c.ID, Count: 1, LastOccurrence: &last}
	}
	state := logic.CappingState{Views: views}
	policy := logic.Policy{Location: time.UTC}
	sig := models.NewEventSignal("OPEN", "", nil)
	ctx := logic.NewEventContext(sig)

	multi := FilterWithTrace(in, sig, state, policy, ctx, now, nil)
	single := NewSinglePassFilter(policy).FilterCampaigns(in, &sig, state, ctx, now)

	assert.Equal(t, ids(multi), ids(single))
	assert.Len(t, single, 4)
}

func TestSinglePassTracing(t *testing.T) {
	in := []*models.Campaign{
		campaign("ok"),
		campaign("capped", func(c *models.Campaign) { c.HardCap = 1 }),
		campaign("wrong-event", func(c *models.Campaign) { c.Triggers[0].Event = "PURCHASE" }),
	}
	state := logic.CappingState{Views: map[string]models.CountedEvent{"capped": {CampaignID: "capped", Count: 1}}}
	sig := models.NewEventSignal("OPEN", "", nil)
	trace := &logic.SelectionTrace{}

	out := NewSinglePassFilter(logic.Policy{Location: time.UTC}).FilterCampaignsWithTrace(in, &sig, state, nil, now, trace)

	assert.Equal(t, []string{"ok"}, ids(out))
	assert.Len(t, trace.Steps, 2, "Should have start and complete steps")
	assert.Equal(t, "single_pass_start", trace.Steps[0].Stage)
	assert.Equal(t, "single_pass_complete", trace.Steps[1].Stage)
	assert.Equal(t, logic.ReasonHardCap, trace.Steps[1].Details["rejected:capped"])
	assert.Equal(t, logic.ReasonNoTrigger, trace.Steps[1].Details["rejected:wrong-event"])
}

func TestSinglePassManualSkipsTriggers(t *testing.T) {
	in := []*models.Campaign{campaign("manual", func(c *models.Campaign) { c.Triggers = nil })}
	out := NewSinglePassFilter(logic.Policy{Location: time.UTC}).FilterCampaigns(in, nil, logic.CappingState{}, nil, now)
	assert.Len(t, out, 1)
}
