// Package campaigns owns the current campaign list and answers which of them
// should be displayed for a signal.
package campaigns

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/logic/filters"
	"github.com/patrickwarner/inappserve/internal/logic/selectors"
	"github.com/patrickwarner/inappserve/internal/models"
	"github.com/patrickwarner/inappserve/internal/payload"
)

// snapshot is an immutable view of one loaded payload.
type snapshot struct {
	campaigns    []*models.Campaign
	index        map[string]*models.Campaign
	watched      map[string]struct{} // normalized event names
	watchSession bool
	cappings     models.GlobalCappings
	quietHours   *models.QuietHours
}

func emptySnapshot() *snapshot {
	return &snapshot{
		index:   make(map[string]*models.Campaign),
		watched: make(map[string]struct{}),
	}
}

// Manager holds the campaign list. Replace swaps the whole list atomically so
// readers outside the center's queue, such as the event pre-filter, always
// see a consistent snapshot.
type Manager struct {
	data     atomic.Pointer[snapshot]
	selector selectors.Selector
}

// NewManager returns an empty manager ranking with the priority selector.
func NewManager() *Manager {
	return NewManagerWithSelector(selectors.PrioritySelector{})
}

// NewManagerWithSelector returns an empty manager ranking with s.
func NewManagerWithSelector(s selectors.Selector) *Manager {
	m := &Manager{selector: s}
	m.data.Store(emptySnapshot())
	return m
}

// Replace installs set as the current list and rebuilds the watched-event
// index. An empty set clears the list.
func (m *Manager) Replace(set payload.CampaignSet) {
	next := emptySnapshot()
	next.campaigns = make([]*models.Campaign, 0, len(set.Campaigns))
	next.cappings = set.Cappings
	next.quietHours = set.QuietHours
	for _, c := range set.Campaigns {
		if _, dup := next.index[c.ID]; dup {
			continue
		}
		next.campaigns = append(next.campaigns, c)
		next.index[c.ID] = c
		for _, t := range c.Triggers {
			switch t.Type {
			case models.TriggerEvent:
				next.watched[t.Event] = struct{}{}
			case models.TriggerNextSession:
				next.watchSession = true
			}
		}
	}
	m.data.Store(next)
}

// Campaigns returns the current list in payload order.
func (m *Manager) Campaigns() []*models.Campaign {
	data := m.data.Load()
	out := make([]*models.Campaign, len(data.campaigns))
	copy(out, data.campaigns)
	return out
}

// Campaign returns the campaign with id, or nil.
func (m *Manager) Campaign(id string) *models.Campaign {
	return m.data.Load().index[id]
}

// Len returns the number of loaded campaigns.
func (m *Manager) Len() int {
	return len(m.data.Load().campaigns)
}

// IDs returns the ids of the loaded campaigns.
func (m *Manager) IDs() []string {
	data := m.data.Load()
	ids := make([]string, len(data.campaigns))
	for i, c := range data.campaigns {
		ids[i] = c.ID
	}
	return ids
}

// IsEventWatched reports whether any campaign has an EVENT trigger for name.
func (m *Manager) IsEventWatched(name string) bool {
	_, ok := m.data.Load().watched[models.NormalizeEventName(name)]
	return ok
}

// WatchesSessionStart reports whether any campaign has a NEXT_SESSION trigger.
func (m *Manager) WatchesSessionStart() bool {
	return m.data.Load().watchSession
}

func (m *Manager) Cappings() models.GlobalCappings {
	return m.data.Load().cappings
}

func (m *Manager) QuietHours() *models.QuietHours {
	return m.data.Load().quietHours
}

// Policy returns the admission policy of the current payload for a device
// at apiLevel whose user lives in loc.
func (m *Manager) Policy(apiLevel int, loc *time.Location) logic.Policy {
	data := m.data.Load()
	return logic.Policy{
		APILevel:   apiLevel,
		Location:   loc,
		Cappings:   data.cappings,
		QuietHours: data.quietHours,
	}
}

// EligibleCampaigns returns every campaign that sig makes eligible, ranked
// best first. It performs no I/O: counts come from state.
func (m *Manager) EligibleCampaigns(sig models.Signal, state logic.CappingState, policy logic.Policy, device models.DeviceInfo, attrs models.UserAttributes, now time.Time, trace *logic.SelectionTrace) []*models.Campaign {
	data := m.data.Load()
	if len(data.campaigns) == 0 {
		return nil
	}
	evalCtx := logic.EvaluationContext(sig, attrs, device)

	var eligible []*models.Campaign
	if trace != nil {
		eligible = filters.FilterWithTrace(data.campaigns, sig, state, policy, evalCtx, now, trace)
	} else {
		eligible = filters.NewSinglePassFilter(policy).FilterCampaigns(data.campaigns, &sig, state, evalCtx, now)
	}
	if len(eligible) == 0 {
		return nil
	}
	return selectors.SelectWithTrace(m.selector, eligible, trace)
}

// CampaignToDisplay returns the winner for sig, or nil.
func (m *Manager) CampaignToDisplay(sig models.Signal, state logic.CappingState, policy logic.Policy, device models.DeviceInfo, attrs models.UserAttributes, now time.Time, trace *logic.SelectionTrace) *models.Campaign {
	return selectors.Winner(m.EligibleCampaigns(sig, state, policy, device, attrs, now, trace))
}

// CampaignForManualDisplay checks every clause except triggers for the
// campaign with id. The check is recorded on trace, which may be nil.
func (m *Manager) CampaignForManualDisplay(id string, state logic.CappingState, policy logic.Policy, now time.Time, trace *logic.SelectionTrace) (*models.Campaign, error) {
	c := m.Campaign(id)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCampaign, id)
	}
	if trace == nil {
		trace = &logic.SelectionTrace{}
	}
	kept := filters.NewSinglePassFilter(policy).FilterCampaignsWithTrace([]*models.Campaign{c}, nil, state, nil, now, trace)
	if len(kept) == 0 {
		last := trace.Steps[len(trace.Steps)-1]
		return nil, fmt.Errorf("%w: %s", ErrNotEligible, last.Details["rejected:"+c.ID])
	}
	return c, nil
}
