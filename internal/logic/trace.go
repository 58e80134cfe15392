package logic

import "github.com/patrickwarner/inappserve/internal/models"

// TraceStep records the candidate campaigns left after a selection stage.
type TraceStep struct {
	Stage       string            `json:"stage"`
	CampaignIDs []string          `json:"campaign_ids"`
	Details     map[string]string `json:"details,omitempty"`
}

// SelectionTrace captures the ordered list of steps of a selection pass.
type SelectionTrace struct {
	Steps []TraceStep `json:"steps"`
}

// AddStep appends a trace entry for the given stage using the supplied campaigns.
func (t *SelectionTrace) AddStep(stage string, campaigns []*models.Campaign) {
	t.AddStepWithDetails(stage, campaigns, nil)
}

// AddStepWithDetails appends a trace entry with additional details, usually
// the rejection reason of each dropped campaign.
func (t *SelectionTrace) AddStepWithDetails(stage string, campaigns []*models.Campaign, details map[string]string) {
	if t == nil {
		return
	}
	step := TraceStep{Stage: stage, Details: details, CampaignIDs: make([]string, 0, len(campaigns))}
	for _, c := range campaigns {
		step.CampaignIDs = append(step.CampaignIDs, c.ID)
	}
	t.Steps = append(t.Steps, step)
}
