package filters

import (
	"fmt"
	"time"

	"github.com/patrickwarner/inappserve/internal/expr"
	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/models"
)

// SinglePassFilter evaluates every eligibility clause per campaign in one
// loop. It yields the same result as FilterWithTrace and additionally knows
// why each campaign was rejected.
type SinglePassFilter struct {
	policy logic.Policy
}

// NewSinglePassFilter creates a filter bound to policy.
func NewSinglePassFilter(policy logic.Policy) *SinglePassFilter {
	return &SinglePassFilter{policy: policy}
}

// FilterCampaigns returns the eligible campaigns in input order. A nil sig
// skips the trigger clause.
func (spf *SinglePassFilter) FilterCampaigns(campaigns []*models.Campaign, sig *models.Signal, state logic.CappingState, ctx expr.Context, now time.Time) []*models.Campaign {
	out, _ := spf.filter(campaigns, sig, state, ctx, now)
	return out
}

func (spf *SinglePassFilter) filter(campaigns []*models.Campaign, sig *models.Signal, state logic.CappingState, ctx expr.Context, now time.Time) ([]*models.Campaign, map[string]string) {
	if len(campaigns) == 0 {
		return nil, nil
	}
	filtered := make([]*models.Campaign, 0, len(campaigns))
	rejected := make(map[string]string)
	for _, c := range campaigns {
		ok, reason := logic.CheckEligibility(c, sig, state, spf.policy, ctx, now)
		if !ok {
			rejected[c.ID] = reason
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered, rejected
}

// FilterCampaignsWithTrace performs single-pass filtering and records the
// rejection reason of every dropped campaign on trace.
func (spf *SinglePassFilter) FilterCampaignsWithTrace(campaigns []*models.Campaign, sig *models.Signal, state logic.CappingState, ctx expr.Context, now time.Time, trace *logic.SelectionTrace) []*models.Campaign {
	trace.AddStep("single_pass_start", campaigns)

	filtered, rejected := spf.filter(campaigns, sig, state, ctx, now)

	if trace != nil {
		details := make(map[string]string, len(rejected)+2)
		details["input_count"] = fmt.Sprintf("%d", len(campaigns))
		details["output_count"] = fmt.Sprintf("%d", len(filtered))
		for id, reason := range rejected {
			details["rejected:"+id] = reason
		}
		trace.AddStepWithDetails("single_pass_complete", filtered, details)
	}
	return filtered
}
