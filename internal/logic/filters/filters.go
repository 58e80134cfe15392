package filters

import (
	"time"

	"github.com/patrickwarner/inappserve/internal/expr"
	logic "github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/models"
)

// Every pass keeps the relative order of its input; list order is the
// tie-break of the priority selector.

// FilterByDates returns campaigns whose validity window contains now.
func FilterByDates(campaigns []*models.Campaign, now time.Time, loc *time.Location) []*models.Campaign {
	var out []*models.Campaign
	for _, c := range campaigns {
		if ok, _ := logic.InDateWindow(c, now, loc); ok {
			out = append(out, c)
		}
	}
	return out
}

// FilterByAPILevel returns campaigns whose API level window admits apiLevel.
func FilterByAPILevel(campaigns []*models.Campaign, apiLevel int) []*models.Campaign {
	var out []*models.Campaign
	for _, c := range campaigns {
		if logic.InAPILevelWindow(c, apiLevel) {
			out = append(out, c)
		}
	}
	return out
}

// FilterByHardCap removes campaigns that reached their lifetime view cap.
func FilterByHardCap(campaigns []*models.Campaign, state logic.CappingState) []*models.Campaign {
	var out []*models.Campaign
	for _, c := range campaigns {
		if logic.UnderHardCap(c, state.View(c.ID)) {
			out = append(out, c)
		}
	}
	return out
}

// FilterBySoftCap removes campaigns viewed less than their minimum interval ago.
func FilterBySoftCap(campaigns []*models.Campaign, state logic.CappingState, now time.Time) []*models.Campaign {
	var out []*models.Campaign
	for _, c := range campaigns {
		if logic.SoftCapElapsed(c, state.View(c.ID), now) {
			out = append(out, c)
		}
	}
	return out
}

// FilterByGlobalPolicy applies the clauses shared by every campaign: session
// cap, time window caps and quiet hours. When one fails every campaign is
// dropped and its reason returned.
func FilterByGlobalPolicy(campaigns []*models.Campaign, state logic.CappingState, policy logic.Policy, now time.Time) ([]*models.Campaign, string) {
	if !logic.UnderSessionCap(policy.Cappings, state.SessionViews) {
		return nil, logic.ReasonSessionCap
	}
	if !logic.UnderTimeWindowCaps(policy.Cappings, state) {
		return nil, logic.ReasonTimeWindowCap
	}
	if logic.InQuietHours(policy.QuietHours, now, policy.Loc()) {
		return nil, logic.ReasonQuietHours
	}
	return campaigns, ""
}

// FilterByTriggers returns campaigns with at least one trigger satisfied by sig.
func FilterByTriggers(campaigns []*models.Campaign, sig models.Signal, ctx expr.Context) []*models.Campaign {
	var out []*models.Campaign
	for _, c := range campaigns {
		if logic.AnyTriggerSatisfied(c.Triggers, sig, ctx) {
			out = append(out, c)
		}
	}
	return out
}

// FilterWithTrace runs every pass in order and records each stage on trace.
// A nil trace is allowed.
func FilterWithTrace(campaigns []*models.Campaign, sig models.Signal, state logic.CappingState, policy logic.Policy, ctx expr.Context, now time.Time, trace *logic.SelectionTrace) []*models.Campaign {
	trace.AddStep("loaded", campaigns)

	out := FilterByDates(campaigns, now, policy.Loc())
	trace.AddStep("dates", out)

	out = FilterByAPILevel(out, policy.APILevel)
	trace.AddStep("api_level", out)

	out = FilterByHardCap(out, state)
	trace.AddStep("hard_cap", out)

	out = FilterBySoftCap(out, state, now)
	trace.AddStep("soft_cap", out)

	out, reason := FilterByGlobalPolicy(out, state, policy, now)
	if reason != "" {
		trace.AddStepWithDetails("global_policy", out, map[string]string{"reason": reason})
		return nil
	}
	trace.AddStep("global_policy", out)

	out = FilterByTriggers(out, sig, ctx)
	trace.AddStep("triggers", out)
	return out
}
