// Package logic contains the runtime decision making of the campaign engine.
//
// A campaign is eligible for a signal when every clause holds:
//   - the current time is within its start and end dates,
//   - the host API level is within its API level window,
//   - its lifetime views are below its hard cap,
//   - its soft minimum interval has elapsed since the last view,
//   - the session and time window cappings of the payload are not reached,
//   - the device is not inside quiet hours,
//   - at least one of its triggers is satisfied by the signal.
//
// Every check here is pure. Counters are read up front into a CappingState so
// that a whole selection pass sees a single consistent snapshot.
package logic

import (
	"time"

	"github.com/patrickwarner/inappserve/internal/expr"
	"github.com/patrickwarner/inappserve/internal/models"
)

// Rejection reasons reported by CheckEligibility.
const (
	ReasonNotStarted    = "not_started"
	ReasonExpired       = "expired"
	ReasonAPILevel      = "api_level"
	ReasonHardCap       = "hard_cap"
	ReasonSoftCap       = "soft_cap"
	ReasonSessionCap    = "session_cap"
	ReasonTimeWindowCap = "time_window_cap"
	ReasonQuietHours    = "quiet_hours"
	ReasonNoTrigger     = "no_trigger"
)

// Policy is the host side of admission control.
type Policy struct {
	APILevel   int
	Location   *time.Location
	Cappings   models.GlobalCappings
	QuietHours *models.QuietHours
}

// Loc returns the user's location, defaulting to the process local zone.
func (p Policy) Loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// InDateWindow reports whether now is within the campaign's validity window.
func InDateWindow(c *models.Campaign, now time.Time, loc *time.Location) (bool, string) {
	if !c.Started(now, loc) {
		return false, ReasonNotStarted
	}
	if c.Expired(now, loc) {
		return false, ReasonExpired
	}
	return true, ""
}

// InAPILevelWindow reports whether apiLevel satisfies the campaign bounds.
// A bound of 0 is open.
func InAPILevelWindow(c *models.Campaign, apiLevel int) bool {
	if c.MinAPILevel > 0 && apiLevel < c.MinAPILevel {
		return false
	}
	if c.MaxAPILevel > 0 && apiLevel > c.MaxAPILevel {
		return false
	}
	return true
}

// UnderHardCap reports whether the campaign may be viewed once more.
func UnderHardCap(c *models.Campaign, ev models.CountedEvent) bool {
	return c.HardCap <= 0 || ev.Count < int64(c.HardCap)
}

// SoftCapElapsed reports whether the minimum interval since the last view
// has passed.
func SoftCapElapsed(c *models.Campaign, ev models.CountedEvent, now time.Time) bool {
	if c.SoftMinInterval <= 0 || ev.LastOccurrence == nil {
		return true
	}
	return now.Sub(*ev.LastOccurrence) >= c.SoftMinInterval
}

// UnderSessionCap reports whether another view fits in the session limit.
func UnderSessionCap(cappings models.GlobalCappings, sessionViews int) bool {
	return cappings.SessionLimit == nil || sessionViews < *cappings.SessionLimit
}

// UnderTimeWindowCaps reports whether every time window rule still allows a view.
func UnderTimeWindowCaps(cappings models.GlobalCappings, state CappingState) bool {
	for _, rule := range cappings.TimeWindows {
		if state.WindowViews[rule.Window] >= int64(rule.ViewsAllowed) {
			return false
		}
	}
	return true
}

// InQuietHours reports whether now, read in loc, falls inside quiet hours.
func InQuietHours(q *models.QuietHours, now time.Time, loc *time.Location) bool {
	if q == nil {
		return false
	}
	return q.Active(now.In(loc))
}

// CheckEligibility evaluates every clause for c and returns the first failing
// one. When sig is nil the trigger clause is skipped, which is how manual
// display requests are evaluated. evalCtx is the context guards are reduced
// against; it is built once per signal by the caller.
func CheckEligibility(c *models.Campaign, sig *models.Signal, state CappingState, policy Policy, evalCtx expr.Context, now time.Time) (bool, string) {
	loc := policy.Loc()
	if ok, reason := InDateWindow(c, now, loc); !ok {
		return false, reason
	}
	if !InAPILevelWindow(c, policy.APILevel) {
		return false, ReasonAPILevel
	}
	ev := state.View(c.ID)
	if !UnderHardCap(c, ev) {
		return false, ReasonHardCap
	}
	if !SoftCapElapsed(c, ev, now) {
		return false, ReasonSoftCap
	}
	if !UnderSessionCap(policy.Cappings, state.SessionViews) {
		return false, ReasonSessionCap
	}
	if !UnderTimeWindowCaps(policy.Cappings, state) {
		return false, ReasonTimeWindowCap
	}
	if InQuietHours(policy.QuietHours, now, loc) {
		return false, ReasonQuietHours
	}
	if sig != nil && !AnyTriggerSatisfied(c.Triggers, *sig, evalCtx) {
		return false, ReasonNoTrigger
	}
	return true, ""
}
