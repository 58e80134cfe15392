package logic

import (
	"strings"

	"github.com/patrickwarner/inappserve/internal/expr"
	"github.com/patrickwarner/inappserve/internal/models"
)

// TriggerSatisfied reports whether t fires for sig. Event names compare
// case-insensitively and labels are compared only when both sides carry one.
// A guard must reduce to a truthy value; errors and nil never satisfy.
func TriggerSatisfied(t models.Trigger, sig models.Signal, ctx expr.Context) bool {
	switch sig.Kind() {
	case models.SignalSessionStart:
		if t.Type != models.TriggerNextSession {
			return false
		}
	case models.SignalEvent:
		if t.Type != models.TriggerEvent || !strings.EqualFold(t.Event, sig.Name()) {
			return false
		}
		if label, ok := sig.Label(); ok && t.Label != nil && *t.Label != label {
			return false
		}
	default:
		return false
	}

	if !t.HasGuard() {
		return true
	}
	if ctx == nil {
		ctx = NewEventContext(sig)
	}
	return GuardPasses(t.Guard, ctx)
}

// AnyTriggerSatisfied reports whether at least one trigger fires for sig.
func AnyTriggerSatisfied(triggers []models.Trigger, sig models.Signal, ctx expr.Context) bool {
	for _, t := range triggers {
		if TriggerSatisfied(t, sig, ctx) {
			return true
		}
	}
	return false
}

// GuardPasses reduces guard against ctx and reports whether the result is a
// truthy primitive.
func GuardPasses(guard expr.Value, ctx expr.Context) bool {
	r := guard.Reduce(ctx)
	if r.IsError() || r.IsNil() {
		return false
	}
	return r.Truthy()
}
