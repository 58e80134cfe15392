package logic

import (
	"testing"

	"github.com/patrickwarner/inappserve/internal/expr"
	"github.com/patrickwarner/inappserve/internal/models"
)

func strPtr(s string) *string { return &s }

func guarded(event, src string) models.Trigger {
	return models.Trigger{Type: models.TriggerEvent, Event: event, GuardSource: src, Guard: expr.Compile(src)}
}

func TestTriggerSatisfied(t *testing.T) {
	purchase := models.NewEventSignal("purchase", "checkout", &models.EventData{
		Tags:       []string{"sale"},
		Attributes: map[string]any{"amount": 42.0, "currency": "EUR"},
	})
	unlabeled := models.NewEventSignal("PURCHASE", "", nil)

	tests := []struct {
		name     string
		trigger  models.Trigger
		signal   models.Signal
		expected bool
	}{
		{"name match is case-insensitive", models.Trigger{Type: models.TriggerEvent, Event: "Purchase"}, purchase, true},
		{"name mismatch", models.Trigger{Type: models.TriggerEvent, Event: "OPEN"}, purchase, false},
		{"label match", models.Trigger{Type: models.TriggerEvent, Event: "PURCHASE", Label: strPtr("checkout")}, purchase, true},
		{"label mismatch", models.Trigger{Type: models.TriggerEvent, Event: "PURCHASE", Label: strPtr("cart")}, purchase, false},
		{"trigger label ignored when signal has none", models.Trigger{Type: models.TriggerEvent, Event: "PURCHASE", Label: strPtr("cart")}, unlabeled, true},
		{"signal label ignored when trigger has none", models.Trigger{Type: models.TriggerEvent, Event: "PURCHASE"}, purchase, true},
		{"guard true", guarded("PURCHASE", `(> e.attr.amount 10)`), purchase, true},
		{"guard false", guarded("PURCHASE", `(< e.attr.amount 10)`), purchase, false},
		{"guard on tags", guarded("PURCHASE", `(contains e.tags "sale")`), purchase, true},
		{"guard with undefined variable", guarded("PURCHASE", `(= e.attr.missing 1)`), purchase, false},
		{"guard parse failure never fires", guarded("PURCHASE", `(= e.attr.amount`), purchase, false},
		{"guard reducing to nil", guarded("PURCHASE", `(if true nil true)`), purchase, false},
		{"session trigger on event", models.Trigger{Type: models.TriggerNextSession}, purchase, false},
		{"session trigger on session start", models.Trigger{Type: models.TriggerNextSession}, models.NewSessionStartSignal(), true},
		{"event trigger on session start", models.Trigger{Type: models.TriggerEvent, Event: "PURCHASE"}, models.NewSessionStartSignal(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := EvaluationContext(tt.signal, models.UserAttributes{}, models.DeviceInfo{})
			if got := TriggerSatisfied(tt.trigger, tt.signal, ctx); got != tt.expected {
				t.Errorf("TriggerSatisfied() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEvaluationContext_Variables(t *testing.T) {
	sig := models.NewEventSignal("open", "", &models.EventData{
		Attributes: map[string]any{"vip": true, "segments": []any{"a", "b"}, "nothing": nil, "nested": map[string]any{}},
	})
	attrs := models.UserAttributes{
		Attributes: map[string]any{"city": "Paris", "age": 31},
		Tags:       map[string][]string{"interests": {"golf", "wine"}},
	}
	device := models.DeviceInfo{APILevel: 33, OS: "Android", Country: "FR"}
	ctx := EvaluationContext(sig, attrs, device)

	tests := []struct {
		src      string
		expected expr.Value
	}{
		{`(= e.name "OPEN")`, expr.Bool(true)},
		{`(isNil e.label)`, expr.Bool(true)},
		{`(= e.kind "event")`, expr.Bool(true)},
		{`(and e.attr.vip (contains e.attr.segments "b"))`, expr.Bool(true)},
		{`(isNil e.attr.nothing)`, expr.Bool(true)},
		{`(= c.city "Paris")`, expr.Bool(true)},
		{`(>= c.age 18)`, expr.Bool(true)},
		{`(containsAny t.interests ["wine" "beer"])`, expr.Bool(true)},
		{`(length t.unknown)`, expr.Double(0)},
		{`(and (>= d.api_level 30) (= d.country "FR") (= d.os "Android"))`, expr.Bool(true)},
	}
	for _, tt := range tests {
		got := expr.Compile(tt.src).Reduce(ctx)
		if !tt.expected.Equal(got) {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.expected)
		}
	}

	// objects have no expression representation
	if got := expr.Compile(`(isNil e.attr.nested)`).Reduce(ctx); !got.IsError() {
		t.Errorf("expected unresolved nested attribute, got %s", got)
	}
	if got := expr.Compile(`(= c.missing 1)`).Reduce(ctx); !got.IsError() {
		t.Errorf("expected unresolved custom attribute, got %s", got)
	}
}
