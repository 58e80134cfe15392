package models

import (
	"strings"

	"github.com/patrickwarner/inappserve/internal/expr"
)

// TriggerType selects the kind of signal a trigger reacts to.
type TriggerType string

const (
	TriggerEvent       TriggerType = "EVENT"
	TriggerNextSession TriggerType = "NEXT_SESSION"
)

// Trigger is a condition under which a campaign may be shown.
type Trigger struct {
	Type  TriggerType
	Event string  // upper-cased event name, empty for NEXT_SESSION
	Label *string // nil means any label

	// GuardSource is the expression text as received. Guard is its parsed
	// form; a parse failure is kept as an error value so the trigger never
	// fires instead of dropping the whole campaign.
	GuardSource string
	Guard       expr.Value
}

// HasGuard reports whether the trigger carries a guard expression.
func (t Trigger) HasGuard() bool {
	return t.GuardSource != ""
}

// SignalKind identifies what produced a signal.
type SignalKind string

const (
	SignalEvent        SignalKind = "event"
	SignalSessionStart SignalKind = "session_start"
)

// EventData is the optional structured payload of a tracked event.
type EventData struct {
	Tags       []string       `json:"tags,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Signal is an immutable application occurrence evaluated against triggers.
type Signal struct {
	kind  SignalKind
	name  string
	label *string
	data  *EventData
}

// NewEventSignal builds a signal for a tracked event. An empty label is
// treated as no label.
func NewEventSignal(name, label string, data *EventData) Signal {
	s := Signal{kind: SignalEvent, name: NormalizeEventName(name), data: data}
	if label != "" {
		l := label
		s.label = &l
	}
	return s
}

// NewSessionStartSignal builds the signal emitted when a session starts.
func NewSessionStartSignal() Signal {
	return Signal{kind: SignalSessionStart}
}

func (s Signal) Kind() SignalKind { return s.kind }
func (s Signal) Name() string     { return s.name }

// Label returns the label and whether one is present.
func (s Signal) Label() (string, bool) {
	if s.label == nil {
		return "", false
	}
	return *s.label, true
}

// Data returns the event payload, which may be nil.
func (s Signal) Data() *EventData { return s.data }

// NormalizeEventName returns the canonical form used for event matching.
func NormalizeEventName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
