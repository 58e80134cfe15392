package models

import (
	"context"
	"sync"
	"time"
)

// EventKind names what a counted event counts.
type EventKind string

// EventKindView counts campaign displays.
const EventKindView EventKind = "view"

// CountedEvent is the per campaign counter kept by a ViewTracker.
// Records are created lazily on first occurrence and only ever grow.
type CountedEvent struct {
	CampaignID     string     `json:"campaign_id"`
	Kind           EventKind  `json:"kind"`
	CustomUserID   string     `json:"custom_user_id,omitempty"`
	Count          int64      `json:"count"`
	LastOccurrence *time.Time `json:"last_occurrence,omitempty"`
}

// ViewTracker persists campaign view counters. Implementations serialise
// their own writes and are safe for concurrent use.
type ViewTracker interface {
	// TrackEvent records one occurrence and returns the updated record.
	TrackEvent(ctx context.Context, campaignID string, kind EventKind) (*CountedEvent, error)
	// EventInfo returns the record for campaignID, or a zero-count record
	// when none exists yet.
	EventInfo(ctx context.Context, campaignID string, kind EventKind) (CountedEvent, error)
	// EventInfos is the batched form of EventInfo. Every requested id is
	// present in the result.
	EventInfos(ctx context.Context, campaignIDs []string, kind EventKind) (map[string]CountedEvent, error)
	// ViewEventCountSince counts views of any campaign at or after since.
	ViewEventCountSince(ctx context.Context, since time.Time) (int64, error)
}

// InMemoryViewTracker keeps counters in process memory.
type InMemoryViewTracker struct {
	mu           sync.Mutex
	customUserID string
	events       map[string]*CountedEvent
	viewLog      []time.Time

	// Now is the tracker clock. Defaults to time.Now.
	Now func() time.Time
}

// NewInMemoryViewTracker returns an empty tracker attributing events to
// customUserID (may be empty).
func NewInMemoryViewTracker(customUserID string) *InMemoryViewTracker {
	return &InMemoryViewTracker{
		customUserID: customUserID,
		events:       make(map[string]*CountedEvent),
		Now:          time.Now,
	}
}

func trackerKey(campaignID string, kind EventKind) string {
	return campaignID + "\x00" + string(kind)
}

func (t *InMemoryViewTracker) TrackEvent(_ context.Context, campaignID string, kind EventKind) (*CountedEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.Now()
	key := trackerKey(campaignID, kind)
	ev, ok := t.events[key]
	if !ok {
		ev = &CountedEvent{CampaignID: campaignID, Kind: kind, CustomUserID: t.customUserID}
		t.events[key] = ev
	}
	ev.Count++
	ev.LastOccurrence = &now
	if kind == EventKindView {
		t.viewLog = append(t.viewLog, now)
	}
	out := *ev
	return &out, nil
}

func (t *InMemoryViewTracker) EventInfo(_ context.Context, campaignID string, kind EventKind) (CountedEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookup(campaignID, kind), nil
}

func (t *InMemoryViewTracker) EventInfos(_ context.Context, campaignIDs []string, kind EventKind) (map[string]CountedEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]CountedEvent, len(campaignIDs))
	for _, id := range campaignIDs {
		out[id] = t.lookup(id, kind)
	}
	return out, nil
}

func (t *InMemoryViewTracker) ViewEventCountSince(_ context.Context, since time.Time) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for _, ts := range t.viewLog {
		if !ts.Before(since) {
			n++
		}
	}
	return n, nil
}

// caller holds t.mu
func (t *InMemoryViewTracker) lookup(campaignID string, kind EventKind) CountedEvent {
	if ev, ok := t.events[trackerKey(campaignID, kind)]; ok {
		return *ev
	}
	return CountedEvent{CampaignID: campaignID, Kind: kind, CustomUserID: t.customUserID}
}
