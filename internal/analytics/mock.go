package analytics

import (
	"context"
	"sync"
)

var (
	_ DisplayRecorder = (*Analytics)(nil)
	_ DisplayRecorder = (*MockAnalytics)(nil)
)

// MockAnalytics keeps display events in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	events []DisplayEvent
	Err    error // returned by RecordDisplay when set
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordDisplay stores ev unless Err is set.
func (m *MockAnalytics) RecordDisplay(_ context.Context, ev DisplayEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockAnalytics) Events() []DisplayEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DisplayEvent, len(m.events))
	copy(out, m.events)
	return out
}
