package models

import (
	"encoding/json"
	"time"
)

// Output describes how a campaign is rendered. The engine does not interpret
// the payload; it is handed to the Output collaborator as is.
type Output struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CampaignDate is a point in time that is either absolute or "floating".
// A floating date keeps its wall clock reading and is reinterpreted in the
// user's time zone, so "2024-01-01 09:00" starts at 09:00 local time everywhere.
type CampaignDate struct {
	Time     time.Time
	Floating bool
}

// In returns the instant the date designates for a user in loc.
func (d CampaignDate) In(loc *time.Location) time.Time {
	if !d.Floating || loc == nil {
		return d.Time
	}
	u := d.Time.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), loc)
}

// Campaign is a locally cached marketing campaign. Campaigns are immutable
// once parsed; a reload replaces the whole list.
type Campaign struct {
	ID            string         `json:"id"`                        // Server assigned identifier, unique within a payload.
	PublicToken   string         `json:"public_token,omitempty"`    // Token reported back to the server on display.
	DevTrackingID string         `json:"dev_tracking_id,omitempty"` // Identifier chosen by the app developer.
	EventData     map[string]any `json:"event_data,omitempty"`      // Opaque data attached to analytics events.

	// API level window of the host. 0 on either side means unbounded.
	MinAPILevel int `json:"min_api_level"`
	MaxAPILevel int `json:"max_api_level"`

	// Priority decides between several eligible campaigns. Higher wins;
	// ties go to the campaign listed first in the payload.
	Priority int `json:"priority"`

	StartDate CampaignDate  `json:"-"`
	EndDate   *CampaignDate `json:"-"` // nil means no end.

	// HardCap is the maximum number of lifetime views. 0 means unlimited.
	HardCap int `json:"hard_cap"`
	// SoftMinInterval is the minimum time between two views. 0 means none.
	SoftMinInterval time.Duration `json:"soft_min_interval"`

	Triggers      []Trigger      `json:"-"`
	Persist       bool           `json:"persist"`
	Output        Output         `json:"output"`
	CustomPayload map[string]any `json:"custom_payload,omitempty"`
	RequiresJIT   bool           `json:"requires_jit"`

	// Raw is the source record, kept to re-persist the payload.
	Raw json.RawMessage `json:"-"`
}

// ManualOnly reports whether the campaign can only be displayed on request.
func (c *Campaign) ManualOnly() bool {
	return len(c.Triggers) == 0
}

// HasSessionTrigger reports whether any trigger fires on session start.
func (c *Campaign) HasSessionTrigger() bool {
	for _, t := range c.Triggers {
		if t.Type == TriggerNextSession {
			return true
		}
	}
	return false
}

// Started reports whether the campaign's start date is reached at now.
func (c *Campaign) Started(now time.Time, loc *time.Location) bool {
	return !now.Before(c.StartDate.In(loc))
}

// Expired reports whether the campaign's end date has passed at now.
func (c *Campaign) Expired(now time.Time, loc *time.Location) bool {
	if c.EndDate == nil {
		return false
	}
	return now.After(c.EndDate.In(loc))
}
