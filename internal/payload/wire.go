package payload

import "encoding/json"

// Wire representation of the campaign payload served by the backend.

type wireDocument struct {
	Campaigns  []json.RawMessage `json:"campaigns"`
	Cappings   json.RawMessage   `json:"cappings,omitempty"`
	QuietHours json.RawMessage   `json:"quietHours,omitempty"`
}

type wireCampaign struct {
	CampaignID         *string        `json:"campaignId"`
	CampaignToken      string         `json:"campaignToken"`
	DevTrackingID      string         `json:"devTrackingId"`
	EventData          map[string]any `json:"eventData"`
	MinimumAPILevel    int            `json:"minimumApiLevel"`
	MaximumAPILevel    int            `json:"maximumApiLevel"`
	Priority           int            `json:"priority"`
	StartDate          *wireDate      `json:"startDate"`
	EndDate            *wireDate      `json:"endDate"`
	Capping            int            `json:"capping"`
	MinDisplayInterval int64          `json:"minDisplayInterval"`
	Triggers           *[]wireTrigger `json:"triggers"`
	Persist            bool           `json:"persist"`
	Output             *wireOutput    `json:"output"`
	CustomPayload      map[string]any `json:"customPayload"`
	RequireJIT         bool           `json:"requireJIT"`
}

type wireDate struct {
	TS     *int64 `json:"ts"`
	UserTZ bool   `json:"userTZ"`
}

type wireTrigger struct {
	Type  string  `json:"type"`
	Event string  `json:"event"`
	Label *string `json:"label"`
	Guard string  `json:"guard"`
}

type wireOutput struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireCappings struct {
	Session *int             `json:"session,omitempty"`
	Time    []wireTimeWindow `json:"time,omitempty"`
}

type wireTimeWindow struct {
	Views    int   `json:"views"`
	Duration int64 `json:"duration"` // seconds
}

type wireQuietHours struct {
	StartHour       int   `json:"startHour"`
	StartMin        int   `json:"startMin"`
	EndHour         int   `json:"endHour"`
	EndMin          int   `json:"endMin"`
	QuietDaysOfWeek []int `json:"quietDaysOfWeek,omitempty"`
}
