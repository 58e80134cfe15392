package payload

import (
	"encoding/json"
	"fmt"

	"github.com/patrickwarner/inappserve/internal/models"
)

// EncodePersistable re-encodes the part of set that survives a restart: the
// campaigns marked persist, in order, with the payload level cappings and
// quiet hours. Campaign records are written back exactly as received.
func EncodePersistable(set CampaignSet) ([]byte, error) {
	doc := wireDocument{Campaigns: make([]json.RawMessage, 0, len(set.Campaigns))}
	for _, c := range set.Campaigns {
		if !c.Persist {
			continue
		}
		if len(c.Raw) == 0 {
			return nil, fmt.Errorf("campaign %q has no source record", c.ID)
		}
		doc.Campaigns = append(doc.Campaigns, c.Raw)
	}

	if set.Cappings.SessionLimit != nil || len(set.Cappings.TimeWindows) > 0 {
		raw, err := json.Marshal(encodeCappings(set.Cappings))
		if err != nil {
			return nil, err
		}
		doc.Cappings = raw
	}
	if set.QuietHours != nil {
		raw, err := json.Marshal(encodeQuietHours(*set.QuietHours))
		if err != nil {
			return nil, err
		}
		doc.QuietHours = raw
	}
	return json.Marshal(doc)
}

func encodeCappings(c models.GlobalCappings) wireCappings {
	w := wireCappings{Session: c.SessionLimit}
	for _, tw := range c.TimeWindows {
		w.Time = append(w.Time, wireTimeWindow{Views: tw.ViewsAllowed, Duration: int64(tw.Window.Seconds())})
	}
	return w
}

func encodeQuietHours(q models.QuietHours) wireQuietHours {
	w := wireQuietHours{
		StartHour: q.StartHour,
		StartMin:  q.StartMinute,
		EndHour:   q.EndHour,
		EndMin:    q.EndMinute,
	}
	for _, d := range q.DaysOfWeek {
		w.QuietDaysOfWeek = append(w.QuietDaysOfWeek, int(d))
	}
	return w
}
