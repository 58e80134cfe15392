// Package payload decodes the campaign payload served by the backend into a
// CampaignSet and re-encodes the persistable part of it for the local cache.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickwarner/inappserve/internal/expr"
	"github.com/patrickwarner/inappserve/internal/models"

	"go.uber.org/zap"
)

// CampaignSet is the result of a successful parse. Campaign order is the
// payload order and is the tie-break between equal priorities.
type CampaignSet struct {
	Campaigns  []*models.Campaign
	Cappings   models.GlobalCappings
	QuietHours *models.QuietHours
}

// DroppedRecord describes a campaign record that was skipped.
type DroppedRecord struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ParseReport lists what Parse skipped or ignored.
type ParseReport struct {
	Dropped  []DroppedRecord `json:"dropped,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Parse decodes raw. A document that is not a JSON object returns
// ErrInvalidPayload. Malformed campaign records are dropped and listed in the
// report while the rest of the batch is kept; an empty or all-invalid batch
// yields an empty set.
func Parse(raw []byte) (CampaignSet, ParseReport, error) {
	var set CampaignSet
	var report ParseReport

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return set, report, fmt.Errorf("%w: document must be a JSON object", ErrInvalidPayload)
	}
	var doc wireDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return set, report, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	seen := make(map[string]struct{}, len(doc.Campaigns))
	for i, rec := range doc.Campaigns {
		c, err := parseCampaign(rec)
		if err == nil {
			if _, dup := seen[c.ID]; dup {
				err = fmt.Errorf("duplicate campaignId %q", c.ID)
			}
		}
		if err != nil {
			d := DroppedRecord{Index: i, ID: recordID(rec), Reason: err.Error()}
			report.Dropped = append(report.Dropped, d)
			zap.L().Warn("dropping campaign record", zap.Int("index", d.Index), zap.String("campaign_id", d.ID), zap.String("reason", d.Reason))
			continue
		}
		seen[c.ID] = struct{}{}
		set.Campaigns = append(set.Campaigns, c)
	}

	if len(doc.Cappings) > 0 && !isJSONNull(doc.Cappings) {
		cappings, err := parseCappings(doc.Cappings)
		if err != nil {
			report.Warnings = append(report.Warnings, "cappings ignored: "+err.Error())
			zap.L().Warn("ignoring invalid cappings", zap.Error(err))
		} else {
			set.Cappings = cappings
		}
	}
	if len(doc.QuietHours) > 0 && !isJSONNull(doc.QuietHours) {
		qh, err := parseQuietHours(doc.QuietHours)
		if err != nil {
			report.Warnings = append(report.Warnings, "quiet hours ignored: "+err.Error())
			zap.L().Warn("ignoring invalid quiet hours", zap.Error(err))
		} else {
			set.QuietHours = qh
		}
	}
	return set, report, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// recordID extracts the campaign id of a record for reporting, even when the
// record as a whole does not decode.
func recordID(rec json.RawMessage) string {
	var probe struct {
		CampaignID any `json:"campaignId"`
	}
	if err := json.Unmarshal(rec, &probe); err != nil {
		return ""
	}
	if s, ok := probe.CampaignID.(string); ok {
		return s
	}
	return ""
}

func parseCampaign(rec json.RawMessage) (*models.Campaign, error) {
	var w wireCampaign
	if err := json.Unmarshal(rec, &w); err != nil {
		return nil, fmt.Errorf("malformed record: %v", err)
	}
	if w.CampaignID == nil || strings.TrimSpace(*w.CampaignID) == "" {
		return nil, errors.New("missing campaignId")
	}
	if w.StartDate == nil || w.StartDate.TS == nil {
		return nil, errors.New("missing startDate")
	}
	if w.Output == nil || w.Output.Type == "" {
		return nil, errors.New("missing output type")
	}
	if w.Triggers == nil {
		return nil, errors.New("missing triggers")
	}
	if w.Capping < 0 {
		return nil, fmt.Errorf("negative capping %d", w.Capping)
	}
	if w.MinDisplayInterval < 0 {
		return nil, fmt.Errorf("negative minDisplayInterval %d", w.MinDisplayInterval)
	}
	if w.MinimumAPILevel < 0 || w.MaximumAPILevel < 0 {
		return nil, errors.New("negative api level")
	}
	if w.MinimumAPILevel > 0 && w.MaximumAPILevel > 0 && w.MaximumAPILevel < w.MinimumAPILevel {
		return nil, fmt.Errorf("maximumApiLevel %d below minimumApiLevel %d", w.MaximumAPILevel, w.MinimumAPILevel)
	}

	c := &models.Campaign{
		ID:              *w.CampaignID,
		PublicToken:     w.CampaignToken,
		DevTrackingID:   w.DevTrackingID,
		EventData:       w.EventData,
		MinAPILevel:     w.MinimumAPILevel,
		MaxAPILevel:     w.MaximumAPILevel,
		Priority:        w.Priority,
		StartDate:       toDate(*w.StartDate),
		HardCap:         w.Capping,
		SoftMinInterval: time.Duration(w.MinDisplayInterval) * time.Second,
		Persist:         w.Persist,
		Output:          models.Output{Type: w.Output.Type, Payload: w.Output.Payload},
		CustomPayload:   w.CustomPayload,
		RequiresJIT:     w.RequireJIT,
		Raw:             append(json.RawMessage(nil), rec...),
	}
	if w.EndDate != nil {
		if w.EndDate.TS == nil {
			return nil, errors.New("endDate without ts")
		}
		end := toDate(*w.EndDate)
		c.EndDate = &end
	}

	c.Triggers = make([]models.Trigger, 0, len(*w.Triggers))
	for i, wt := range *w.Triggers {
		t, err := parseTrigger(wt)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", i, err)
		}
		if t.HasGuard() && t.Guard.IsError() {
			zap.L().Warn("campaign trigger guard does not parse, trigger disabled",
				zap.String("campaign_id", c.ID),
				zap.String("guard", t.GuardSource),
				zap.String("error", t.Guard.Message()))
		}
		c.Triggers = append(c.Triggers, t)
	}
	return c, nil
}

func toDate(w wireDate) models.CampaignDate {
	return models.CampaignDate{Time: time.UnixMilli(*w.TS).UTC(), Floating: w.UserTZ}
}

func parseTrigger(w wireTrigger) (models.Trigger, error) {
	t := models.Trigger{Type: models.TriggerType(strings.ToUpper(w.Type)), Label: w.Label}
	switch t.Type {
	case models.TriggerEvent:
		t.Event = models.NormalizeEventName(w.Event)
		if t.Event == "" {
			return t, errors.New("EVENT trigger without event name")
		}
	case models.TriggerNextSession:
	default:
		return t, fmt.Errorf("unknown trigger type %q", w.Type)
	}
	if g := strings.TrimSpace(w.Guard); g != "" {
		t.GuardSource = g
		t.Guard = expr.Compile(g)
	}
	return t, nil
}

func parseCappings(raw json.RawMessage) (models.GlobalCappings, error) {
	var w wireCappings
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.GlobalCappings{}, err
	}
	var out models.GlobalCappings
	if w.Session != nil {
		if *w.Session < 0 {
			return out, fmt.Errorf("negative session cap %d", *w.Session)
		}
		limit := *w.Session
		out.SessionLimit = &limit
	}
	for _, tw := range w.Time {
		if tw.Views < 0 || tw.Duration <= 0 {
			return models.GlobalCappings{}, fmt.Errorf("invalid time window rule {views: %d, duration: %d}", tw.Views, tw.Duration)
		}
		out.TimeWindows = append(out.TimeWindows, models.TimeWindowRule{
			ViewsAllowed: tw.Views,
			Window:       time.Duration(tw.Duration) * time.Second,
		})
	}
	return out, nil
}

func parseQuietHours(raw json.RawMessage) (*models.QuietHours, error) {
	var w wireQuietHours
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	q := &models.QuietHours{
		StartHour:   w.StartHour,
		StartMinute: w.StartMin,
		EndHour:     w.EndHour,
		EndMinute:   w.EndMin,
	}
	for _, d := range w.QuietDaysOfWeek {
		q.DaysOfWeek = append(q.DaysOfWeek, time.Weekday(d))
	}
	if !q.Valid() {
		return nil, fmt.Errorf("out of range quiet hours %02d:%02d-%02d:%02d", w.StartHour, w.StartMin, w.EndHour, w.EndMin)
	}
	return q, nil
}
