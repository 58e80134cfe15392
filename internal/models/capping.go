package models

import "time"

// GlobalCappings are limits shared by every campaign of a payload.
type GlobalCappings struct {
	// SessionLimit caps views per session. nil means no session cap.
	SessionLimit *int
	TimeWindows  []TimeWindowRule
}

// TimeWindowRule allows at most ViewsAllowed views of any campaign within
// the trailing Window.
type TimeWindowRule struct {
	ViewsAllowed int
	Window       time.Duration
}

// QuietHours is a daily period during which no campaign is displayed.
// The period may wrap around midnight (22:00 to 06:00).
type QuietHours struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	// DaysOfWeek restricts the quiet period to these days. Empty means every day.
	DaysOfWeek []time.Weekday
}

// Active reports whether t, read in its own location, falls inside the quiet
// period. The start minute is inclusive and the end minute exclusive.
func (q QuietHours) Active(t time.Time) bool {
	if len(q.DaysOfWeek) > 0 && !containsWeekday(q.DaysOfWeek, t.Weekday()) {
		return false
	}
	start := q.StartHour*60 + q.StartMinute
	end := q.EndHour*60 + q.EndMinute
	cur := t.Hour()*60 + t.Minute()
	switch {
	case start == end:
		return false
	case start < end:
		return cur >= start && cur < end
	default:
		return cur >= start || cur < end
	}
}

// Valid reports whether every field is within its clock range.
func (q QuietHours) Valid() bool {
	inRange := func(v, max int) bool { return v >= 0 && v <= max }
	if !inRange(q.StartHour, 23) || !inRange(q.EndHour, 23) ||
		!inRange(q.StartMinute, 59) || !inRange(q.EndMinute, 59) {
		return false
	}
	for _, d := range q.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return false
		}
	}
	return true
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}
