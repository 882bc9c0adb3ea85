// Package normalize turns loosely-typed provider records into model.Event.
package normalize

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"familyboard/internal/model"
)

// Placeholder is used when a record carries neither summary nor title.
const Placeholder = "(No title)"

// MinTimedDuration is the length given to timed events whose end is not
// after their start.
const MinTimedDuration = 60 * time.Second

const dateLayout = "2006-01-02"

// consumed lists raw keys mapped onto Event fields; everything else goes to Meta.
var consumed = map[string]struct{}{
	"summary":     {},
	"title":       {},
	"start":       {},
	"end":         {},
	"location":    {},
	"description": {},
	"uid":         {},
	"id":          {},
	"all_day":     {},
	"allDay":      {},
}

// instant is the result of decoding one start/end value.
type instant struct {
	t        time.Time
	dateOnly bool // structured {date} without {dateTime}
}

// Normalize converts raw into an Event attributed to sourceID. Date-only and
// zone-less values are interpreted in loc (time.Local when nil), and every
// returned instant is expressed in loc.
//
// ok is false when no usable start exists; such records are dropped, not
// treated as errors. A non-positive duration is repaired: all-day events
// end one day after start, timed events MinTimedDuration after start.
func Normalize(raw model.RawEvent, sourceID string, loc *time.Location) (ev model.Event, ok bool) {
	if raw == nil {
		return model.Event{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	start, ok := parseInstant(raw["start"], loc)
	if !ok {
		return model.Event{}, false
	}
	end, endOK := parseInstant(raw["end"], loc)
	if !endOK {
		end = start
	}

	allDay := start.dateOnly || (endOK && end.dateOnly) || boolField(raw, "all_day", "allDay")

	ev = model.Event{
		SourceID:    sourceID,
		UID:         stringField(raw, "uid", "id"),
		Summary:     stringField(raw, "summary", "title"),
		Description: stringField(raw, "description"),
		Location:    stringField(raw, "location"),
		AllDay:      allDay,
		Start:       start.t,
		End:         end.t,
		Meta:        meta(raw),
	}
	if ev.Summary == "" {
		ev.Summary = Placeholder
	}

	if !ev.End.After(ev.Start) {
		if allDay {
			ev.End = ev.Start.AddDate(0, 0, 1)
		} else {
			ev.End = ev.Start.Add(MinTimedDuration)
		}
	}

	return ev, true
}

// NormalizeAll maps Normalize over raws, dropping unusable records. The
// second return value is the number of dropped records.
func NormalizeAll(raws []model.RawEvent, sourceID string, loc *time.Location) ([]model.Event, int) {
	out := make([]model.Event, 0, len(raws))
	dropped := 0
	for _, r := range raws {
		ev, ok := Normalize(r, sourceID, loc)
		if !ok {
			dropped++
			continue
		}
		out = append(out, ev)
	}
	return out, dropped
}

// parseInstant decodes a start/end value. Structured values prefer
// dateTime over date; bare strings are parsed leniently.
func parseInstant(v any, loc *time.Location) (instant, bool) {
	switch x := v.(type) {
	case nil:
		return instant{}, false
	case time.Time:
		if x.IsZero() {
			return instant{}, false
		}
		return instant{t: x.In(loc)}, true
	case *time.Time:
		if x == nil {
			return instant{}, false
		}
		return parseInstant(*x, loc)
	case string:
		t, ok := parseDateTime(x, loc)
		return instant{t: t}, ok
	case model.RawEvent:
		return parseStructured(x, loc)
	case map[string]any:
		return parseStructured(x, loc)
	default:
		return instant{}, false
	}
}

func parseStructured(m map[string]any, loc *time.Location) (instant, bool) {
	for _, k := range []string{"dateTime", "date_time"} {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			t, ok := parseDateTime(s, loc)
			return instant{t: t}, ok
		}
	}
	if s, ok := m["date"].(string); ok && strings.TrimSpace(s) != "" {
		t, ok := parseDate(s, loc)
		return instant{t: t, dateOnly: ok}, ok
	}
	return instant{}, false
}

func parseDateTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), true
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t.In(loc), true
}

// parseDate returns local midnight of a date-only value.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, true
	}
	t, ok := parseDateTime(s, loc)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
}

func stringField(raw model.RawEvent, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func boolField(raw model.RawEvent, keys ...string) bool {
	for _, k := range keys {
		if b, ok := raw[k].(bool); ok && b {
			return true
		}
	}
	return false
}

func meta(raw model.RawEvent) map[string]any {
	var out map[string]any
	for k, v := range raw {
		if _, skip := consumed[k]; skip {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	return out
}
