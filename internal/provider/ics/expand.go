package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "familyboard/internal/log"
	"familyboard/internal/model"
)

// defaultMaxOccurrences caps a single RRULE expansion.
const defaultMaxOccurrences = 5000

const dateLayout = "2006-01-02"

// expand turns parsed VEVENTs into raw records for the occurrences that
// intersect [from, to]. Overrides (RECURRENCE-ID) replace the instance
// they point at; EXDATEs remove instances.
func expand(sourceID string, events []vevent, from, to time.Time, maxOcc int) []model.RawEvent {
	if maxOcc <= 0 {
		maxOcc = defaultMaxOccurrences
	}

	overrides := make(map[string][]vevent)
	bases := make([]vevent, 0, len(events))
	for _, ev := range events {
		if ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	out := make([]model.RawEvent, 0, len(bases))
	for _, ev := range bases {
		ov := overrides[ev.UID]
		if ev.RRule == "" {
			if inst, ok := override(ov, ev.Start); ok {
				ev = inst
			}
			if overlaps(ev.Start, endOf(ev), from, to) {
				out = append(out, toRaw(ev, ev.Start, endOf(ev)))
			}
			continue
		}
		out = append(out, expandRecurring(sourceID, ev, ov, from, to, maxOcc)...)
	}
	return out
}

func expandRecurring(sourceID string, ev vevent, ov []vevent, from, to time.Time, maxOcc int) []model.RawEvent {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Debug("ics rrule skipped", "source", sourceID, "uid", ev.UID, "rrule", ev.RRule, "err", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := endOf(ev).Sub(ev.Start)
	// Start the window one duration early so instances running into it count.
	starts := set.Between(from.Add(-dur).In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(starts) > maxOcc {
		appLog.Warn("ics occurrences truncated", "source", sourceID, "uid", ev.UID, "cap", maxOcc)
		starts = starts[:maxOcc]
	}

	out := make([]model.RawEvent, 0, len(starts))
	for _, s := range starts {
		inst := ev
		instStart, instEnd := s, s.Add(dur)
		if o, ok := override(ov, s); ok {
			inst, instStart, instEnd = o, o.Start, endOf(o)
		}
		if !overlaps(instStart, instEnd, from, to) {
			continue
		}
		out = append(out, toRaw(inst, instStart, instEnd))
	}
	return out
}

func override(ov []vevent, instStart time.Time) (vevent, bool) {
	for _, o := range ov {
		if o.Recurrence != nil && o.Recurrence.Equal(instStart) {
			return o, true
		}
	}
	return vevent{}, false
}

// endOf returns DTEND, or the implied end when it is absent: one day for
// all-day events, zero duration otherwise (the normalizer repairs it).
func endOf(ev vevent) time.Time {
	if ev.HasEnd {
		return ev.End
	}
	if ev.AllDay {
		return ev.Start.AddDate(0, 0, 1)
	}
	return ev.Start
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

// toRaw encodes an instance in the structured start/end shape the
// normalizer prefers.
func toRaw(ev vevent, start, end time.Time) model.RawEvent {
	raw := model.RawEvent{
		"uid":     ev.UID,
		"summary": ev.Summary,
	}
	if ev.AllDay {
		raw["start"] = map[string]any{"date": start.Format(dateLayout)}
		raw["end"] = map[string]any{"date": end.Format(dateLayout)}
	} else {
		raw["start"] = map[string]any{"dateTime": start.Format(time.RFC3339)}
		raw["end"] = map[string]any{"dateTime": end.Format(time.RFC3339)}
	}
	if ev.Description != "" {
		raw["description"] = ev.Description
	}
	if ev.Location != "" {
		raw["location"] = ev.Location
	}
	if ev.RRule != "" {
		raw["recurrence_id"] = start.Format(time.RFC3339)
	}
	return raw
}
