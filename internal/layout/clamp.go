package layout

import (
	"time"

	"familyboard/internal/model"
)

const minutesPerDay = 24 * 60

// Window is the visible part of a day in minutes since midnight.
type Window struct {
	StartMin int
	EndMin   int
}

// FullDay shows the whole day.
var FullDay = Window{StartMin: 0, EndMin: minutesPerDay}

// HoursWindow builds a Window from whole hours, e.g. HoursWindow(6, 22).
func HoursWindow(startHour, endHour int) Window {
	w := Window{StartMin: startHour * 60, EndMin: endHour * 60}
	if w.StartMin < 0 {
		w.StartMin = 0
	}
	if w.EndMin > minutesPerDay {
		w.EndMin = minutesPerDay
	}
	return w
}

// Clamp turns the timed events that touch day into spans ready for Layout.
// Each event is cut to [midnight, next midnight) of day (in day's location)
// and then to w. All-day events and events with nothing left inside the
// window are skipped. Partial minutes round outward so a short event keeps
// at least one minute.
func Clamp(events []model.Event, day time.Time, w Window) []Span {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	out := make([]Span, 0, len(events))
	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		s := ev.Start.In(day.Location())
		e := ev.End.In(day.Location())
		if s.Before(dayStart) {
			s = dayStart
		}
		if e.After(dayEnd) {
			e = dayEnd
		}
		if !e.After(s) {
			continue
		}

		startMin := max(w.StartMin, floorMinute(s))
		endMin := min(w.EndMin, ceilMinute(e, dayEnd))
		if endMin <= startMin {
			continue
		}
		out = append(out, Span{Event: ev, StartMin: startMin, EndMin: endMin})
	}
	return out
}

func floorMinute(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func ceilMinute(t, dayEnd time.Time) int {
	if t.Equal(dayEnd) {
		return minutesPerDay
	}
	m := floorMinute(t)
	if t.Second() > 0 || t.Nanosecond() > 0 {
		m++
	}
	return m
}
