package normalize_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"familyboard/internal/model"
	"familyboard/internal/normalize"
)

func TestNormalize(t *testing.T) {
	loc := time.FixedZone("Board", 2*60*60)

	Convey("Given raw provider records", t, func() {
		Convey("When start is a structured date-time", func() {
			ev, ok := normalize.Normalize(model.RawEvent{
				"summary":  "Dentist",
				"uid":      "abc",
				"start":    map[string]any{"dateTime": "2025-03-10T09:00:00+02:00"},
				"end":      map[string]any{"dateTime": "2025-03-10T10:00:00+02:00"},
				"location": "Clinic",
				"color":    "blue",
			}, "calendar.alice", loc)

			Convey("Then it is a timed event with its fields mapped", func() {
				So(ok, ShouldBeTrue)
				So(ev.AllDay, ShouldBeFalse)
				So(ev.SourceID, ShouldEqual, "calendar.alice")
				So(ev.UID, ShouldEqual, "abc")
				So(ev.Summary, ShouldEqual, "Dentist")
				So(ev.Location, ShouldEqual, "Clinic")
				So(ev.Start.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, loc)), ShouldBeTrue)
				So(ev.Duration(), ShouldEqual, time.Hour)
				So(ev.Meta, ShouldResemble, map[string]any{"color": "blue"})
			})
		})

		Convey("When start is a date-only value without an end", func() {
			ev, ok := normalize.Normalize(model.RawEvent{
				"summary": "Holiday",
				"start":   map[string]any{"date": "2025-03-10"},
			}, "calendar.family", loc)

			Convey("Then it is all-day and spans exactly one day", func() {
				So(ok, ShouldBeTrue)
				So(ev.AllDay, ShouldBeTrue)
				So(ev.Start.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, loc)), ShouldBeTrue)
				So(ev.End.Equal(ev.Start.AddDate(0, 0, 1)), ShouldBeTrue)
			})
		})

		Convey("When an all-day event ends on its start date", func() {
			ev, ok := normalize.Normalize(model.RawEvent{
				"start": map[string]any{"date": "2025-03-10"},
				"end":   map[string]any{"date": "2025-03-10"},
			}, "s", loc)

			Convey("Then the end is bumped by one day", func() {
				So(ok, ShouldBeTrue)
				So(ev.End.Sub(ev.Start), ShouldEqual, 24*time.Hour)
			})
		})

		Convey("When only the end is date-only", func() {
			ev, ok := normalize.Normalize(model.RawEvent{
				"start": map[string]any{"dateTime": "2025-03-10T00:00:00Z"},
				"end":   map[string]any{"date": "2025-03-12"},
			}, "s", loc)

			Convey("Then the event is all-day", func() {
				So(ok, ShouldBeTrue)
				So(ev.AllDay, ShouldBeTrue)
				So(ev.End.After(ev.Start), ShouldBeTrue)
			})
		})

		Convey("When a timed event ends before it starts", func() {
			ev, ok := normalize.Normalize(model.RawEvent{
				"start": "2025-03-10T09:00:00Z",
				"end":   "2025-03-10T08:00:00Z",
			}, "s", loc)

			Convey("Then the end is start plus sixty seconds", func() {
				So(ok, ShouldBeTrue)
				So(ev.AllDay, ShouldBeFalse)
				So(ev.End.Sub(ev.Start), ShouldEqual, normalize.MinTimedDuration)
			})
		})

		Convey("When both dateTime and date are present", func() {
			ev, ok := normalize.Normalize(model.RawEvent{
				"start": map[string]any{"dateTime": "2025-03-10T09:30:00+02:00", "date": "2025-03-10"},
			}, "s", loc)

			Convey("Then the date-time wins and the event is timed", func() {
				So(ok, ShouldBeTrue)
				So(ev.AllDay, ShouldBeFalse)
				So(ev.Start.Hour(), ShouldEqual, 9)
				So(ev.Start.Minute(), ShouldEqual, 30)
			})
		})

		Convey("When the record only has a title", func() {
			ev, _ := normalize.Normalize(model.RawEvent{"title": "Swim", "start": "2025-03-10 17:00"}, "s", loc)
			Convey("Then the title becomes the summary", func() {
				So(ev.Summary, ShouldEqual, "Swim")
			})
		})

		Convey("When the record has no title at all", func() {
			ev, _ := normalize.Normalize(model.RawEvent{"start": "2025-03-10T17:00:00Z"}, "s", loc)
			Convey("Then the placeholder is used", func() {
				So(ev.Summary, ShouldEqual, normalize.Placeholder)
			})
		})

		Convey("When an explicit all_day flag is set", func() {
			ev, ok := normalize.Normalize(model.RawEvent{"start": "2025-03-10T00:00:00+02:00", "all_day": true}, "s", loc)
			Convey("Then the event is all-day", func() {
				So(ok, ShouldBeTrue)
				So(ev.AllDay, ShouldBeTrue)
				So(ev.End.Sub(ev.Start), ShouldEqual, 24*time.Hour)
			})
		})

		Convey("When the start is missing or unparseable", func() {
			_, okMissing := normalize.Normalize(model.RawEvent{"summary": "x"}, "s", loc)
			_, okGarbage := normalize.Normalize(model.RawEvent{"start": "not a date"}, "s", loc)
			_, okEmpty := normalize.Normalize(model.RawEvent{"start": map[string]any{}}, "s", loc)
			_, okNil := normalize.Normalize(nil, "s", loc)

			Convey("Then the record is dropped", func() {
				So(okMissing, ShouldBeFalse)
				So(okGarbage, ShouldBeFalse)
				So(okEmpty, ShouldBeFalse)
				So(okNil, ShouldBeFalse)
			})
		})

		Convey("When the end is unparseable", func() {
			ev, ok := normalize.Normalize(model.RawEvent{"start": "2025-03-10T09:00:00Z", "end": 42}, "s", loc)
			Convey("Then it falls back to start and is repaired", func() {
				So(ok, ShouldBeTrue)
				So(ev.End.Sub(ev.Start), ShouldEqual, normalize.MinTimedDuration)
			})
		})
	})
}

func TestNormalizeAll(t *testing.T) {
	Convey("Given a mixed batch", t, func() {
		raws := []model.RawEvent{
			{"start": "2025-03-10T09:00:00Z", "end": "2025-03-10T10:00:00Z"},
			{"summary": "broken"},
			{"start": map[string]any{"date": "2025-03-11"}},
		}
		events, dropped := normalize.NormalizeAll(raws, "s", time.UTC)

		Convey("Then malformed records are dropped and every event has end after start", func() {
			So(len(events), ShouldEqual, 2)
			So(dropped, ShouldEqual, 1)
			for _, ev := range events {
				So(ev.End.After(ev.Start), ShouldBeTrue)
			}
		})

		Convey("Then normalizing is deterministic", func() {
			again, _ := normalize.NormalizeAll(raws, "s", time.UTC)
			So(again, ShouldResemble, events)
		})
	})
}
