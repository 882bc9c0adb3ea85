package hass

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCalendarEvents(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	Convey("Given a Home Assistant calendar endpoint", t, func() {
		var gotPath, gotQuery, gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath, gotQuery, gotAuth = r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization")
			if r.URL.Path == "/api/calendars/calendar.broken" {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, `[
				{"summary":"Dentist","start":{"dateTime":"2025-03-10T09:00:00+00:00"},"end":{"dateTime":"2025-03-10T10:00:00+00:00"},"uid":"1"},
				{"summary":"Holiday","start":{"date":"2025-03-10"},"end":{"date":"2025-03-11"}}
			]`)
		}))
		defer srv.Close()

		c := NewClient(srv.URL+"/", "tkn", srv.Client())

		Convey("When events are requested", func() {
			raws, err := c.CalendarEvents(ctx, "calendar.alice", start, end)

			Convey("Then the range and token are sent and records decoded", func() {
				So(err, ShouldBeNil)
				So(gotPath, ShouldEqual, "/api/calendars/calendar.alice")
				So(gotQuery, ShouldContainSubstring, "start=2025-03-10T00%3A00%3A00.000Z")
				So(gotAuth, ShouldEqual, "Bearer tkn")
				So(len(raws), ShouldEqual, 2)
				So(raws[1]["start"], ShouldResemble, map[string]any{"date": "2025-03-10"})
			})
		})

		Convey("When the endpoint fails", func() {
			_, err := c.CalendarEvents(ctx, "calendar.broken", start, end)

			Convey("Then the status is reported", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "500")
			})
		})

		Convey("When no entity is given", func() {
			_, err := c.CalendarEvents(ctx, "", start, end)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTodoItems(t *testing.T) {
	Convey("Given the todo get_items service", t, func() {
		var body map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&body)
			_, _ = io.WriteString(w, `{"changed_states":[],"service_response":{"todo.chores":{"items":[
				{"uid":"a","summary":"Bins","status":"needs_action","due":"2025-03-10"},
				{"uid":"b","summary":"Call vet","status":"needs_action","due":"2025-03-10T15:00:00+00:00"},
				{"uid":"c","summary":"Done","status":"completed","due":"2025-03-10"},
				{"uid":"d","summary":"Someday","status":"needs_action"}
			]}}}`)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "", srv.Client())
		items, err := c.TodoItems(context.Background(), "todo.chores")

		Convey("Then items are decoded from the wrapped response", func() {
			So(err, ShouldBeNil)
			So(body["entity_id"], ShouldEqual, "todo.chores")
			So(len(items), ShouldEqual, 4)
		})

		Convey("Then only open items with a due value become events", func() {
			raws := TodoRawEvents(items)
			So(len(raws), ShouldEqual, 2)
			So(raws[0]["start"], ShouldResemble, map[string]any{"date": "2025-03-10"})
			So(raws[1]["start"], ShouldResemble, map[string]any{"dateTime": "2025-03-10T15:00:00+00:00"})
		})
	})

	Convey("Given the other response shapes", t, func() {
		shapes := []string{
			`[{"uid":"a","summary":"x"}]`,
			`{"items":[{"uid":"a","summary":"x"}]}`,
			`{"todo.chores":{"items":[{"uid":"a","summary":"x"}]}}`,
			`{"response":{"todo.chores":{"items":[{"uid":"a","summary":"x"}]}}}`,
		}
		for _, s := range shapes {
			items, err := decodeTodoItems(json.RawMessage(s), "todo.chores")
			So(err, ShouldBeNil)
			So(len(items), ShouldEqual, 1)
		}

		items, err := decodeTodoItems(json.RawMessage(`{}`), "todo.chores")
		So(err, ShouldBeNil)
		So(items, ShouldBeEmpty)
	})
}
