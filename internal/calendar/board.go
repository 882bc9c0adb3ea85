package calendar

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"familyboard/internal/layout"
	appLog "familyboard/internal/log"
	"familyboard/internal/model"
)

// maxParallelFetches bounds concurrent provider calls while building a board.
const maxParallelFetches = 4

// Board is a multi-day view of every source.
type Board struct {
	From        time.Time      `json:"from"`
	To          time.Time      `json:"to"`
	GeneratedAt time.Time      `json:"generated_at"`
	Window      layout.Window  `json:"window"`
	Sources     []SourceStatus `json:"sources"`
	Days        []Day          `json:"days"`
}

// SourceStatus tells whether a source's events are current. Stale sources
// are served from their last successful fetch.
type SourceStatus struct {
	Source
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Stale     bool      `json:"stale"`
	Error     string    `json:"error,omitempty"`
}

// Day is one column group of the board.
type Day struct {
	Date    string   `json:"date"`
	Columns []Column `json:"columns"`
}

// Column holds the events of one source on one day.
type Column struct {
	SourceID     string        `json:"source_id"`
	AllDay       []model.Event `json:"all_day"`
	HiddenAllDay int           `json:"hidden_all_day"`
	layout.Result
}

type fetched struct {
	events  []model.Event
	updated time.Time
	stale   bool
	err     error
}

// Board builds a board of days columns starting at the day containing
// from. days <= 0 uses the configured default. A source whose fetch fails
// falls back to its expired cache entry when there is one; otherwise its
// columns are empty and the error is reported in Sources.
func (s *Service) Board(ctx context.Context, from time.Time, days int) (*Board, error) {
	if days <= 0 {
		days = s.days
	}
	start := s.startOfDay(from)
	end := start.AddDate(0, 0, days)

	results := make([]fetched, len(s.sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, src := range s.sources {
		g.Go(func() error {
			results[i] = s.fetchForBoard(gctx, src, start, end)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := &Board{
		From:        start,
		To:          end,
		GeneratedAt: s.now(),
		Window:      s.window,
		Sources:     make([]SourceStatus, len(s.sources)),
		Days:        make([]Day, 0, days),
	}
	for i, src := range s.sources {
		r := results[i]
		st := SourceStatus{Source: src, UpdatedAt: r.updated, Stale: r.stale}
		if r.err != nil {
			st.Error = r.err.Error()
		}
		b.Sources[i] = st
	}

	overflowed := 0
	for d := 0; d < days; d++ {
		dayStart := start.AddDate(0, 0, d)
		dayEnd := dayStart.AddDate(0, 0, 1)
		day := Day{Date: dayStart.Format("2006-01-02"), Columns: make([]Column, len(s.sources))}
		for i, src := range s.sources {
			col := s.column(src.ID, OnDay(results[i].events, dayStart, dayEnd), dayStart)
			for _, o := range col.Overflows {
				overflowed += o.Count
			}
			day.Columns[i] = col
		}
		b.Days = append(b.Days, day)
	}

	s.observer.BoardBuilt(overflowed)
	return b, nil
}

func (s *Service) fetchForBoard(ctx context.Context, src Source, start, end time.Time) fetched {
	events, err := s.EventsForRange(ctx, src.ID, start, end)
	if err == nil {
		updated, _, _ := s.Freshness(src.ID, start, end)
		return fetched{events: events, updated: updated}
	}

	r := fetched{err: err}
	if e, ok := s.LastKnown(src.ID, start, end); ok {
		r.events, r.updated, r.stale = e.Events, e.Timestamp, true
		appLog.Warn("calendar: serving stale events", "source", src.ID, "age", e.Age(s.now()).Round(time.Second), "err", err)
		return r
	}
	appLog.Error("calendar: fetch failed", err, "source", src.ID)
	return r
}

// column splits a source's events for one day into capped all-day chips
// and laid-out timed items.
func (s *Service) column(sourceID string, events []model.Event, dayStart time.Time) Column {
	col := Column{SourceID: sourceID, AllDay: []model.Event{}}
	timed := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.AllDay {
			timed = append(timed, ev)
			continue
		}
		if len(col.AllDay) < s.maxAllDay {
			col.AllDay = append(col.AllDay, ev)
		} else {
			col.HiddenAllDay++
		}
	}
	col.Result = layout.Layout(layout.Clamp(timed, dayStart, s.window), layout.Options{MaxLanes: s.maxLanes})
	return col
}
