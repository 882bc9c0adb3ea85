// Package calendar composes the range cache, the providers and the layout
// engine into the event lists and day boards consumed by the web API and
// the CLI.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"familyboard/internal/cache"
	"familyboard/internal/layout"
	"familyboard/internal/model"
)

var (
	ErrMissingSourceID = errors.New("calendar: missing source id")
	ErrUnknownSource   = errors.New("calendar: unknown source")
)

// BoardObserver is told about every board that is built.
type BoardObserver interface {
	BoardBuilt(overflowed int)
}

type nopBoardObserver struct{}

func (nopBoardObserver) BoardBuilt(int) {}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	Location  *time.Location
	Window    layout.Window
	Days      int
	MaxLanes  int
	MaxAllDay int
	Observer  BoardObserver
}

const (
	defaultDays      = 5
	defaultMaxAllDay = 6
)

// Service serves normalized events per source and builds boards.
type Service struct {
	cache   *cache.RangeCache
	sources []Source
	byID    map[string]Source

	loc       *time.Location
	window    layout.Window
	days      int
	maxLanes  int
	maxAllDay int
	observer  BoardObserver
	now       func() time.Time
}

// New creates a Service over rc for the given sources.
func New(rc *cache.RangeCache, sources []Source, opts Options) *Service {
	s := &Service{
		cache:     rc,
		sources:   sources,
		byID:      make(map[string]Source, len(sources)),
		loc:       opts.Location,
		window:    opts.Window,
		days:      opts.Days,
		maxLanes:  opts.MaxLanes,
		maxAllDay: opts.MaxAllDay,
		observer:  opts.Observer,
		now:       time.Now,
	}
	for _, src := range sources {
		s.byID[src.ID] = src
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.window.EndMin <= s.window.StartMin {
		s.window = layout.FullDay
	}
	if s.days <= 0 {
		s.days = defaultDays
	}
	if s.maxLanes <= 0 {
		s.maxLanes = layout.DefaultMaxLanes
	}
	if s.maxAllDay <= 0 {
		s.maxAllDay = defaultMaxAllDay
	}
	if s.observer == nil {
		s.observer = nopBoardObserver{}
	}
	return s
}

// Sources returns the configured sources in board order.
func (s *Service) Sources() []Source { return s.sources }

// Location returns the display location.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) source(sourceID string) (Source, error) {
	if sourceID == "" {
		return Source{}, ErrMissingSourceID
	}
	src, ok := s.byID[sourceID]
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}
	return src, nil
}

// EventsForRange returns the normalized events of one source in
// [start, end]. The slice is shared with the cache and must not be
// modified.
func (s *Service) EventsForRange(ctx context.Context, sourceID string, start, end time.Time) ([]model.Event, error) {
	src, err := s.source(sourceID)
	if err != nil {
		return nil, err
	}
	return s.cache.Fetch(ctx, src.ID, start, end, src.Load)
}

// EventsForDay returns the events of one source that intersect the
// calendar day containing day, in the display location.
func (s *Service) EventsForDay(ctx context.Context, sourceID string, day time.Time) ([]model.Event, error) {
	dayStart := s.startOfDay(day)
	dayEnd := dayStart.AddDate(0, 0, 1)
	events, err := s.EventsForRange(ctx, sourceID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return OnDay(events, dayStart, dayEnd), nil
}

// Freshness returns when the entry for the exact range was stored and
// whether it is still within the TTL. ok is false if nothing is cached.
func (s *Service) Freshness(sourceID string, start, end time.Time) (updated time.Time, fresh, ok bool) {
	e, ok := s.LastKnown(sourceID, start, end)
	if !ok {
		return time.Time{}, false, false
	}
	return e.Timestamp, s.cache.IsFresh(e), true
}

// LastKnown returns the stored entry for the exact range even when it has
// expired, for callers that prefer old events over none.
func (s *Service) LastKnown(sourceID string, start, end time.Time) (model.CacheEntry, bool) {
	return s.cache.Peek(cache.Key(sourceID, start, end))
}

// Prune drops cache entries older than maxAge.
func (s *Service) Prune(maxAge time.Duration) int {
	return s.cache.Prune(maxAge)
}

func (s *Service) startOfDay(t time.Time) time.Time {
	return midnight(t.In(s.loc))
}

// OnDay copies the events overlapping [dayStart, dayEnd) into a new slice.
func OnDay(events []model.Event, dayStart, dayEnd time.Time) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Overlaps(dayStart, dayEnd) {
			out = append(out, ev)
		}
	}
	return out
}
