package model

import "time"

// RawEvent is an untyped record as returned by a provider, typically a
// decoded JSON object. Start/End may be a plain timestamp string, a
// time.Time, or a nested object carrying "dateTime" or "date".
type RawEvent map[string]any

// Event is the canonical timed representation of a calendar entry
// produced by internal/normalize. End is always strictly after Start.
type Event struct {
	SourceID string `json:"source_id"` // attached by the caller, not the provider
	UID      string `json:"uid,omitempty"`

	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	AllDay bool `json:"all_day"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Meta carries the remaining provider fields opaquely.
	Meta map[string]any `json:"meta,omitempty"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps reports whether the event intersects [from, to). An event that
// ends exactly at from does not overlap.
func (e Event) Overlaps(from, to time.Time) bool {
	return e.Start.Before(to) && e.End.After(from)
}

// CacheKey identifies an exact fetched range for one source.
type CacheKey struct {
	SourceID string
	StartISO string
	EndISO   string
}

func (k CacheKey) String() string {
	return k.SourceID + "|" + k.StartISO + "|" + k.EndISO
}

// CacheEntry is an immutable snapshot of a successful fetch.
type CacheEntry struct {
	Key       CacheKey
	Timestamp time.Time
	Events    []Event
}

// Age returns how old the entry is relative to now.
func (c CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(c.Timestamp)
}
