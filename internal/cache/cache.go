// Package cache memoizes provider fetches per (source, exact range) with a
// fixed time-to-live.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	appLog "familyboard/internal/log"
	"familyboard/internal/model"
	"familyboard/internal/normalize"
)

// DefaultTTL is how long a successful fetch is served without reloading.
const DefaultTTL = 300_000 * time.Millisecond

// isoLayout mirrors the millisecond UTC form used for range keys.
const isoLayout = "2006-01-02T15:04:05.000Z"

var (
	ErrMissingSourceID = errors.New("cache: missing source id")
	ErrNilLoader       = errors.New("cache: nil loader")
	ErrInvalidRange    = errors.New("cache: range end is before start")
)

// Loader fetches raw records for one source within [start, end].
type Loader func(ctx context.Context, sourceID string, start, end time.Time) ([]model.RawEvent, error)

// Observer receives cache outcomes. internal/metrics implements it.
type Observer interface {
	CacheHit(sourceID string)
	CacheMiss(sourceID string)
	LoaderFailed(sourceID string)
	RecordsDropped(sourceID string, n int)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)            {}
func (nopObserver) CacheMiss(string)           {}
func (nopObserver) LoaderFailed(string)        {}
func (nopObserver) RecordsDropped(string, int) {}

// Option configures a RangeCache.
type Option func(*RangeCache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *RangeCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *RangeCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the zone used to normalize date-only values.
func WithLocation(loc *time.Location) Option {
	return func(c *RangeCache) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// DefaultLoadTimeout bounds one shared loader call.
const DefaultLoadTimeout = 30 * time.Second

// WithLoadTimeout overrides DefaultLoadTimeout. Non-positive values are ignored.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *RangeCache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(c *RangeCache) {
		if o != nil {
			c.observer = o
		}
	}
}

// RangeCache is an exact-range cache: a sub-range of a cached range is a
// miss. Entries are immutable once stored and replaced wholesale on the
// next miss after expiry. Concurrent fetches of the same key share a single
// loader call, which runs detached from any one caller's cancellation.
type RangeCache struct {
	mu      sync.RWMutex
	entries map[model.CacheKey]model.CacheEntry

	inflight singleflight.Group

	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	loc         *time.Location
	observer    Observer
}

// New creates an empty RangeCache.
func New(opts ...Option) *RangeCache {
	c := &RangeCache{
		entries:     make(map[model.CacheKey]model.CacheEntry),
		ttl:         DefaultTTL,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
		loc:         time.Local,
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the cache key for a source and range.
func Key(sourceID string, start, end time.Time) model.CacheKey {
	return model.CacheKey{
		SourceID: sourceID,
		StartISO: start.UTC().Format(isoLayout),
		EndISO:   end.UTC().Format(isoLayout),
	}
}

// Fetch returns the normalized events for sourceID in [start, end]. A
// fresh entry is returned as stored; callers must not modify the slice.
// On a miss the loader runs, records are normalized (unusable ones are
// dropped) and the result is stored. Loader errors are returned and
// nothing is cached for them. A caller whose ctx ends stops waiting with
// ctx.Err(); the shared load keeps running for the other callers.
func (c *RangeCache) Fetch(ctx context.Context, sourceID string, start, end time.Time, loader Loader) ([]model.Event, error) {
	if sourceID == "" {
		return nil, ErrMissingSourceID
	}
	if loader == nil {
		return nil, ErrNilLoader
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	key := Key(sourceID, start, end)
	if e, ok := c.fresh(key); ok {
		c.observer.CacheHit(sourceID)
		return e.Events, nil
	}

	ch := c.inflight.DoChan(key.String(), func() (any, error) {
		// Another caller may have stored the entry while we waited.
		if e, ok := c.fresh(key); ok {
			c.observer.CacheHit(sourceID)
			return e.Events, nil
		}
		c.observer.CacheMiss(sourceID)

		// The load is shared by every waiting caller, so no single caller's
		// cancellation may abort it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		raws, err := loader(loadCtx, sourceID, start, end)
		if err != nil {
			c.observer.LoaderFailed(sourceID)
			return nil, fmt.Errorf("load %s: %w", sourceID, err)
		}

		events, dropped := normalize.NormalizeAll(raws, sourceID, c.loc)
		if dropped > 0 {
			c.observer.RecordsDropped(sourceID, dropped)
			appLog.Debug("cache: dropped unusable records", "source", sourceID, "dropped", dropped)
		}

		c.store(model.CacheEntry{Key: key, Timestamp: c.now(), Events: events})
		return events, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Event), nil
	}
}

// Peek returns the stored entry for key whether or not it has expired.
// Consumers derive staleness from the entry timestamp.
func (c *RangeCache) Peek(key model.CacheKey) (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// IsFresh reports whether e is still within the TTL.
func (c *RangeCache) IsFresh(e model.CacheEntry) bool {
	return c.now().Sub(e.Timestamp) < c.ttl
}

// Prune removes entries older than maxAge and returns how many were removed.
func (c *RangeCache) Prune(maxAge time.Duration) int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.Timestamp) >= maxAge {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, fresh or stale.
func (c *RangeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *RangeCache) fresh(key model.CacheKey) (model.CacheEntry, bool) {
	e, ok := c.Peek(key)
	if !ok || !c.IsFresh(e) {
		return model.CacheEntry{}, false
	}
	return e, true
}

func (c *RangeCache) store(e model.CacheEntry) {
	c.mu.Lock()
	c.entries[e.Key] = e
	c.mu.Unlock()
}
