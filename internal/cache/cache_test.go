package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"familyboard/internal/cache"
	"familyboard/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func countingLoader(calls *int32, raws []model.RawEvent) cache.Loader {
	return func(_ context.Context, _ string, _, _ time.Time) ([]model.RawEvent, error) {
		atomic.AddInt32(calls, 1)
		return raws, nil
	}
}

func TestRangeCache(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	raws := []model.RawEvent{
		{"summary": "A", "start": "2025-03-10T09:00:00Z", "end": "2025-03-10T10:00:00Z"},
		{"summary": "no start"},
	}

	Convey("Given a cache with a controllable clock", t, func() {
		clock := &fakeClock{now: time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)}
		c := cache.New(cache.WithClock(clock.Now), cache.WithLocation(time.UTC))
		var calls int32
		loader := countingLoader(&calls, raws)

		Convey("When fetching for the first time", func() {
			events, err := c.Fetch(ctx, "calendar.a", start, end, loader)

			Convey("Then the loader runs and records are normalized", func() {
				So(err, ShouldBeNil)
				So(atomic.LoadInt32(&calls), ShouldEqual, int32(1))
				So(len(events), ShouldEqual, 1)
				So(events[0].SourceID, ShouldEqual, "calendar.a")
			})

			Convey("And fetching again within the TTL", func() {
				clock.Advance(cache.DefaultTTL - time.Millisecond)
				again, err := c.Fetch(ctx, "calendar.a", start, end, loader)

				Convey("Then the stored slice is returned without loading", func() {
					So(err, ShouldBeNil)
					So(atomic.LoadInt32(&calls), ShouldEqual, int32(1))
					So(&again[0], ShouldPointTo, &events[0])
				})
			})

			Convey("And fetching again after the TTL", func() {
				clock.Advance(cache.DefaultTTL)
				_, err := c.Fetch(ctx, "calendar.a", start, end, loader)

				Convey("Then the loader runs again", func() {
					So(err, ShouldBeNil)
					So(atomic.LoadInt32(&calls), ShouldEqual, int32(2))
				})
			})

			Convey("And fetching a sub-range", func() {
				_, err := c.Fetch(ctx, "calendar.a", start, end.AddDate(0, 0, -1), loader)

				Convey("Then it is a miss", func() {
					So(err, ShouldBeNil)
					So(atomic.LoadInt32(&calls), ShouldEqual, int32(2))
					So(c.Len(), ShouldEqual, 2)
				})
			})

			Convey("Then the entry timestamp is exposed", func() {
				e, ok := c.Peek(cache.Key("calendar.a", start, end))
				So(ok, ShouldBeTrue)
				So(e.Timestamp, ShouldEqual, clock.Now())
				So(c.IsFresh(e), ShouldBeTrue)

				clock.Advance(cache.DefaultTTL)
				So(c.IsFresh(e), ShouldBeFalse)
			})
		})

		Convey("When the loader fails", func() {
			boom := errors.New("boom")
			failing := func(context.Context, string, time.Time, time.Time) ([]model.RawEvent, error) {
				atomic.AddInt32(&calls, 1)
				return nil, boom
			}
			_, err := c.Fetch(ctx, "calendar.a", start, end, failing)

			Convey("Then the error propagates and nothing is cached", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(c.Len(), ShouldEqual, 0)

				_, err = c.Fetch(ctx, "calendar.a", start, end, failing)
				So(errors.Is(err, boom), ShouldBeTrue)
				So(atomic.LoadInt32(&calls), ShouldEqual, int32(2))
			})
		})

		Convey("When arguments are invalid", func() {
			_, errSource := c.Fetch(ctx, "", start, end, loader)
			_, errLoader := c.Fetch(ctx, "calendar.a", start, end, nil)
			_, errRange := c.Fetch(ctx, "calendar.a", end, start, loader)

			Convey("Then it fails fast without loading", func() {
				So(errors.Is(errSource, cache.ErrMissingSourceID), ShouldBeTrue)
				So(errors.Is(errLoader, cache.ErrNilLoader), ShouldBeTrue)
				So(errors.Is(errRange, cache.ErrInvalidRange), ShouldBeTrue)
				So(atomic.LoadInt32(&calls), ShouldEqual, int32(0))
			})
		})

		Convey("When many callers fetch the same key concurrently", func() {
			release := make(chan struct{})
			slow := func(context.Context, string, time.Time, time.Time) ([]model.RawEvent, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return raws, nil
			}

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = c.Fetch(ctx, "calendar.a", start, end, slow)
				}()
			}
			time.Sleep(20 * time.Millisecond)
			close(release)
			wg.Wait()

			Convey("Then the loader runs once", func() {
				So(atomic.LoadInt32(&calls), ShouldEqual, int32(1))
			})
		})

		Convey("When one of two waiting callers gives up", func() {
			release := make(chan struct{})
			started := make(chan struct{})
			var loadErr atomic.Value
			blocking := func(lctx context.Context, _ string, _, _ time.Time) ([]model.RawEvent, error) {
				atomic.AddInt32(&calls, 1)
				close(started)
				select {
				case <-release:
					return raws, nil
				case <-lctx.Done():
					loadErr.Store(lctx.Err())
					return nil, lctx.Err()
				}
			}

			actx, cancelA := context.WithCancel(ctx)
			defer cancelA()
			errA := make(chan error, 1)
			go func() {
				_, err := c.Fetch(actx, "calendar.a", start, end, blocking)
				errA <- err
			}()
			<-started

			type result struct {
				events []model.Event
				err    error
			}
			resB := make(chan result, 1)
			go func() {
				events, err := c.Fetch(context.Background(), "calendar.a", start, end, blocking)
				resB <- result{events, err}
			}()

			time.Sleep(20 * time.Millisecond)
			cancelA()
			gotA := <-errA
			time.Sleep(10 * time.Millisecond)
			close(release)
			gotB := <-resB

			Convey("Then only that caller fails", func() {
				So(errors.Is(gotA, context.Canceled), ShouldBeTrue)
				So(loadErr.Load(), ShouldBeNil)
				So(gotB.err, ShouldBeNil)
				So(gotB.events, ShouldHaveLength, 1)
				So(atomic.LoadInt32(&calls), ShouldEqual, int32(1))
			})

			Convey("Then the shared result is cached", func() {
				e, ok := c.Peek(cache.Key("calendar.a", start, end))
				So(ok, ShouldBeTrue)
				So(c.IsFresh(e), ShouldBeTrue)
			})
		})

		Convey("When pruning old entries", func() {
			_, _ = c.Fetch(ctx, "calendar.a", start, end, loader)
			clock.Advance(time.Hour)
			_, _ = c.Fetch(ctx, "calendar.b", start, end, loader)

			removed := c.Prune(30 * time.Minute)

			Convey("Then only the old entry is removed", func() {
				So(removed, ShouldEqual, 1)
				So(c.Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestKey(t *testing.T) {
	Convey("Given instants in different zones", t, func() {
		utc := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
		local := utc.In(time.FixedZone("X", 3600))

		Convey("Then keys use the UTC ISO form", func() {
			k := cache.Key("s", local, local)
			So(k.StartISO, ShouldEqual, "2025-03-10T08:00:00.000Z")
			So(k, ShouldResemble, cache.Key("s", utc, utc))
			So(k.String(), ShouldEqual, "s|2025-03-10T08:00:00.000Z|2025-03-10T08:00:00.000Z")
		})
	})
}
