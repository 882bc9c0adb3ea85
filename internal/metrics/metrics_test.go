package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"familyboard/internal/cache"
	"familyboard/internal/calendar"
	"familyboard/internal/metrics"
)

var (
	_ cache.Observer         = (*metrics.Manager)(nil)
	_ calendar.BoardObserver = (*metrics.Manager)(nil)
)

func TestManager(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		m := metrics.NewManager()

		Convey("When cache outcomes are recorded", func() {
			m.CacheHit("calendar.a")
			m.CacheHit("calendar.a")
			m.CacheMiss("calendar.a")
			m.RecordsDropped("calendar.a", 3)
			m.BoardBuilt(2)
			m.ObserveHTTP("/api/board", 200, 15*time.Millisecond)
			m.Refreshed(time.Unix(1700000000, 0))

			Convey("Then they are exported", func() {
				rec := httptest.NewRecorder()
				m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
				body := rec.Body.String()

				So(body, ShouldContainSubstring, `familyboard_cache_hits_total{source="calendar.a"} 2`)
				So(body, ShouldContainSubstring, `familyboard_cache_misses_total{source="calendar.a"} 1`)
				So(body, ShouldContainSubstring, `familyboard_normalize_dropped_total{source="calendar.a"} 3`)
				So(body, ShouldContainSubstring, "familyboard_layout_overflow_events_total 2")
				So(body, ShouldContainSubstring, `familyboard_http_requests_total{route="/api/board",status="200"} 1`)
				So(body, ShouldContainSubstring, "familyboard_board_last_refresh_unix")
			})

			Convey("Then the registry gathers without error", func() {
				families, err := m.Registry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}
