package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var ErrBadDate = errors.New("calendar: unrecognized date")

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDay resolves a board start such as "2025-03-10", "today",
// "tomorrow" or "next monday" relative to now in loc. The result is
// midnight of the matched day. An empty expression means today.
func ParseDay(expr string, now time.Time, loc *time.Location) (time.Time, error) {
	now = now.In(loc)
	expr = strings.TrimSpace(expr)
	if expr == "" || strings.EqualFold(expr, "today") {
		return midnight(now), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", expr, loc); err == nil {
		return t, nil
	}

	r, err := dateParser.Parse(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrBadDate, expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrBadDate, expr)
	}
	return midnight(r.Time.In(loc)), nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
