package calendar

import (
	"context"
	"net/http"
	"time"

	"familyboard/internal/cache"
	"familyboard/internal/config"
	"familyboard/internal/model"
	"familyboard/internal/provider/hass"
	"familyboard/internal/provider/ics"
)

// Source is one column of the board together with the loader that feeds it.
type Source struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`

	Load cache.Loader `json:"-"`
}

// SourcesFromConfig builds a Source per configured calendar. Home Assistant
// sources share one client; ICS sources share one provider and disk cache.
func SourcesFromConfig(cfg *config.Config, httpClient *http.Client) []Source {
	hc := hass.NewClient(cfg.Hass.URL, cfg.Hass.Token, httpClient)

	urls := make(map[string]string)
	for _, cal := range cfg.Calendars {
		if cal.Type == config.SourceICS {
			urls[cal.ID] = cal.URL
		}
	}
	ip := ics.NewProvider(ics.NewFetcher(cfg.CacheDir, httpClient), urls)

	out := make([]Source, 0, len(cfg.Calendars))
	for _, cal := range cfg.Calendars {
		src := Source{ID: cal.ID, Name: cal.Name, Type: cal.Type, Color: cal.Color}
		switch cal.Type {
		case config.SourceHass:
			src.Load = hassLoader(hc, cal.Entity)
		case config.SourceTodo:
			src.Load = todoLoader(hc, cal.Entity)
		case config.SourceICS:
			src.Load = ip.Load
		default:
			continue
		}
		out = append(out, src)
	}
	return out
}

func hassLoader(hc *hass.Client, entity string) cache.Loader {
	return func(ctx context.Context, _ string, start, end time.Time) ([]model.RawEvent, error) {
		return hc.CalendarEvents(ctx, entity, start, end)
	}
}

// todoLoader ignores the range: the todo service has no range filter and
// the day filter drops items outside it.
func todoLoader(hc *hass.Client, entity string) cache.Loader {
	return func(ctx context.Context, _ string, _, _ time.Time) ([]model.RawEvent, error) {
		items, err := hc.TodoItems(ctx, entity)
		if err != nil {
			return nil, err
		}
		return hass.TodoRawEvents(items), nil
	}
}
