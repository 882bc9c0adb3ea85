// Package ics loads events from ICS subscriptions. Feeds are fetched with
// conditional requests, parsed with golang-ical and recurring events are
// expanded with rrule-go into the requested range.
package ics

import (
	"context"
	"fmt"
	"time"

	"familyboard/internal/model"
)

// Provider serves raw records for ICS sources keyed by source id.
type Provider struct {
	fetcher        *Fetcher
	urls           map[string]string
	maxOccurrences int
}

// NewProvider creates a Provider. urls maps source id to subscription URL.
func NewProvider(fetcher *Fetcher, urls map[string]string) *Provider {
	return &Provider{fetcher: fetcher, urls: urls, maxOccurrences: defaultMaxOccurrences}
}

// Load fetches and expands the feed for sourceID within [start, end]. It
// has the cache.Loader signature.
func (p *Provider) Load(ctx context.Context, sourceID string, start, end time.Time) ([]model.RawEvent, error) {
	url, ok := p.urls[sourceID]
	if !ok {
		return nil, fmt.Errorf("ics: unknown source %q", sourceID)
	}
	body, _, err := p.fetcher.Fetch(ctx, sourceID, url)
	if err != nil {
		return nil, err
	}
	events, err := parseCalendar(sourceID, body)
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", sourceID, err)
	}
	return expand(sourceID, events, start, end, p.maxOccurrences), nil
}
