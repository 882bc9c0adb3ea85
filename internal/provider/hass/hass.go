// Package hass reads calendars and todo lists from the Home Assistant REST API.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"familyboard/internal/model"
)

const isoLayout = "2006-01-02T15:04:05.000Z"

// Client talks to one Home Assistant instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client. A nil httpClient gets a 15 second timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// CalendarEvents returns the raw events of a calendar entity in [start, end].
func (c *Client) CalendarEvents(ctx context.Context, entity string, start, end time.Time) ([]model.RawEvent, error) {
	if entity == "" {
		return nil, errors.New("hass: missing calendar entity")
	}
	q := url.Values{}
	q.Set("start", start.UTC().Format(isoLayout))
	q.Set("end", end.UTC().Format(isoLayout))
	path := "/api/calendars/" + url.PathEscape(entity) + "?" + q.Encode()

	var out []model.RawEvent
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TodoItem is one entry of a todo list.
type TodoItem struct {
	UID         string `json:"uid"`
	Summary     string `json:"summary"`
	Status      string `json:"status"`
	Due         string `json:"due,omitempty"`
	Description string `json:"description,omitempty"`
}

// TodoItems returns the items of a todo entity.
func (c *Client) TodoItems(ctx context.Context, entity string) ([]TodoItem, error) {
	if entity == "" {
		return nil, errors.New("hass: missing todo entity")
	}
	var payload json.RawMessage
	body := map[string]any{"entity_id": entity}
	if err := c.do(ctx, http.MethodPost, "/api/services/todo/get_items?return_response", body, &payload); err != nil {
		return nil, err
	}
	return decodeTodoItems(payload, entity)
}

// decodeTodoItems accepts the response shapes seen across versions: a bare
// array, {"items": [...]}, {"<entity>": {"items": [...]}} and any of those
// wrapped in "service_response" or "response".
func decodeTodoItems(data json.RawMessage, entity string) ([]TodoItem, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var items []TodoItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("hass: decode todo items: %w", err)
	}
	for _, wrap := range []string{"service_response", "response"} {
		if inner, ok := obj[wrap]; ok {
			return decodeTodoItems(inner, entity)
		}
	}
	if raw, ok := obj["items"]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("hass: decode todo items: %w", err)
		}
		return items, nil
	}
	if raw, ok := obj[entity]; ok {
		return decodeTodoItems(raw, entity)
	}
	if len(obj) == 1 {
		for _, raw := range obj {
			return decodeTodoItems(raw, entity)
		}
	}
	return nil, nil
}

// TodoRawEvents converts open items with a due value into raw events. A
// date-only due becomes an all-day record.
func TodoRawEvents(items []TodoItem) []model.RawEvent {
	out := make([]model.RawEvent, 0, len(items))
	for _, it := range items {
		due := strings.TrimSpace(it.Due)
		if due == "" || it.Status == "completed" {
			continue
		}
		when := map[string]any{"dateTime": due}
		if len(due) == len("2006-01-02") {
			when = map[string]any{"date": due}
		}
		raw := model.RawEvent{
			"uid":     it.UID,
			"summary": it.Summary,
			"start":   when,
			"status":  it.Status,
			"kind":    "todo",
		}
		if it.Description != "" {
			raw["description"] = it.Description
		}
		out = append(out, raw)
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("hass: %s %s: %s: %s", method, strings.SplitN(path, "?", 2)[0], resp.Status, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hass: decode %s: %w", strings.SplitN(path, "?", 2)[0], err)
	}
	return nil
}
