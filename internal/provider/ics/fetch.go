package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "familyboard/internal/log"
)

// bodyMeta holds HTTP validators for one subscription URL.
type bodyMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS bodies with conditional requests (ETag /
// Last-Modified) and keeps the last good body on disk so an unreachable
// feed still yields data.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher storing bodies under cacheDir. A nil
// client gets a 15 second timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch returns the ICS body for url. fromDisk reports whether the body
// came from the on-disk copy (304, network error or non-OK status).
func (f *Fetcher) Fetch(ctx context.Context, sourceID, url string) (body []byte, fromDisk bool, err error) {
	if url == "" {
		return nil, false, errors.New("ics: source URL is empty")
	}

	dir := f.dirFor(url)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, err
	}

	meta, _ := readMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Warn("ics fetch failed, using stored body", "source", sourceID, "url", redactURL(url), "err", err)
			return cached, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		fresh, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		next := bodyMeta{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := writeBody(dir, next, fresh); err != nil {
			appLog.Error("ics body store failed", err, "source", sourceID, "url", redactURL(url))
		}
		appLog.Debug("ics fetch ok", "source", sourceID, "url", redactURL(url), "bytes", len(fresh))
		return fresh, false, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, false, errors.New("ics: 304 Not Modified without a stored body")
		}
		return cached, true, nil

	default:
		if len(cached) > 0 {
			appLog.Warn("ics fetch non-OK, using stored body", "source", sourceID, "url", redactURL(url), "status", resp.StatusCode)
			return cached, true, nil
		}
		return nil, false, fmt.Errorf("ics: %s", resp.Status)
	}
}

func (f *Fetcher) dirFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func readMeta(dir string) (bodyMeta, error) {
	var meta bodyMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return bodyMeta{}, err
	}
	return meta, nil
}

func writeBody(dir string, meta bodyMeta, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only; subscription paths often embed tokens.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/...(redacted)"
}
