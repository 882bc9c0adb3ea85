package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"familyboard/internal/calendar"
	"familyboard/internal/config"
	appLog "familyboard/internal/log"
	"familyboard/internal/metrics"
	"familyboard/internal/model"
)

// boardCacheTTL keeps rendered board responses for repeated page loads.
// Provider data is cached separately by the range cache.
const boardCacheTTL = 30 * time.Second

// maxDays bounds ?days= on the API.
const maxDays = 31

// Server provides the HTTP JSON API over a calendar.Service.
type Server struct {
	cfg     *config.Config
	svc     *calendar.Service
	metrics *metrics.Manager
	mux     *http.ServeMux
	now     func() time.Time

	boardMu    sync.RWMutex
	boardCache map[string]boardCache
}

// boardCache holds a built board and when it was built.
type boardCache struct {
	board     *calendar.Board
	updatedAt time.Time
}

// NewServer constructs a new Server. m may be nil.
func NewServer(cfg *config.Config, svc *calendar.Service, m *metrics.Manager) *Server {
	s := &Server{
		cfg:        cfg,
		svc:        svc,
		metrics:    m,
		mux:        http.NewServeMux(),
		now:        time.Now,
		boardCache: make(map[string]boardCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler with request ids, metrics and
// optional Basic Auth applied.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return s.instrument(h)
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="FamilyBoard", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument tags each request with an X-Request-ID and records its route,
// status and duration.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, rec.status, time.Since(start))
		}
		appLog.Debug("http request", "id", id, "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/sources", s.handleSources)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/board", s.handleBoard)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Sources())
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	SourceID        string        `json:"source_id"`
	Events          []model.Event `json:"events"`
	RangeStart      time.Time     `json:"range_start"`
	RangeEnd        time.Time     `json:"range_end"`
	UpdatedAt       time.Time     `json:"updated_at,omitzero"`
	Stale           bool          `json:"stale"`
	Error           string        `json:"error,omitempty"`
	DisplayTimeZone string        `json:"display_timezone"`
}

// handleEvents returns the normalized events of one source.
//
// GET /api/events?source=calendar.alice&from=today&days=1
//   - source: configured source id (required)
//   - from:   start day, ISO date or expression like "tomorrow" (default today)
//   - days:   number of days (default 1); one day is filtered to events
//     intersecting that day
//
// When the provider fails and an older result for the same range exists,
// it is returned with stale=true.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	loc := s.svc.Location()

	sourceID := q.Get("source")
	from, err := calendar.ParseDay(q.Get("from"), s.now(), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days := clampDays(parseIntDefault(q.Get("days"), 1), 1)
	end := from.AddDate(0, 0, days)

	var events []model.Event
	if days == 1 {
		events, err = s.svc.EventsForDay(ctx, sourceID, from)
	} else {
		events, err = s.svc.EventsForRange(ctx, sourceID, from, end)
	}

	resp := eventsResponse{
		SourceID:        sourceID,
		Events:          events,
		RangeStart:      from,
		RangeEnd:        end,
		DisplayTimeZone: loc.String(),
	}
	switch {
	case errors.Is(err, calendar.ErrMissingSourceID):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, calendar.ErrUnknownSource):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		entry, ok := s.svc.LastKnown(sourceID, from, end)
		if !ok {
			appLog.Error("api events: fetch failed", err, "source", sourceID)
			writeError(w, http.StatusBadGateway, "failed to load events")
			return
		}
		resp.Events, resp.UpdatedAt, resp.Stale, resp.Error = entry.Events, entry.Timestamp, true, err.Error()
		if days == 1 {
			resp.Events = calendar.OnDay(entry.Events, from, end)
		}
	default:
		resp.UpdatedAt, _, _ = s.svc.Freshness(sourceID, from, end)
	}
	if resp.Events == nil {
		resp.Events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBoard returns the multi-day board for all sources.
//
// GET /api/board?from=today&days=5
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := calendar.ParseDay(q.Get("from"), s.now(), s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days := clampDays(parseIntDefault(q.Get("days"), s.cfg.Days), s.cfg.Days)

	key := from.Format("2006-01-02") + "/" + strconv.Itoa(days)
	now := s.now()

	s.boardMu.RLock()
	bc, ok := s.boardCache[key]
	s.boardMu.RUnlock()
	if ok && now.Sub(bc.updatedAt) < boardCacheTTL {
		writeJSON(w, http.StatusOK, bc.board)
		return
	}

	b, err := s.svc.Board(r.Context(), from, days)
	if err != nil {
		appLog.Error("api board: build failed", err, "from", key)
		writeError(w, http.StatusInternalServerError, "failed to build board")
		return
	}
	s.StoreBoard(b, days)
	writeJSON(w, http.StatusOK, b)
}

// StoreBoard records a board built elsewhere (e.g. by the refresh job) so
// the next request for the same range is served from memory.
func (s *Server) StoreBoard(b *calendar.Board, days int) {
	key := b.From.Format("2006-01-02") + "/" + strconv.Itoa(days)
	now := s.now()

	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	for k, bc := range s.boardCache {
		if now.Sub(bc.updatedAt) >= boardCacheTTL {
			delete(s.boardCache, k)
		}
	}
	s.boardCache[key] = boardCache{board: b, updatedAt: now}
}

func clampDays(n, def int) int {
	if n <= 0 {
		return def
	}
	return min(n, maxDays)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
