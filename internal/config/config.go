package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment overrides live in env.go.

// Source types understood by internal/calendar.
const (
	SourceHass = "hass" // Home Assistant calendar entity
	SourceTodo = "todo" // Home Assistant todo list; due items become events
	SourceICS  = "ics"  // ICS subscription URL
)

var ErrInvalidConfig = errors.New("invalid config")

// CalendarConfig describes a single calendar or task-list source.
type CalendarConfig struct {
	// ID is the source identifier attached to every event. Defaults to
	// Entity, then URL.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label (usually the person).
	Name string `yaml:"name" json:"name"`
	// Type is one of "hass", "todo", "ics". Defaults to "hass".
	Type string `yaml:"type" json:"type"`
	// Entity is the Home Assistant entity id for hass/todo sources.
	Entity string `yaml:"entity,omitempty" json:"entity,omitempty"`
	// URL is the subscription endpoint for ics sources.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Color is passed through to the board for rendering.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// HassConfig points at the Home Assistant REST API.
type HassConfig struct {
	URL   string `yaml:"url" json:"url"`
	Token string `yaml:"token" json:"-"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule used to prewarm the board.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Days is the number of day columns on the board.
	Days int `yaml:"days" json:"days"`

	// DayStartHour / DayEndHour bound the visible timed grid.
	DayStartHour int `yaml:"day_start_hour" json:"day_start_hour"`
	DayEndHour   int `yaml:"day_end_hour" json:"day_end_hour"`

	// MaxLanes caps side-by-side events per overlap cluster.
	MaxLanes int `yaml:"max_lanes" json:"max_lanes"`

	// MaxAllDay caps all-day chips per day; the rest are counted.
	MaxAllDay int `yaml:"max_all_day" json:"max_all_day"`

	// CacheTTLSeconds is how long a fetched range is reused.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// CacheDir stores ICS bodies for conditional requests.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Hass HassConfig `yaml:"hass" json:"hass"`

	// Calendars is the list of sources shown on the board.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "Europe/London",
		LogLevel:        "info",
		WeekStart:       "monday",
		RefreshCron:     "*/5 * * * *",
		Days:            5,
		DayStartHour:    6,
		DayEndHour:      22,
		MaxLanes:        3,
		MaxAllDay:       6,
		CacheTTLSeconds: 300,
		CacheDir:        "/var/lib/familyboard/ics-cache",
		Calendars:       []CalendarConfig{},
		BasicAuth:       nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = def.WeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.Days <= 0 {
		c.Days = def.Days
	}
	if c.DayStartHour < 0 || c.DayStartHour > 23 {
		c.DayStartHour = def.DayStartHour
	}
	if c.DayEndHour <= c.DayStartHour || c.DayEndHour > 24 {
		c.DayEndHour = 24
	}
	if c.MaxLanes <= 0 {
		c.MaxLanes = def.MaxLanes
	}
	if c.MaxAllDay <= 0 {
		c.MaxAllDay = def.MaxAllDay
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = def.CacheTTLSeconds
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		cal := &c.Calendars[i]
		if cal.Type == "" {
			cal.Type = SourceHass
		}
		if cal.ID == "" {
			if cal.Entity != "" {
				cal.ID = cal.Entity
			} else {
				cal.ID = cal.URL
			}
		}
		if cal.Name == "" {
			cal.Name = cal.ID
		}
	}
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Calendars))
	for i, cal := range c.Calendars {
		if cal.ID == "" {
			return fmt.Errorf("%w: calendars[%d] has no id, entity or url", ErrInvalidConfig, i)
		}
		if _, dup := seen[cal.ID]; dup {
			return fmt.Errorf("%w: duplicate calendar id %q", ErrInvalidConfig, cal.ID)
		}
		seen[cal.ID] = struct{}{}

		switch cal.Type {
		case SourceHass, SourceTodo:
			if cal.Entity == "" {
				return fmt.Errorf("%w: calendar %q needs an entity", ErrInvalidConfig, cal.ID)
			}
			if c.Hass.URL == "" {
				return fmt.Errorf("%w: calendar %q needs hass.url", ErrInvalidConfig, cal.ID)
			}
		case SourceICS:
			if cal.URL == "" {
				return fmt.Errorf("%w: calendar %q needs a url", ErrInvalidConfig, cal.ID)
			}
		default:
			return fmt.Errorf("%w: calendar %q has unknown type %q", ErrInvalidConfig, cal.ID, cal.Type)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".familyboard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
