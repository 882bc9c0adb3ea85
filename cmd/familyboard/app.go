package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"familyboard/internal/cache"
	"familyboard/internal/calendar"
	"familyboard/internal/config"
	"familyboard/internal/layout"
	appLog "familyboard/internal/log"
	"familyboard/internal/metrics"
)

const defaultConfigPath = "/etc/familyboard/config.yaml"

// app is the wired set of components shared by all commands.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	metrics *metrics.Manager
	svc     *calendar.Service
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("FAMILYBOARD_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadApp loads and validates the config, applies environment overrides
// and wires the cache, providers and calendar service.
func loadApp() (*app, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	loc := resolveLocationOrLocal(cfg.Timezone)
	m := metrics.NewManager()
	rc := cache.New(
		cache.WithTTL(time.Duration(cfg.CacheTTLSeconds)*time.Second),
		cache.WithLocation(loc),
		cache.WithLoadTimeout(30*time.Second),
		cache.WithObserver(m),
	)
	sources := calendar.SourcesFromConfig(cfg, &http.Client{Timeout: 20 * time.Second})
	svc := calendar.New(rc, sources, calendar.Options{
		Location:  loc,
		Window:    layout.HoursWindow(cfg.DayStartHour, cfg.DayEndHour),
		Days:      cfg.Days,
		MaxLanes:  cfg.MaxLanes,
		MaxAllDay: cfg.MaxAllDay,
		Observer:  m,
	})

	appLog.Info("effective config",
		"config_path", path,
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"refresh", cfg.RefreshCron,
		"days", cfg.Days,
		"window", fmt.Sprintf("%02d-%02d", cfg.DayStartHour, cfg.DayEndHour),
		"max_lanes", cfg.MaxLanes,
		"sources", len(sources),
	)
	return &app{cfg: cfg, loc: loc, metrics: m, svc: svc}, nil
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
