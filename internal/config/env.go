package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides, e.g. FAMILYBOARD_MAX_LANES.
const EnvPrefix = "FAMILYBOARD_"

// nested maps flattened env keys onto dotted config paths.
var nested = map[string]string{
	"hass_url":   "hass.url",
	"hass_token": "hass.token",
}

// ApplyEnv overlays FAMILYBOARD_* variables (after loading an optional
// .env file from the working directory) onto cfg. Only scalar keys are
// supported; calendars stay file-only.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return applyEnv(cfg, env.Provider(EnvPrefix, ".", envKey))
}

func applyEnv(cfg *Config, p koanf.Provider) error {
	k := koanf.New(".")
	if err := k.Load(p, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Normalize()
	return nil
}

// envKey maps FAMILYBOARD_MAX_LANES -> max_lanes and FAMILYBOARD_HASS_URL -> hass.url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if k, ok := nested[s]; ok {
		return k
	}
	return s
}
