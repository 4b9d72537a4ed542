package config

import (
	"github.com/caarlos0/env/v11"
)

// parseEnv overlays Config fields from environment variables using the `env`
// struct tags. Unset variables leave the current values untouched, so the
// environment always wins over defaults, JSON and flags. A malformed value
// panics; a half-applied configuration is worse than a refusal to start.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
