package snapcache

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the tunables an application usually wants to set per
// deployment. Load it with ConfigFromEnv and apply it with Configure.
type Config struct {
	MaxAge        time.Duration `env:"SNAPCACHE_MAX_AGE" envDefault:"24h"`
	SchemaVersion int           `env:"SNAPCACHE_SCHEMA_VERSION" envDefault:"1"`
	Owner         string        `env:"SNAPCACHE_OWNER"`
	OpenTimeout   time.Duration `env:"SNAPCACHE_OPEN_TIMEOUT" envDefault:"3s"`
	Debounce      time.Duration `env:"SNAPCACHE_DEBOUNCE" envDefault:"100ms"`
	Persist       bool          `env:"SNAPCACHE_PERSIST" envDefault:"true"`
}

// ConfigFromEnv parses Config from SNAPCACHE_* environment variables.
// A negative SNAPCACHE_MAX_AGE disables expiry.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SchemaVersion < 1 {
		return Config{}, fmt.Errorf("SNAPCACHE_SCHEMA_VERSION must be >= 1, got %d", cfg.SchemaVersion)
	}
	if cfg.MaxAge < 0 {
		cfg.MaxAge = NeverExpire
	}
	return cfg, nil
}

// Configure copies cfg onto opts. Fields the config does not cover (storage
// key, backend, codec, logger, hooks) are left as they are.
func Configure[T any](opts *CoordinatorOptions[T], cfg Config) {
	opts.MaxAge = cfg.MaxAge
	opts.SchemaVersion = cfg.SchemaVersion
	opts.Owner = cfg.Owner
	opts.OpenTimeout = cfg.OpenTimeout
	opts.Debounce = cfg.Debounce
	opts.Persist = cfg.Persist
}
