package snapcache

import "time"

const (
	defaultMaxAge        = 24 * time.Hour
	defaultSchemaVersion = 1
	defaultOpenTimeout   = 3 * time.Second
	defaultDebounce      = 100 * time.Millisecond
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
