// Package kv holds small string settings that must outlive a single cache
// store, such as the application version used for global invalidation.
package kv

import "context"

// Store abstracts where settings live.
// Use Local for in-process (optionally file-backed) settings, or Redis to
// share them across processes.
type Store interface {
	// Get returns the value for key; missing => ("", false, nil).
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; missing keys are not an error.
	Remove(ctx context.Context, key string) error
}
