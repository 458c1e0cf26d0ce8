// Package kv is the shared key/value store used for render caching and
// request replay. Redis backs it in production; the memory store serves tests
// and single-instance runs.
package kv

import (
	"context"
	"time"
)

type Store interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value with a TTL. A zero TTL keeps the key until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes only when the key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
