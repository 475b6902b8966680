package xcache

import (
	"time"

	"github.com/eko/gocache/lib/v4/store"
)

// Option forwards per-call store options, so callers do not import the
// underlying cache library directly.
type Option = store.Option

// WithExpiration overrides the cache TTL for a single Set call.
func WithExpiration(expiration time.Duration) Option {
	return store.WithExpiration(expiration)
}
