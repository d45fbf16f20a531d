package cache

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/scipunch/feedsorter/item"
)

// ErrStoreUnavailable wraps every I/O failure of a store.
// Callers treat it as "no cache available".
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Entry is the persisted unit per source
type Entry struct {
	ETag      string
	Items     []item.Item
	WrittenAt time.Time
}

// Store persists one entry per source identifier.
// Put fully replaces the previous entry; readers never observe a half-written one.
type Store interface {
	// Get returns the entry for id, found is false when none exists
	Get(ctx context.Context, id string) (entry Entry, found bool, err error)
	// Put overwrites the entry for id and stamps it with the current time
	Put(ctx context.Context, id string, entry Entry) error
	// Touch moves the write time of an existing entry to now without touching its contents
	Touch(ctx context.Context, id string) error
	// Age returns the time elapsed since the last successful write of id
	Age(ctx context.Context, id string) (age time.Duration, found bool, err error)
	Close() error
}

// Stats contains cache statistics
type Stats struct {
	Entries     int
	Items       int
	OldestWrite time.Time
}

// Maintainer is implemented by stores supporting bulk maintenance
type Maintainer interface {
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Option configures a store
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp and age entries
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DefaultCachePath returns the default cache database path under the XDG cache directory
func DefaultCachePath() string {
	return filepath.Join(xdg.CacheHome, "feedsorter", "cache.db")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var (
	_ Store      = (*SQLiteStore)(nil)
	_ Store      = (*RedisStore)(nil)
	_ Maintainer = (*SQLiteStore)(nil)
	_ Maintainer = (*RedisStore)(nil)
)
