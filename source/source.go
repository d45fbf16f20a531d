package source

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scipunch/feedsorter/cache"
	"github.com/scipunch/feedsorter/fetcher/types"
	"github.com/scipunch/feedsorter/item"
	"github.com/scipunch/feedsorter/parser"
)

// DefaultTimeout is the age after which a cache entry is stale
const DefaultTimeout = 1800 * time.Second

// Source serves the items of one remote feed through its cache entry.
// GetItems never fails: every error degrades to stale cache or an empty list.
type Source struct {
	id       string
	location string
	fetcher  types.Fetcher
	parser   parser.Parser
	store    cache.Store
	timeout  time.Duration
	logger   *slog.Logger

	// refreshes collapses concurrent refreshes of this source
	refreshes singleflight.Group
}

type Option func(*Source)

// WithTimeout sets the staleness threshold
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		s.logger = l
	}
}

func New(id, location string, f types.Fetcher, p parser.Parser, store cache.Store, opts ...Option) *Source {
	s := &Source{
		id:       id,
		location: location,
		fetcher:  f,
		parser:   p,
		store:    store,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("source", id)
	return s
}

func (s *Source) ID() string {
	return s.id
}

// GetItems returns the items of the source. A network fetch happens when there is no
// cache entry, or when the entry is stale and allowRefresh is set.
func (s *Source) GetItems(ctx context.Context, allowRefresh bool) []item.Item {
	entry, found := s.cached(ctx)
	if !found {
		return s.refresh(ctx, nil)
	}

	age, ok, err := s.store.Age(ctx, s.id)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("failed to read cache age", "error", err)
		}
		return s.refresh(ctx, nil)
	}

	if age < s.timeout {
		return entry.Items
	}
	if !allowRefresh {
		s.logger.Debug("serving stale cache, refresh not permitted", "age", age)
		return entry.Items
	}
	return s.refresh(ctx, &entry)
}

func (s *Source) cached(ctx context.Context) (cache.Entry, bool) {
	entry, found, err := s.store.Get(ctx, s.id)
	if err != nil {
		s.logger.Warn("cache unavailable, treating as absent", "error", err)
		return cache.Entry{}, false
	}
	if found && entry.Items == nil {
		entry.Items = []item.Item{}
	}
	return entry, found
}

// refresh runs one shared fetch for all concurrent callers. The fetch is detached from
// the caller's cancellation and bounded by the fetcher's own timeout, a caller whose
// context ends first gets the fallback.
func (s *Source) refresh(ctx context.Context, cached *cache.Entry) []item.Item {
	shared := context.WithoutCancel(ctx)
	ch := s.refreshes.DoChan(s.id, func() (any, error) {
		return s.fetchAndStore(shared, cached), nil
	})

	select {
	case res := <-ch:
		return res.Val.([]item.Item)
	case <-ctx.Done():
		s.logger.Warn("refresh abandoned", "error", ctx.Err())
		return fallback(cached)
	}
}

func (s *Source) fetchAndStore(ctx context.Context, cached *cache.Entry) []item.Item {
	var hint *types.Hint
	if cached != nil {
		hint = &types.Hint{LastWrite: cached.WrittenAt, ETag: cached.ETag}
	}

	out := s.fetcher.Fetch(ctx, s.location, hint)
	switch out.Status {
	case types.Modified:
		items, err := s.parser.Parse(out.Payload)
		if err != nil {
			s.logger.Warn("failed to transform payload", "error", err)
			return fallback(cached)
		}
		if items == nil {
			items = []item.Item{}
		}
		for i := range items {
			items[i].Timestamp = item.StoredTime(items[i].Timestamp)
		}
		if err := s.store.Put(ctx, s.id, cache.Entry{ETag: out.ETag, Items: items}); err != nil {
			s.logger.Warn("failed to write cache", "error", err)
		}
		s.logger.Info("source refreshed", "items", len(items), "etag", out.ETag)
		return items

	case types.NotModified:
		if cached == nil {
			s.logger.Warn("unconditional fetch reported not modified, treating as failure")
			return fallback(nil)
		}
		if err := s.store.Touch(ctx, s.id); err != nil {
			s.logger.Warn("failed to touch cache", "error", err)
		}
		s.logger.Debug("source not modified")
		return cached.Items

	default:
		s.logger.Warn("fetch failed", "error", out.Err)
		return fallback(cached)
	}
}

func fallback(cached *cache.Entry) []item.Item {
	if cached == nil {
		return []item.Item{}
	}
	return cached.Items
}
