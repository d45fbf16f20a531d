package aggregator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scipunch/feedsorter/item"
)

// DefaultMaxFreshFeeds is the number of sources allowed to hit the network per cycle
const DefaultMaxFreshFeeds = 1

// Source is anything that can hand out its items, optionally refreshing them first
type Source interface {
	ID() string
	GetItems(ctx context.Context, allowRefresh bool) []item.Item
}

// Aggregator merges the items of many sources, newest first.
// Each cycle a random subset of at most maxFresh sources may refresh from the network.
type Aggregator struct {
	sources       []Source
	itemsToReturn int
	maxFresh      int
	workers       int
	logger        *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Aggregator)

// WithMaxFreshFeeds sets the refresh budget per cycle
func WithMaxFreshFeeds(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.maxFresh = n
		}
	}
}

// WithWorkers bounds the number of sources queried concurrently, 0 means unbounded
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.workers = n
		}
	}
}

// WithRand sets the random source used to permute sources
func WithRand(r *rand.Rand) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.rnd = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

func New(sources []Source, itemsToReturn int, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources:       append([]Source(nil), sources...),
		itemsToReturn: itemsToReturn,
		maxFresh:      DefaultMaxFreshFeeds,
		logger:        slog.Default(),
		rnd:           rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetItems runs one aggregation cycle and returns at most limit items, newest first.
// A limit <= 0 uses the count the aggregator was built with.
func (a *Aggregator) GetItems(ctx context.Context, limit int) []item.Item {
	if limit <= 0 {
		limit = a.itemsToReturn
	}
	start := time.Now()

	order := a.permute()
	results := make([][]item.Item, len(order))

	var g errgroup.Group
	if a.workers > 0 {
		g.SetLimit(a.workers)
	}
	for i, src := range order {
		allowRefresh := i < a.maxFresh
		g.Go(func() error {
			results[i] = src.GetItems(ctx, allowRefresh)
			return nil
		})
	}
	_ = g.Wait()

	var merged []item.Item
	for _, items := range results {
		merged = append(merged, items...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	if merged == nil {
		merged = []item.Item{}
	}

	a.logger.Debug("aggregation cycle done",
		"sources", len(order),
		"items", len(merged),
		"duration", time.Since(start),
	)
	return merged
}

func (a *Aggregator) permute() []Source {
	order := append([]Source(nil), a.sources...)
	a.mu.Lock()
	a.rnd.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	a.mu.Unlock()
	return order
}
