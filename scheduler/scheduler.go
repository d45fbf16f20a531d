package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scipunch/feedsorter/item"
)

// Cycle runs one aggregation cycle
type Cycle interface {
	GetItems(ctx context.Context, limit int) []item.Item
}

// Scheduler runs aggregation cycles in the background so caches stay warm between reads
type Scheduler struct {
	cron    *cron.Cron
	cycle   Cycle
	timeout time.Duration

	mu      sync.Mutex
	running bool
	runs    int
}

// New registers a job running cycle on the cron spec. timeout bounds a single run.
func New(spec string, cycle Cycle, timeout time.Duration) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		cycle:   cycle,
		timeout: timeout,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce runs a cycle right away
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

// Runs reports how many cycles have completed
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Warn("previous aggregation cycle still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.runs++
		s.mu.Unlock()
	}()

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	items := s.cycle.GetItems(ctx, 0)
	slog.Info("scheduled aggregation done", "items", len(items), "duration", time.Since(start))
}
