package scheduler

import (
	"context"
	"sync"
	"time"

	"CatalogScanner/internal/ports"
)

// IntervalScheduler runs a job on a fixed period using time.Ticker. Jobs
// run on a single goroutine, so a slow job delays the next tick instead of
// overlapping it.
type IntervalScheduler struct {
	interval   time.Duration
	runAtStart bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler; runAtStart fires the job once
// immediately on Start.
func NewIntervalScheduler(interval time.Duration, runAtStart bool) *IntervalScheduler {
	return &IntervalScheduler{interval: interval, runAtStart: runAtStart}
}

// Start begins ticking. A non-positive interval disables the scheduler.
func (c *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil || c.interval <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		if c.runAtStart {
			job(time.Now())
		}
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for a running job to return,
// or for ctx to expire.
func (c *IntervalScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
