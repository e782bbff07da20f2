// internal/tdma/runner.go
package tdma

import (
	"context"
	"time"
)

// Clock returns the current time in seconds.
type Clock interface {
	Now() float64
}

// WallClock reads the system clock.
type WallClock struct{}

func (WallClock) Now() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// Runner drives a scheduler from a ticker. One goroutine per mesh
// network. No overlap: a tick is skipped while the previous one runs.
type Runner struct {
	sched    *Scheduler
	clock    Clock
	interval time.Duration
	hook     func(now float64)
}

// NewRunner builds a runner. hook, if set, runs after every tick on the
// runner goroutine and may use the scheduler's host API.
func NewRunner(s *Scheduler, clock Clock, interval time.Duration, hook func(now float64)) *Runner {
	if clock == nil {
		clock = WallClock{}
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Runner{sched: s, clock: clock, interval: interval, hook: hook}
}

// Run ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := r.clock.Now()
			r.sched.Execute(ctx, now)
			if r.hook != nil {
				r.hook(now)
			}
		}
	}
}
