package clock

import (
	"context"
	"sync"
)

// Scheduler runs periodic tasks against a Clock. With the system clock it
// behaves like a plain ticker loop; with a virtual clock tasks fire as the
// test advances time past their targets.
//
// A task that falls behind (time advanced past several targets at once)
// fires once per missed period, fixed-rate style.
type Scheduler struct {
	clk    Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler driven by clk.
func NewScheduler(clk Clock) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{clk: clk, ctx: ctx, cancel: cancel}
}

// SchedulePeriodic runs task every period nanoseconds until Stop is
// called. The first run happens one period from now.
func (s *Scheduler) SchedulePeriodic(period int64, task func()) {
	next := s.clk.NowNanos() + period
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if err := s.clk.WaitUntil(s.ctx, next); err != nil {
				return
			}
			task()
			next += period
		}
	}()
}

// Stop cancels all scheduled tasks and waits for their goroutines to
// return. A task that is mid-run completes before Stop returns.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
