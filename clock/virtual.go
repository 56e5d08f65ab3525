package clock

import (
	"context"
	"sync"
	"time"
)

// Virtual is a Clock whose time only moves in response to MoveTimeForward.
// Sleepers park on a condition variable that MoveTimeForward broadcasts,
// so a test can deterministically step every time-dependent component.
//
// The zero time is 0 nanoseconds.
type Virtual struct {
	mu   sync.Mutex
	cond *sync.Cond
	now  int64
}

// NewVirtual creates a virtual clock starting at time 0.
func NewVirtual() *Virtual {
	v := &Virtual{}
	v.cond = sync.NewCond(&v.mu)
	return v
}

func (v *Virtual) NowNanos() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) NowMillis() int64 {
	return v.NowNanos() / int64(time.Millisecond)
}

// MoveTimeForward advances the virtual time by d nanoseconds and wakes
// every waiter so it can re-check its deadline.
func (v *Virtual) MoveTimeForward(d int64) {
	v.mu.Lock()
	v.now += d
	v.mu.Unlock()
	v.cond.Broadcast()
}

func (v *Virtual) SleepNanos(ctx context.Context, d int64) error {
	v.mu.Lock()
	deadline := v.now + d
	v.mu.Unlock()
	return v.WaitUntil(ctx, deadline)
}

func (v *Virtual) WaitUntil(ctx context.Context, t int64) error {
	// Wake the wait loop when the context is cancelled; cond.Wait cannot
	// select on a channel. Broadcasting under the mutex keeps the wakeup
	// from landing between the ctx check and cond.Wait below.
	stop := context.AfterFunc(ctx, func() {
		v.mu.Lock()
		v.cond.Broadcast()
		v.mu.Unlock()
	})
	defer stop()

	v.mu.Lock()
	defer v.mu.Unlock()
	for v.now < t {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.cond.Wait()
	}
	return nil
}
