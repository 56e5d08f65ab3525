// Package detector reports process-wide execution stalls to registered
// listeners.
//
// The Core type carries the listener bookkeeping and dispatch machinery
// shared by every detector: ordered high-priority and normal listener
// lists, and a message queue drained by a single dispatcher goroutine so
// that listeners observe events in publish order and listener churn
// serialises with delivery. SimpleDetector layers consensus stall
// discovery on top.
package detector

import (
	"sync"
	"sync/atomic"
)

// Listener receives pause notifications. Both arguments are nanoseconds;
// pauseEndTime is on the detector clock's timeline.
type Listener interface {
	HandlePause(pauseLength, pauseEndTime int64)
}

// PauseDetector is the registration surface consumed by estimators and
// recorders. High-priority listeners are notified before normal ones
// within each event, so a rate estimator can fold a pause into its state
// before the recorder that consults it runs.
type PauseDetector interface {
	// AddListener registers l. High-priority listeners see each event
	// before any normal-priority listener does.
	AddListener(l Listener, highPriority bool)

	// RemoveListener deregisters l. Delivery is eventually consistent: a
	// removal racing with a dispatch may be preceded by one more event.
	RemoveListener(l Listener)

	// Shutdown stops the detector, draining pending notifications.
	Shutdown()
}

type listenerChange struct {
	listener     Listener
	add          bool
	highPriority bool
}

type pauseNotification struct {
	pauseLength  int64
	pauseEndTime int64
}

// Core implements listener registration and serialised dispatch. Embed it
// (by pointer) to build a concrete detector; tests can also use it
// directly as an artificial detector by calling Notify.
type Core struct {
	messages chan any
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Owned by the dispatcher goroutine.
	highPriorityListeners   []Listener
	normalPriorityListeners []Listener

	listenerCount atomic.Int32
}

// NewCore creates a detector core and starts its dispatcher.
func NewCore() *Core {
	c := &Core{
		messages: make(chan any, 1024),
		stopCh:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.dispatch()
	return c
}

// AddListener registers l for pause notifications.
func (c *Core) AddListener(l Listener, highPriority bool) {
	c.send(listenerChange{listener: l, add: true, highPriority: highPriority})
}

// RemoveListener deregisters l.
func (c *Core) RemoveListener(l Listener) {
	c.send(listenerChange{listener: l})
}

// Notify publishes a pause of the given length ending at pauseEndTime to
// all listeners, high priority first.
func (c *Core) Notify(pauseLength, pauseEndTime int64) {
	c.send(pauseNotification{pauseLength: pauseLength, pauseEndTime: pauseEndTime})
}

// Shutdown stops the dispatcher after draining already-queued messages.
// Idempotent.
func (c *Core) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// NumListeners returns the current number of registered listeners. The
// value trails in-flight registration messages.
func (c *Core) NumListeners() int {
	return int(c.listenerCount.Load())
}

func (c *Core) send(m any) {
	select {
	case c.messages <- m:
	case <-c.stopCh:
	}
}

func (c *Core) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case m := <-c.messages:
			c.handle(m)
		case <-c.stopCh:
			for {
				select {
				case m := <-c.messages:
					c.handle(m)
				default:
					return
				}
			}
		}
	}
}

func (c *Core) handle(m any) {
	switch msg := m.(type) {
	case listenerChange:
		if msg.add {
			if msg.highPriority {
				c.highPriorityListeners = append(c.highPriorityListeners, msg.listener)
			} else {
				c.normalPriorityListeners = append(c.normalPriorityListeners, msg.listener)
			}
		} else {
			c.highPriorityListeners = removeListener(c.highPriorityListeners, msg.listener)
			c.normalPriorityListeners = removeListener(c.normalPriorityListeners, msg.listener)
		}
		c.listenerCount.Store(int32(len(c.highPriorityListeners) + len(c.normalPriorityListeners)))
	case pauseNotification:
		for _, l := range c.highPriorityListeners {
			l.HandlePause(msg.pauseLength, msg.pauseEndTime)
		}
		for _, l := range c.normalPriorityListeners {
			l.HandlePause(msg.pauseLength, msg.pauseEndTime)
		}
	}
}

func removeListener(listeners []Listener, l Listener) []Listener {
	for i, candidate := range listeners {
		if candidate == l {
			return append(listeners[:i], listeners[i+1:]...)
		}
	}
	return listeners
}
