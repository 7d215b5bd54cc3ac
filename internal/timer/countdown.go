package timer

import (
	"sync"
	"time"
)

// Countdown is a one-second-resolution countdown. OnTick fires once per
// second with the remaining time, OnExpire fires once when the countdown
// reaches zero. Callbacks run on the countdown's own goroutine; callers that
// share state with other goroutines should have them post messages instead
// of mutating directly.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	stopped   bool
	stop      chan struct{}
	onTick    func(remaining int)
	onExpire  func()
}

// New starts a countdown for the given number of seconds. Either callback
// may be nil.
func New(seconds int, onTick func(int), onExpire func()) *Countdown {
	c := &Countdown{
		remaining: seconds,
		stop:      make(chan struct{}),
		onTick:    onTick,
		onExpire:  onExpire,
	}
	go c.run()
	return c
}

func (c *Countdown) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			canceled, expired, remaining := c.tick()
			if canceled {
				return
			}
			if c.onTick != nil {
				c.onTick(remaining)
			}
			if expired {
				if c.onExpire != nil {
					c.onExpire()
				}
				return
			}
		}
	}
}

func (c *Countdown) tick() (canceled, expired bool, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return true, false, c.remaining
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.stopped = true
		return false, true, 0
	}
	return false, false, c.remaining
}

// Remaining returns the seconds left on the countdown.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// SetRemaining overrides the time left without restarting the countdown.
func (c *Countdown) SetRemaining(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = seconds
}

// Cancel stops the countdown. Safe to call more than once; after the first
// call no further callbacks are delivered.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()
	close(c.stop)
}
