package timer

import (
	"testing"
	"time"
)

func TestCountdownTicksAndExpires(t *testing.T) {
	ticks := make(chan int, 8)
	expired := make(chan struct{})
	New(2, func(remaining int) { ticks <- remaining }, func() { close(expired) })

	select {
	case r := <-ticks:
		if r != 1 {
			t.Fatalf("first tick: want remaining=1, got %d", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for first tick")
	}

	select {
	case <-expired:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for expiry")
	}
}

func TestCountdownCancelSuppressesExpiry(t *testing.T) {
	expired := make(chan struct{}, 1)
	c := New(1, nil, func() { expired <- struct{}{} })
	c.Cancel()
	c.Cancel() // second cancel must be a no-op

	select {
	case <-expired:
		t.Fatal("expire callback fired after cancel")
	case <-time.After(1500 * time.Millisecond):
	}
}

func TestCountdownSetRemaining(t *testing.T) {
	c := New(60, nil, nil)
	defer c.Cancel()
	c.SetRemaining(5)
	if got := c.Remaining(); got != 5 {
		t.Fatalf("want 5, got %d", got)
	}
}
