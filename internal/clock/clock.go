// Package clock abstracts the time operations used by the reconnect loop
// and the poller so tests can drive them deterministically.
package clock

import "time"

// Clock is the subset of the time package the fleet code depends on.
// Production code uses Real(); tests use Fake().
type Clock interface {
	Now() time.Time

	// After behaves like time.After. If d <= 0 the channel is ready
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker behaves like time.NewTicker and panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. C has capacity 1, so slow
// consumers drop ticks instead of queueing them.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}
