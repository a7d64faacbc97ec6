package channel

import (
	"math"
	"time"
)

// Backoff is a capped exponential reconnect policy with jitter. The
// ceiling for attempt n is Min*Factor^n, capped at Max; the delay is
// drawn from the upper half of that ceiling.
//
// A zero Min disables the delay entirely and reconnects immediately,
// which is the minimal "always reconnect" baseline.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
}

// DefaultBackoff is 250ms doubling up to 30s.
func DefaultBackoff() Backoff {
	return Backoff{Min: 250 * time.Millisecond, Max: 30 * time.Second, Factor: 2}
}

// Delay returns the wait before reconnect attempt n (0-based). jitter
// must be in [0, 1).
func (b Backoff) Delay(attempt int, jitter float64) time.Duration {
	if b.Min <= 0 {
		return 0
	}
	maxDelay := b.Max
	if maxDelay < b.Min {
		maxDelay = b.Min
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	if attempt < 0 {
		attempt = 0
	}

	ceiling := float64(b.Min) * math.Pow(factor, float64(attempt))
	if math.IsInf(ceiling, 0) || ceiling > float64(maxDelay) {
		ceiling = float64(maxDelay)
	}

	if jitter < 0 {
		jitter = 0
	} else if jitter >= 1 {
		jitter = math.Nextafter(1, 0)
	}
	half := ceiling / 2
	return time.Duration(half + half*jitter)
}
