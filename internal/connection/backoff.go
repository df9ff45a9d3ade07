package connection

import (
	"math"
	"time"
)

// Backoff produces reconnect delays. Each call to Next returns the current
// delay and multiplies it for the following attempt; once the result would
// exceed the maximum it starts over at the base.
//
// Backoff is not safe for concurrent use; the Manager guards it.
type Backoff struct {
	base       time.Duration
	max        time.Duration
	multiplier float64
	current    time.Duration
}

// NewBackoff returns a Backoff starting at base. A multiplier below 1 is
// treated as 1 and a non-positive base as one second.
func NewBackoff(base, max time.Duration, multiplier float64) *Backoff {
	if !(multiplier >= 1) {
		multiplier = 1
	}
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, multiplier: multiplier, current: base}
}

// Next returns the delay for this attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.current
	// Products beyond max or the Duration range wrap to base.
	if next := float64(b.current) * b.multiplier; next > float64(b.max) || next >= math.MaxInt64 {
		b.current = b.base
	} else {
		b.current = time.Duration(next)
	}
	return d
}

// Reset puts the schedule back at the base delay.
func (b *Backoff) Reset() { b.current = b.base }

// Current returns the delay the next call to Next will return.
func (b *Backoff) Current() time.Duration { return b.current }
