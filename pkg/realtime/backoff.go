package realtime

import (
	"math/rand"
	"time"
)

// DefaultBackoff doubles from one second up to thirty seconds without jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Max:    30 * time.Second,
		Factor: 2.0,
	}
}

// Next returns the backoff duration for the given attempt (1-based):
// min(Base * Factor^(attempt-1), Max).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := base
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}
	if wait > max {
		wait = max
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
