// Package backoff computes retry delays for at-least-once delivery paths.
package backoff

import (
	"math/rand"
	"time"
)

// Exponential returns base * 2^attempt, capped at max. Attempt is zero-based.
func Exponential(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// FullJitter draws a uniform delay in [0, d]. Spreading retries over the full
// window keeps competing publishers from synchronizing on the broker.
func FullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}
