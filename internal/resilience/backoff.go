package resilience

import (
	"math/rand/v2"
	"time"
)

// Delay computes the exponential backoff delay for a zero-based attempt:
// base doubled per attempt, capped at max. Pure so retry schedules are
// testable without sleeping.
func Delay(attempt int, base, max time.Duration) time.Duration {
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

// Jitter adds up to 10% of random extra delay so concurrent retriers do not
// synchronize. The result is never less than d.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(d)/10+1))
}
