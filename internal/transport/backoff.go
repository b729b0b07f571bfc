package transport

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns how long to wait before dial attempt N (1-based). Growth is
// geometric from InitialDelay and capped at MaxDelay; jitter scales the
// result into [0.5, 1.5).
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	mult := math.Max(b.Multiplier, 1.0)
	delay := float64(b.InitialDelay)
	if attempt > 1 {
		delay *= math.Pow(mult, float64(attempt-1))
	}
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}
	if !b.Jitter {
		return time.Duration(delay)
	}
	f := 0.5
	if rng != nil {
		f += rng.Float64()
	}
	return time.Duration(delay * f)
}
