package collector

import (
	"math/rand"
	"time"
)

const (
	// backoffBase is the first reconnect delay.
	backoffBase = time.Second

	// backoffCeiling caps the exponential growth.
	backoffCeiling = 60 * time.Second

	// jitterMin and jitterMax bound the additive jitter fraction.
	jitterMin = 0.10
	jitterMax = 0.30
)

// backoffDelay computes the reconnect delay for the given zero-based
// failure attempt: min(base * 2^attempt, ceiling) plus 10 to 30 percent
// additive jitter. jitter yields a uniform value in [jitterMin, jitterMax).
func backoffDelay(attempt int, jitter func() float64) time.Duration {
	delay := backoffBase << uint(attempt)
	if attempt >= 6 || delay > backoffCeiling {
		delay = backoffCeiling
	}

	return delay + time.Duration(float64(delay)*jitter())
}

func defaultJitter() float64 {
	return jitterMin + rand.Float64()*(jitterMax-jitterMin)
}
