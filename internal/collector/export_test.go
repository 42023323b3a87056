package collector

import "time"

// BackoffDelayForTest exposes the reconnect delay computation.
func BackoffDelayForTest(attempt int, jitter func() float64) time.Duration {
	return backoffDelay(attempt, jitter)
}
