package health

import (
	"math/rand/v2"
	"time"
)

const (
	BaseDelay = 5 * time.Minute
	MaxDelay  = 24 * time.Hour
	MaxJitter = time.Minute
)

// NextAttempt schedules the next automatic retry after a soft failure. failures is the
// number of consecutive failures recorded before this one. A server supplied
// Retry-After hint is honored exactly and replaces the exponential schedule.
func NextAttempt(now time.Time, failures int, retryAfter time.Duration) time.Time {
	return nextAttempt(now, failures, retryAfter, randomJitter)
}

func nextAttempt(now time.Time, failures int, retryAfter time.Duration, jitter func() time.Duration) time.Time {
	if retryAfter > 0 {
		return now.Add(retryAfter)
	}
	return now.Add(backoffDelay(failures, jitter()))
}

func backoffDelay(failures int, jitter time.Duration) time.Duration {
	if failures < 0 {
		failures = 0
	}

	delay := MaxDelay
	// 5m * 2^9 already exceeds the cap
	if failures < 9 {
		delay = min(BaseDelay<<failures, MaxDelay)
	}

	return min(delay+jitter, MaxDelay)
}

func randomJitter() time.Duration {
	return rand.N(MaxJitter)
}
