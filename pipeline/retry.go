package pipeline

import (
	"context"
	"math"
	"time"
)

const maxBackoffShift = 30

// retryPolicy decides how long to wait before attempt n of the same URL.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
}

func (rp retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	shift := min(attempt-1, maxBackoffShift)
	delay := base << shift
	if delay <= 0 || delay>>shift != base {
		delay = time.Duration(math.MaxInt64)
	}
	if rp.max > 0 && delay > rp.max {
		delay = rp.max
	}
	return delay
}

// wait sleeps for the backoff of attempt. It returns false if ctx ended first.
func (rp retryPolicy) wait(ctx context.Context, attempt int) bool {
	timer := time.NewTimer(rp.backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
