package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// NewLimiter allows perMinute submissions with a small burst. perMinute <= 0 disables throttling.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 2)
}

// Wait blocks until limiter admits one call. A nil limiter never blocks.
func Wait(ctx context.Context, provider string, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return Rejected(provider, "submission throttled").WithCause(err)
	}
	return nil
}
