package auth

import (
	"context"
	"time"

	"github.com/atinyakov/ato/internal/client/remote"
)

// RetryPolicy bounds profile-fetch retries per failure class.
type RetryPolicy struct {
	Auth      int
	Network   int
	RateLimit int
	Base      time.Duration
	Max       time.Duration
}

// DefaultRetryPolicy retries auth failures twice, network failures three
// times and rate-limit failures twice, backing off from 1s up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Auth: 2, Network: 3, RateLimit: 2, Base: time.Second, Max: 10 * time.Second}
}

// ShouldRetry reports whether another attempt follows failure number
// failures (0-based) that ended with err.
func (p RetryPolicy) ShouldRetry(err error, failures int) bool {
	switch {
	case remote.IsAuth(err):
		return failures < p.Auth
	case remote.IsNetwork(err):
		return failures < p.Network
	case remote.IsRateLimit(err):
		return failures < p.RateLimit
	default:
		return false
	}
}

// Backoff is the delay after failure number failures: Base*2^failures, capped at Max.
func (p RetryPolicy) Backoff(failures int) time.Duration {
	d := p.Base
	for i := 0; i < failures && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
