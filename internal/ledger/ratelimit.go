package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// rateLimiter is a soft local counter of requests per rolling window. When
// the budget is exhausted it delays the next call rather than failing it.
// Best-effort backpressure only; the remote side still enforces the real
// limit.
type rateLimiter struct {
	max    int
	window time.Duration
	logger *logrus.Logger

	mu    sync.Mutex
	sends []time.Time
}

func newRateLimiter(max int, window time.Duration, logger *logrus.Logger) *rateLimiter {
	return &rateLimiter{
		max:    max,
		window: window,
		logger: logger,
	}
}

// Wait blocks until a request slot is available or ctx is done.
func (r *rateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-r.window)
		kept := r.sends[:0]
		for _, t := range r.sends {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		r.sends = kept

		if len(r.sends) < r.max {
			r.sends = append(r.sends, now)
			r.mu.Unlock()
			return nil
		}

		wait := r.sends[0].Add(r.window).Sub(now)
		r.mu.Unlock()

		r.logger.WithField("wait", wait).Warn("Local rate limit reached, delaying next ledger call")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
