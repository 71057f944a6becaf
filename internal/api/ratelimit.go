package api

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound API calls so consecutive requests are at least
// minInterval apart. The first call never blocks.
type Limiter struct {
	rl *rate.Limiter
}

func NewLimiter(minInterval time.Duration) *Limiter {
	return &Limiter{
		rl: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Wait blocks until the next request may be sent, or until ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}
