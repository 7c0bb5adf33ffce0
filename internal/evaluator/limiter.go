package evaluator

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited paces calls to an underlying evaluator.
type Limited struct {
	next    Evaluator
	limiter *rate.Limiter
}

// NewLimited allows rps calls per second with a burst of one. rps <= 0
// returns next unchanged.
func NewLimited(next Evaluator, rps float64) Evaluator {
	if rps <= 0 {
		return next
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Invoke waits for a token, then calls the wrapped evaluator.
func (l *Limited) Invoke(ctx context.Context, p Prompt) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Invoke(ctx, p)
}
