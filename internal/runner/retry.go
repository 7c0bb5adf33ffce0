package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
)

// #region result

// Result is the tagged outcome of a bounded retry loop.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// OK reports whether some attempt succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// #endregion result

// #region with-retry

// WithRetry calls fn up to maxAttempts times and stops at the first success.
// Configuration errors stop the loop immediately. Attempts are numbered from 1.
// There is no delay between attempts.
func WithRetry[T any](ctx context.Context, maxAttempts int, fn func(ctx context.Context, attempt int) (T, error)) Result[T] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				err = errors.Join(err, last)
			}
			return Result[T]{Err: fmt.Errorf("retry stopped before attempt %d: %w", attempt, err), Attempts: attempt - 1}
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return Result[T]{Value: v, Attempts: attempt}
		}
		last = err
		if errors.Is(err, diagnosis.ErrConfiguration) {
			return Result[T]{Err: err, Attempts: attempt}
		}
	}
	return Result[T]{Err: last, Attempts: maxAttempts}
}

// #endregion with-retry
