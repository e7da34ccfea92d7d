package infrastructure

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds best-effort calls such as follow-up fetches and
// presence writes.
type RetryPolicy struct {
	Attempts        uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:        3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
}

// Retry runs operation until it succeeds, the attempts are used up, or ctx is
// done. Domain errors are not retried.
func Retry(ctx context.Context, policy RetryPolicy, operation func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.MaxElapsedTime = 0

	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, attempts-1), ctx)

	return backoff.Retry(func() error {
		err := operation()
		if err != nil && KindOf(err) != nil {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
