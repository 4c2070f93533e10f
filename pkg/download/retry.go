package download

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy produces a fresh backoff schedule for one fetch.
type RetryPolicy func() backoff.BackOff

// DefaultMaxRetries is the number of retries of DefaultRetryPolicy.
const DefaultMaxRetries = 3

// DefaultRetryPolicy retries three times with jittered exponential backoff
// starting at one second.
func DefaultRetryPolicy() backoff.BackOff {
	return NewRetryPolicy(DefaultMaxRetries, time.Second)()
}

// NewRetryPolicy returns a policy of maxRetries retries with jittered
// exponential backoff starting at initial.
func NewRetryPolicy(maxRetries int, initial time.Duration) RetryPolicy {
	return func() backoff.BackOff {
		if maxRetries <= 0 {
			return &backoff.StopBackOff{}
		}
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.RandomizationFactor = 0.5
		b.Multiplier = 2
		b.MaxElapsedTime = 0
		return backoff.WithMaxRetries(b, uint64(maxRetries))
	}
}

// NoRetry never retries.
func NoRetry() backoff.BackOff {
	return &backoff.StopBackOff{}
}

// Retry runs op until it succeeds, returns a non-retryable error, the
// policy gives up or ctx is done.
func Retry(ctx context.Context, policy RetryPolicy, op func() error, notify func(err error, wait time.Duration)) error {
	if policy == nil {
		policy = DefaultRetryPolicy
	}
	wrapped := func() error {
		err := op()
		var permanent *backoff.PermanentError
		if err != nil && !errors.As(err, &permanent) && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(wrapped, backoff.WithContext(policy(), ctx), notify)
}

// IsRetryable classifies fetch errors. Client errors other than 408/429,
// hash mismatches, cancellations and anything marked permanent are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	var final interface{ Permanent() bool }
	if errors.As(err, &final) && final.Permanent() {
		return false
	}
	return true
}
