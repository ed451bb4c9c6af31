package payment

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the persistence retries that follow a captured
// payment. Delays grow by Multiplier from Initial up to Max.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy is four attempts over roughly two seconds.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, Initial: 250 * time.Millisecond, Max: 4 * time.Second, Multiplier: 2}

// backOff is the delay schedule without jitter or an elapsed-time cap;
// the attempt bound is applied in Do.
func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.Reset()
	return b
}

// Do runs fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx ends. It returns the last error fn returned.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	op := func() error {
		last = fn(ctx)
		if last != nil && !retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}
	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return last
	}
	return nil
}
