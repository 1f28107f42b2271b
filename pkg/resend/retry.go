package resend

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts is how many times a resend request is tried per key.
const DefaultMaxAttempts = 5

// RetryPolicy bounds the attempts made for a single key. With zero
// intervals the attempts are made back to back.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// newBackOff returns a fresh schedule; one is needed per key since
// backoff.BackOff values are stateful.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.InitialInterval > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.InitialInterval
		if p.MaxInterval > 0 {
			exp.MaxInterval = p.MaxInterval
		}
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithMaxRetries(b, uint64(p.attempts()-1))
}
