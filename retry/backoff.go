// Package retry computes the delay before an email job's next dispatch
// attempt: exponential growth from a base interval, capped, with optional
// jitter to spread retries from a burst of failures.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
}

// Delay returns the wait before attempt n (1-based: the delay scheduled
// after the n-th failure). Each call steps a fresh exponential backoff to
// the requested attempt, so the policy itself carries no state between
// jobs or invocations.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Cap
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}

	return d
}

// NextRetryAt applies Delay to a reference time.
func (p Policy) NextRetryAt(now time.Time, attempt int) time.Time {
	return now.Add(p.Delay(attempt))
}
