package httputil

import (
	"context"
	"errors"
	"time"

	"github.com/cenk/backoff"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap transient failures (network timeouts, 5xx responses) with this type
// so that [Retry] knows to attempt the operation again.
//
// After, when positive, is the minimum delay the server asked for before the
// next attempt (a Retry-After header).
type RetryableError struct {
	Err   error
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a [RetryableError]. Retryable(nil) is nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// RetryableAfter wraps err as a [RetryableError] that asks [Retry] to wait at
// least d before the next attempt.
func RetryableAfter(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, After: d}
}

// IsRetryable reports whether err is wrapped with [RetryableError].
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Policy describes how registry requests are paced and retried.
//
// MaxAttempts counts the first try. The delay before retry n is
// BaseDelay * Multiplier^(n-1), capped at MaxDelay, with 10% jitter.
// A server-supplied wait (see [RetryableAfter]) raises the next delay, but
// never above MaxDelay; with MaxDelay zero such hints are ignored.
// MinInterval is the minimum spacing between any two requests issued by one
// client, regardless of how many goroutines share it.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MinInterval time.Duration
}

// DefaultPolicy follows the crates.io crawler policy of at most one request
// per second, with four attempts per request.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		MinInterval: time.Second,
	}
}

// NoDelayPolicy retries immediately and does not pace requests.
// Intended for tests against local servers.
func NoDelayPolicy() Policy {
	return Policy{MaxAttempts: 3, Multiplier: 1}
}

func (p Policy) attempts() int { return max(p.MaxAttempts, 1) }

func (p Policy) backOff() backoff.BackOff {
	if p.BaseDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0.1
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// hintBackOff raises the next delay to a server-supplied minimum.
type hintBackOff struct {
	backoff.BackOff
	limit time.Duration
	hint  time.Duration
}

func (h *hintBackOff) NextBackOff() time.Duration {
	d := h.BackOff.NextBackOff()
	if d != backoff.Stop {
		d = max(d, min(h.hint, h.limit))
	}
	h.hint = 0
	return d
}

func (h *hintBackOff) Reset() {
	h.hint = 0
	h.BackOff.Reset()
}

// Retry executes fn until it succeeds, returns an error not wrapped with
// [RetryableError], or the policy's attempts are exhausted. It returns the
// last error, or ctx.Err() if the context ends first.
func Retry(ctx context.Context, p Policy, fn func() error) error {
	var (
		inner backoff.BackOff = &backoff.StopBackOff{}
		hints *hintBackOff
	)
	if n := p.attempts() - 1; n > 0 {
		hints = &hintBackOff{BackOff: p.backOff(), limit: p.MaxDelay}
		inner = backoff.WithMaxRetries(hints, uint64(n))
	}
	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return backoff.Permanent(err)
		}
		if hints != nil {
			hints.hint = re.After
		}
		return err
	}, backoff.WithContext(inner, ctx))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
