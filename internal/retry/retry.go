// Package retry is the single retry combinator used by every upstream
// client: exponential backoff with jitter, bounded attempts, context
// cancellation, and permanent-error short circuit.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Policy bounds one retried operation.
type Policy struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// DefaultPolicy matches the pipeline-wide defaults: 500ms initial,
// doubling, capped at 30s, five attempts total.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxAttempts:     5,
		Multiplier:      2.0,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	return p
}

// Permanent marks err as non-retryable. Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs fn under the policy, sleeping with ±20% jitter between
// attempts. It stops on success, a Permanent error, context
// cancellation, or attempt exhaustion, and logs each retry at warn.
func Do(ctx context.Context, logger *zap.Logger, op string, policy Policy, fn func(context.Context) error) error {
	p := policy.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0

	attempt := 0
	var bo backoff.BackOff = backoff.WithContext(b, ctx)
	bo = backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1))

	notify := func(err error, wait time.Duration) {
		attempt++
		logger.Warn("retrying operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(func() error { return fn(ctx) }, bo, notify); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// StatusError carries an upstream HTTP status so callers can map it to
// their own sentinels after retries are exhausted.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the status is worth another attempt:
// request timeout, throttling, and server-side failures are; every
// other 4xx is not.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}

// WrapStatus classifies an upstream status for Do: retryable statuses
// come back plain, the rest are wrapped Permanent.
func WrapStatus(status int, body string) error {
	se := &StatusError{Status: status, Body: body}
	if se.Retryable() {
		return se
	}
	return Permanent(se)
}

// StatusFrom unwraps a StatusError if err carries one, else 0.
func StatusFrom(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
