package acmeorch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acmecore/acmeclient/acme"
)

const (
	defaultBackoffMin      = 5 * time.Second
	defaultBackoffMax      = 30 * time.Second
	defaultBackoffAttempts = 5
)

func (o *Orchestrator) backoffMin() time.Duration {
	if o.BackoffMin > 0 {
		return o.BackoffMin
	}
	return defaultBackoffMin
}

func (o *Orchestrator) backoffMax() time.Duration {
	if o.BackoffMax > 0 {
		return o.BackoffMax
	}
	return defaultBackoffMax
}

func (o *Orchestrator) backoffAttempts() int {
	if o.BackoffAttempts > 0 {
		return o.BackoffAttempts
	}
	return defaultBackoffAttempts
}

// newBackOff builds the exponential-backoff-with-jitter policy spec.md
// section 4.4's retry(fn, {attempts, min, max}) primitive describes,
// capped at o.backoffAttempts() tries.
func (o *Orchestrator) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.backoffMin()
	b.MaxInterval = o.backoffMax()
	b.MaxElapsedTime = 0
	b.Multiplier = 2
	return backoff.WithMaxRetries(b, uint64(o.backoffAttempts()-1))
}

// retry runs fn under exponential backoff until it returns a nil error,
// a permanent error (see abort), ctx is cancelled, or attempts are
// exhausted. stage labels the operation for TimeoutError/CancelledError.
//
// backoff.Retry unwraps a *backoff.PermanentError to its inner Err before
// returning, so the result is never itself a *backoff.PermanentError;
// errors.As against that type here would always be false. Instead,
// cancellation is detected directly via ctx.Err(), and an
// abort()-wrapped terminal error (already unwrapped by backoff.Retry) is
// returned as-is so a StateError passes through undisturbed. Any other
// error from fn is returned as a TimeoutError once attempts are exhausted.
func (o *Orchestrator) retry(ctx context.Context, stage string, fn func() error) error {
	policy := backoff.WithContext(o.newBackOff(), ctx)

	attempts := 0
	aborted := false
	var lastErr error
	err := backoff.Retry(func() error {
		attempts++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		err := fn()
		lastErr = err
		if err != nil {
			var permanent *backoff.PermanentError
			if errors.As(err, &permanent) {
				aborted = true
			}
		}
		return err
	}, policy)

	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &acme.CancelledError{Stage: stage, Err: ctxErr}
	}

	if aborted {
		return err
	}

	return &acme.TimeoutError{Stage: stage, Attempts: attempts, LastErr: lastErr}
}

// abort wraps err so retry treats it as terminal instead of transient,
// implementing spec.md section 4.4's "fn ... may call abort" semantics
// for a polling callback that has observed a terminal invalid state.
func abort(err error) error {
	return backoff.Permanent(err)
}
