package acmeorch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acmecore/acmeclient/acme"
)

func testOrchestrator() *Orchestrator {
	return &Orchestrator{
		BackoffMin:      time.Millisecond,
		BackoffMax:      2 * time.Millisecond,
		BackoffAttempts: 4,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	o := testOrchestrator()
	calls := 0
	err := o.retry(context.Background(), "stage", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	o := testOrchestrator()
	calls := 0
	err := o.retry(context.Background(), "stage", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryAbortShortCircuits(t *testing.T) {
	o := testOrchestrator()
	calls := 0
	sentinel := errors.New("terminal")
	err := o.retry(context.Background(), "stage", func() error {
		calls++
		return abort(sentinel)
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	o := testOrchestrator()
	calls := 0
	err := o.retry(context.Background(), "stage", func() error {
		calls++
		return errors.New("always transient")
	})

	var timeoutErr *acme.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "stage", timeoutErr.Stage)
	require.Equal(t, o.backoffAttempts(), calls)
}

func TestRetryContextCancellation(t *testing.T) {
	o := testOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.retry(ctx, "stage", func() error {
		return errors.New("should not run")
	})

	var cancelErr *acme.CancelledError
	require.ErrorAs(t, err, &cancelErr)
	require.Equal(t, "stage", cancelErr.Stage)
}
