package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hewell/mediafetch/internal/faults"
)

func TestPolicy_DelayZeroAttempt(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	require.Equal(t, time.Duration(0), p.Delay(0))
	require.Equal(t, time.Duration(0), p.Delay(-1))
}

func TestPolicy_DelayNeverExceedsMax(t *testing.T) {
	t.Parallel()
	p := Policy{
		MaxAttempts:     10,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
	for i := 1; i <= 20; i++ {
		d := p.Delay(i)
		require.LessOrEqual(t, d, p.MaxDelay, "attempt %d", i)
		require.Greater(t, d, time.Duration(0), "attempt %d", i)
	}
}

func TestPolicy_DelayGrowsWithoutJitter(t *testing.T) {
	t.Parallel()
	p := Policy{
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2,
	}
	require.Equal(t, 100*time.Millisecond, p.Delay(1))
	require.Equal(t, 200*time.Millisecond, p.Delay(2))
	require.Equal(t, 400*time.Millisecond, p.Delay(3))
}

func TestPolicy_JitterRange(t *testing.T) {
	t.Parallel()
	p := Policy{
		BaseDelay:       1 * time.Second,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
	for i := 0; i < 100; i++ {
		d := p.Delay(1)
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, 1*time.Second)
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, ExponentialBase: 2}
	calls := 0
	attempts, err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return faults.New(faults.CodeNetworkTimeout, "", errors.New("transient"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, calls)
}

func TestDo_Exhaustion(t *testing.T) {
	t.Parallel()
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, ExponentialBase: 2}
	calls := 0
	attempts, err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return faults.New(faults.CodeNetworkHTTPServerError, "HTTP 503", nil)
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, calls)

	var fe *faults.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, faults.CodeNetworkHTTPServerError, fe.Code)
	require.Equal(t, 3, fe.Context["attempts"])
}

func TestDo_NonRetryableStopsEarly(t *testing.T) {
	t.Parallel()
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, ExponentialBase: 2}
	calls := 0
	attempts, err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return faults.New(faults.CodeNetworkHTTPClientError, "HTTP 404", nil)
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}

func TestDo_CancelDuringSleep(t *testing.T) {
	t.Parallel()
	p := Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second, MaxDelay: 5 * time.Second, ExponentialBase: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(context.Context) error {
			return faults.New(faults.CodeNetworkTimeout, "", nil)
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		var fe *faults.FetchError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, faults.CodeSessionCancelled, fe.Code)
	case <-time.After(time.Second):
		t.Fatal("retry sleep was not cancellable")
	}
}
