package retry

import (
	"context"
	"time"

	"github.com/hewell/mediafetch/internal/faults"
)

// Operation is one attemptable unit of work.
type Operation func(ctx context.Context) error

// Do invokes op up to p.MaxAttempts times, sleeping the policy delay between
// attempts. There is no sleep after the final attempt. The sleep is
// cancellable: a done context aborts immediately and surfaces as a
// cancellation error. Non-retryable failures stop the loop early.
//
// It returns the number of attempts made and, on failure, the last error
// classified through the taxonomy with the attempt count attached.
func Do(ctx context.Context, p Policy, op Operation) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var last *faults.FetchError
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return attempt, faults.Classify(err, map[string]any{"attempts": attempt})
			}
		}

		err := op(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		last = faults.Classify(err, nil)
		if !last.Retryable {
			return attempt + 1, last.WithContext("attempts", attempt+1)
		}
	}
	return maxAttempts, last.WithContext("attempts", maxAttempts)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
