// Package poll retries an availability check on a fixed interval.
package poll

import (
	"context"
	"time"
)

// DefaultInterval is the delay between attempts when none is given.
const DefaultInterval = 2 * time.Second

// Check reports whether the awaited condition holds. A non-nil error stops
// polling immediately.
type Check func(ctx context.Context) (bool, error)

// Until calls check until it reports true, returns an error, or ctx is done.
// The first attempt runs immediately; ctx is re-checked after every delay,
// right before the next attempt.
func Until(ctx context.Context, interval time.Duration, check Check) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := time.NewTimer(interval)
	timer.Stop()
	defer timer.Stop()

	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
