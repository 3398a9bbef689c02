package lifecycle

import (
	"context"
	"errors"
	"time"

	"contractflow/internal/services"
)

const conflictBackoff = 5 * time.Millisecond

// RetryConflicts runs op until it returns something other than a conflict or
// attempts are exhausted. op receives the 1-based attempt number.
func RetryConflicts(ctx context.Context, attempts int, op func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(attempt)
		if err == nil || !errors.Is(err, services.ErrConflict) || attempt == attempts {
			return err
		}
		select {
		case <-time.After(conflictBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
