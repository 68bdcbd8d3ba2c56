package service

import (
	"context"
	"errors"
	"time"

	"crowdseg-service/src/models"
)

const txRetryAttempts = 3

// withTxRetry re-runs fn when it fails with transient store contention
// (lock timeout or serialization failure). Each run is a whole
// transaction, so no partially-created sessions can leak between
// attempts.
func withTxRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < txRetryAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, models.ErrTxConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
	return err
}
