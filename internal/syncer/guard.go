package syncer

import (
	"context"
	"errors"

	"github.com/Jayphen/prisync/internal/logging"
)

// Processor handles one item of a sequential stream.
type Processor[T any] func(ctx context.Context, item T) error

// Guarded is a Processor wrapped by Guard. ok reports whether the item
// counts as handled; fatal is non-nil when the stream must stop.
type Guarded[T any] func(ctx context.Context, item T) (ok bool, fatal error)

// Guard wraps process so one item's failure does not stop the stream.
// Failures are passed to onErr. Persistence failures and cancellation are
// returned as fatal. Missing-linkage failures are reported but count as
// handled, since retrying cannot fix them before the next scan.
func Guard[T any](process Processor[T], onErr func(item T, err error)) Guarded[T] {
	return func(ctx context.Context, item T) (bool, error) {
		err := process(ctx, item)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrPersistence):
			return false, err
		case ctx.Err() != nil:
			return false, ctx.Err()
		case errors.Is(err, ErrMissingLinkage):
			onErr(item, err)
			return true, nil
		default:
			onErr(item, err)
			return false, nil
		}
	}
}

// logItemError logs a per-item failure and reports whether it was a missing
// linkage rather than a retryable error.
func logItemError(log *logging.Logger, err error) bool {
	if errors.Is(err, ErrMissingLinkage) {
		log.WithError(err).Warn("priority label has no label event, skipping until next scan")
		return true
	}
	log.WithError(err).Warn("sync failed, will retry next run")
	return false
}
