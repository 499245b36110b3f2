// Package syncer runs the bidirectional priority sync: repository scans,
// the task feed, conflict resolution and mutation.
package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence marks a checkpoint or cache store failure. It aborts
	// the run.
	ErrPersistence = errors.New("persistence failure")

	// ErrMissingLinkage marks an inconsistent cache: a priority label is
	// present but no event explains it. It is logged and not retried.
	ErrMissingLinkage = errors.New("missing linkage")
)

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
