// Package cancel turns context cancellation into the single Aborted error kind
// shared by every sheetctx entry point.
package cancel

import (
	"context"
	"errors"
	"fmt"
)

// ErrAborted is returned (wrapped) whenever an operation stops because its
// context was cancelled or its deadline passed.
var ErrAborted = errors.New("aborted")

// Check polls ctx without blocking. It returns nil while ctx is live and an
// error matching both ErrAborted and the context's own error otherwise.
func Check(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return Wrap(ctx.Err())
	default:
		return nil
	}
}

// Wrap converts a context error into an Aborted error. Non-context errors
// and nil are returned unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAborted) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return err
}

// IsAborted reports whether err is an Aborted error.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
