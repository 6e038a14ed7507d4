package cancel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	t.Run("live context", func(t *testing.T) {
		assert.NoError(t, Check(context.Background()))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancelFn := context.WithCancel(context.Background())
		cancelFn()

		err := Check(ctx)
		assert.ErrorIs(t, err, ErrAborted)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, IsAborted(err))
	})
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil))

	other := errors.New("boom")
	assert.Equal(t, other, Wrap(other))

	wrapped := Wrap(context.DeadlineExceeded)
	assert.ErrorIs(t, wrapped, ErrAborted)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)

	assert.Equal(t, wrapped, Wrap(wrapped), "already aborted errors pass through")
}
