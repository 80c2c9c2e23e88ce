package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHasDeadline(t *testing.T) {
	ctx := Context(t, 150*time.Millisecond)

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.LessOrEqual(t, time.Until(deadline), 150*time.Millisecond)
	assert.Greater(t, time.Until(deadline), time.Duration(0))
}

func TestContextDefaultTimeout(t *testing.T) {
	ctx := Context(t, 0)

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.LessOrEqual(t, time.Until(deadline), DefaultTestTimeout)
}

func TestContextCancelledAtCleanup(t *testing.T) {
	var ctx interface{ Err() error }
	t.Run("inner", func(t *testing.T) {
		ctx = Context(t, time.Minute)
		assert.NoError(t, ctx.Err())
	})
	assert.Error(t, ctx.Err())
}
