package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := SessionID(ctx)
	assert.False(t, ok)
	_, ok = StepID(ctx)
	assert.False(t, ok)
	_, ok = Action(ctx)
	assert.False(t, ok)

	ctx = WithSessionID(ctx, "s1")
	ctx = WithStepID(ctx, "step-1")
	ctx = WithAction(ctx, "click")

	v, ok := SessionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "s1", v)
	v, ok = StepID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "step-1", v)
	v, ok = Action(ctx)
	assert.True(t, ok)
	assert.Equal(t, "click", v)

	_, ok = StepID(WithStepID(context.Background(), ""))
	assert.False(t, ok)
}
