package breakpoint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAwait_DisabledReturnsImmediately(t *testing.T) {
	c := NewController(nil)

	called := false
	err := c.AwaitBefore(context.Background(), func(Suspension) { called = true })
	require.NoError(t, err)
	require.NoError(t, c.AwaitAfter(context.Background(), nil))
	assert.False(t, called)
	assert.Empty(t, c.Suspended())
}

func TestAwait_BlocksUntilReleased(t *testing.T) {
	c := NewController(zaptest.NewLogger(t))
	c.SetBefore(true)

	states := make(chan Suspension, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.AwaitBefore(context.Background(), func(s Suspension) { states <- s })
	}()

	var s Suspension
	select {
	case s = <-states:
	case <-time.After(time.Second):
		t.Fatal("onState was not invoked")
	}
	assert.Equal(t, PhaseBefore, s.Phase)
	assert.NotEmpty(t, s.ID)

	select {
	case <-done:
		t.Fatal("await returned before release")
	case <-time.After(20 * time.Millisecond):
	}

	require.Len(t, c.Suspended(), 1)
	require.NoError(t, c.Release(s.ID))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("await did not return after release")
	}
	assert.Empty(t, c.Suspended())
	assert.Error(t, c.Release(s.ID))
}

func TestAwait_ContextCancelled(t *testing.T) {
	c := NewController(nil)
	c.SetAfter(true)

	ctx, cancel := context.WithCancel(context.Background())
	suspended := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.AwaitAfter(ctx, func(Suspension) { close(suspended) })
	}()

	<-suspended
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, c.Suspended())
}

func TestSetDisabled_ReleasesOnlyThatPhase(t *testing.T) {
	c := NewController(nil)
	c.SetBefore(true)
	c.SetAfter(true)

	var wg sync.WaitGroup
	suspended := make(chan Phase, 2)
	results := make(chan Phase, 2)
	for _, phase := range []Phase{PhaseBefore, PhaseAfter} {
		wg.Add(1)
		go func(p Phase) {
			defer wg.Done()
			onState := func(s Suspension) { suspended <- s.Phase }
			var err error
			if p == PhaseBefore {
				err = c.AwaitBefore(context.Background(), onState)
			} else {
				err = c.AwaitAfter(context.Background(), onState)
			}
			if err == nil {
				results <- p
			}
		}(phase)
	}
	<-suspended
	<-suspended

	c.SetBefore(false)
	select {
	case p := <-results:
		assert.Equal(t, PhaseBefore, p)
	case <-time.After(time.Second):
		t.Fatal("before suspension was not released")
	}
	assert.False(t, c.Enabled(PhaseBefore))
	assert.True(t, c.Enabled(PhaseAfter))
	require.Len(t, c.Suspended(), 1)

	assert.Equal(t, 1, c.ReleaseAll())
	wg.Wait()
	assert.Equal(t, PhaseAfter, <-results)
}

func TestDefault_IsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.False(t, Default().Enabled(Phase("other")))
}
