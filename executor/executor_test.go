/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveCountTracksQueuedAndRunningTasks(t *testing.T) {
	e := New(1)
	release := make(chan struct{})
	started := make(chan struct{}, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Submit(func(ctx context.Context) {
			started <- struct{}{}
			<-release
		}))
	}
	<-started
	assert.Equal(t, 3, e.ActiveCount())

	close(release)
	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, 0, e.ActiveCount())
}

func TestConcurrencyIsBounded(t *testing.T) {
	e := New(2, WithName("bounded"))
	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, e.Submit(func(ctx context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 2, e.Workers())
}

func TestPanicsAreRecovered(t *testing.T) {
	e := New(1)
	require.NoError(t, e.Submit(func(ctx context.Context) { panic("boom") }))
	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, 0, e.ActiveCount())
}

func TestSubmitAfterShutdown(t *testing.T) {
	e := New(0)
	require.NoError(t, e.Shutdown(context.Background()))
	assert.ErrorIs(t, e.Submit(func(ctx context.Context) {}), ErrClosed)
	assert.Error(t, New(1).Submit(nil))
}

func TestShutdownDeadlineCancelsTasks(t *testing.T) {
	e := New(1)
	cancelled := make(chan struct{})
	require.NoError(t, e.Submit(func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running task did not observe cancellation")
	}
}

func TestShutdownDeadlineHandsQueuedTasksACancelledContext(t *testing.T) {
	e := New(1)
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	require.NoError(t, e.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	dropped := make(chan error, 1)
	require.NoError(t, e.Submit(func(ctx context.Context) {
		dropped <- ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case err := <-dropped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("queued task was never run")
	}
}
