/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package testutil helps tests synchronise with asynchronous database work.
package testutil

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultAttempts is the number of ActiveCount reads before giving up.
	DefaultAttempts = 50
	// DefaultInterval is the pause between two reads.
	DefaultInterval = 100 * time.Millisecond
)

// ActiveCounter reports the number of tasks an executor still has in flight.
type ActiveCounter interface {
	ActiveCount() int
}

// TB is the subset of testing.TB the wait helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Poller polls an ActiveCounter until it reports zero.
type Poller struct {
	Attempts int
	Interval time.Duration
}

// DefaultPoller reads 50 times, 100ms apart.
func DefaultPoller() Poller {
	return Poller{Attempts: DefaultAttempts, Interval: DefaultInterval}
}

// Budget is the total time the poller waits before failing.
func (p Poller) Budget() time.Duration {
	return time.Duration(p.Attempts) * p.Interval
}

// Wait blocks until src is idle. It fails t when the budget runs out or
// ctx is cancelled first.
func (p Poller) Wait(ctx context.Context, t TB, src ActiveCounter) {
	t.Helper()
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}

	for i := 0; i < p.Attempts; i++ {
		if src.ActiveCount() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("%v", context.Cause(ctx))
			return
		case <-time.After(p.Interval):
		}
	}
	t.Fatalf("background executor is not finished in %s", formatBudget(p.Budget()))
}

// WaitExecutorIdle waits up to about five seconds for src to report no
// active tasks and fails t otherwise.
func WaitExecutorIdle(t TB, src ActiveCounter) {
	t.Helper()
	DefaultPoller().Wait(context.Background(), t, src)
}

// WaitExecutorIdleContext is WaitExecutorIdle with an interruptible wait.
func WaitExecutorIdleContext(ctx context.Context, t TB, src ActiveCounter) {
	t.Helper()
	DefaultPoller().Wait(ctx, t, src)
}

func formatBudget(d time.Duration) string {
	if d%time.Second == 0 {
		if d == time.Second {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", d/time.Second)
	}
	return d.String()
}
