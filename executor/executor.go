/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package executor runs background database work on a bounded pool and
// exposes the number of tasks still in flight.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/suparena/embedstore/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("executor: shut down")

// Task is a unit of background work. ctx is cancelled when a Shutdown
// deadline expires. A task still queued at that point runs without a worker
// slot and with ctx already cancelled, so it can report that it was dropped.
type Task func(ctx context.Context)

// Option configures an Executor.
type Option func(*Executor)

// WithName labels the executor in logs.
func WithName(name string) Option {
	return func(e *Executor) {
		e.name = name
	}
}

// Executor runs tasks with at most a fixed number running at once.
type Executor struct {
	name    string
	workers int64
	sem     *semaphore.Weighted
	active  atomic.Int64
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an executor running up to workers tasks concurrently. A
// non-positive value selects GOMAXPROCS.
func New(workers int, opts ...Option) *Executor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		name:    "default",
		workers: int64(workers),
		sem:     semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit queues task. The task counts as active from Submit until it returns.
func (e *Executor) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("executor: nil task")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	e.active.Add(1)
	e.wg.Add(1)
	go e.run(task)
	return nil
}

func (e *Executor) run(task Task) {
	defer e.wg.Done()
	defer e.active.Add(-1)

	if err := e.sem.Acquire(e.ctx, 1); err != nil {
		logging.L().Warn("executor task dropped", zap.String("executor", e.name), zap.Error(err))
		e.call(task)
		return
	}
	defer e.sem.Release(1)
	e.call(task)
}

func (e *Executor) call(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.L().Error("executor task panicked",
				zap.String("executor", e.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	task(e.ctx)
}

// ActiveCount returns the number of tasks submitted and not yet finished.
func (e *Executor) ActiveCount() int {
	return int(e.active.Load())
}

// Workers returns the concurrency limit.
func (e *Executor) Workers() int {
	return int(e.workers)
}

// Shutdown stops accepting tasks and waits for the active ones. When ctx
// ends first, running tasks see their context cancelled, queued tasks run
// with a cancelled context and ctx's error is returned.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		logging.L().Warn("executor shutdown interrupted",
			zap.String("executor", e.name),
			zap.Int("active", e.ActiveCount()))
		return ctx.Err()
	}
}
