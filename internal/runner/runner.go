// Package runner executes one compiled unit of work on its own goroutine,
// decoupled from the dispatch thread, with ordered lifecycle hooks and
// panic capture.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Task is the three-phase lifecycle of one run. Init, Run and Done execute
// strictly in that order on the same worker goroutine. If Run fails, Done is
// skipped and the failure is reported to the caller.
type Task interface {
	Init() error
	Run() error
	Done() error
}

// ErrDeadline is returned by Wait when the worker has not finished within
// the caller's deadline. The worker goroutine itself cannot be preempted and
// is abandoned; when it eventually finishes it commits nothing, so an
// abandoned run never mutates shared state behind the caller's back.
var ErrDeadline = errors.New("runner: deadline exceeded waiting for completion")

// Runner drives a single Task. A Runner is single-use: Start once, Wait once.
type Runner struct {
	task Task
	done chan struct{}
	err  error

	// claimed settles the race between the worker finishing Run and the
	// waiter hitting its deadline. Whoever claims first decides whether Done
	// runs: a worker that loses skips it entirely.
	claimed atomic.Bool
}

// New prepares a runner for task.
func New(task Task) *Runner {
	return &Runner{task: task, done: make(chan struct{})}
}

// Start launches the worker goroutine and returns immediately.
func (r *Runner) Start() {
	go func() {
		defer close(r.done)
		if err := guard(r.task.Init); err != nil {
			r.err = fmt.Errorf("init: %w", err)
			return
		}
		if err := guard(r.task.Run); err != nil {
			r.err = err
			return
		}
		if !r.claimed.CompareAndSwap(false, true) {
			// The waiter gave up at the deadline. Committing results now
			// would race with whatever the caller is doing next.
			return
		}
		if err := guard(r.task.Done); err != nil {
			r.err = fmt.Errorf("done: %w", err)
		}
	}()
}

// Wait blocks until the worker finishes or ctx is done, whichever comes
// first. On completion it returns the task's error, if any; on expiry it
// returns ErrDeadline wrapped with the context cause and the late worker is
// prevented from running its Done hook.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		if r.claimed.CompareAndSwap(false, true) {
			return fmt.Errorf("%w: %v", ErrDeadline, context.Cause(ctx))
		}
		// The worker claimed completion first; its Done hook is already
		// committing, so join it.
		<-r.done
		return r.err
	}
}

// guard invokes f and converts a panic into an error so user code can never
// take down the dispatch loop.
func guard(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return f()
}
