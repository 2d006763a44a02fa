// Package eventloop provides the single writer goroutine that owns the frame
// pool. Every pool mutation and every embed callback runs as a task on it, so
// tasks never interleave.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped is returned when a task is posted to a loop that has shut down.
var ErrStopped = errors.New("event loop stopped")

// Poster accepts tasks for serial execution.
type Poster interface {
	// Post queues task and reports whether it was accepted.
	Post(task func()) bool
}

// Loop runs posted tasks one at a time in FIFO order on a single goroutine.
//
// Tasks posted before Run starts are queued and executed once it does. After
// Stop or context cancellation Post returns false and queued tasks are
// dropped.
type Loop struct {
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	running bool

	wg sync.WaitGroup
}

var _ Poster = (*Loop)(nil)

// New creates an idle loop.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{logger: logger}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post queues task.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return true
}

// Run executes tasks until ctx is cancelled or Stop is called. It returns
// nil on a clean shutdown.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("event loop already running")
	}
	l.running = true
	l.wg.Add(1)
	l.mu.Unlock()
	defer l.wg.Done()

	// wake the loop when ctx ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.shutdown()
		case <-done:
		}
	}()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.queue = nil
			l.mu.Unlock()
			return nil
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(task)
	}
}

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Stop shuts the loop down and waits for the running task to finish.
// Idempotent.
func (l *Loop) Stop() {
	l.shutdown()
	l.wg.Wait()
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Do posts fn to p and waits for it to run.
func Do(ctx context.Context, p Poster, fn func()) error {
	done := make(chan struct{})
	if !p.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
