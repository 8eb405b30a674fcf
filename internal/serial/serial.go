// Package serial runs tasks one at a time on a single dedicated goroutine
//
// It is the designated execution context for user-visible completion work:
// runtime threads hand results over with Post and never wait for them, while
// every task observes the effects of the tasks posted before it.
package serial

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// DefaultQueueSize is the queue depth used when New gets a size <= 0
const DefaultQueueSize = 16

// ErrClosed is returned by Flush after Close
var ErrClosed = errors.New("serial: executor closed")

// Stats is a point-in-time copy of executor counters
type Stats struct {
	Posted   uint64
	Dropped  uint64
	Executed uint64
}

// Executor is a single-goroutine FIFO task runner
type Executor struct {
	tasks chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	posted   atomic.Uint64
	dropped  atomic.Uint64
	executed atomic.Uint64
}

// New starts an executor with a bounded queue
func New(queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	e := &Executor{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *Executor) loop() {
	defer close(e.done)
	for task := range e.tasks {
		task()
		e.executed.Add(1)
	}
}

// Post enqueues task without blocking
//
// Semantics:
//   - Returns true when the task was queued
//   - Returns false when the queue is full or the executor is closed; the
//     task will never run and the caller keeps ownership of anything it
//     captured
//
// Safe to call from any goroutine, including runtime streaming threads.
func (e *Executor) Post(task func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		return false
	}

	select {
	case e.tasks <- task:
		e.posted.Add(1)
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Flush blocks until every task posted before the call has run
func (e *Executor) Flush(ctx context.Context) error {
	marker := make(chan struct{})

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	select {
	case e.tasks <- func() { close(marker) }:
		e.mu.RUnlock()
	case <-ctx.Done():
		e.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, runs the ones already queued and waits for
// the goroutine to exit
//
// Idempotent. Must not be called from inside a task.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()
	<-e.done
}

// Stats returns the executor counters
func (e *Executor) Stats() Stats {
	return Stats{
		Posted:   e.posted.Load(),
		Dropped:  e.dropped.Load(),
		Executed: e.executed.Load(),
	}
}
