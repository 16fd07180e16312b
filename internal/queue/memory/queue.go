// Package memory provides the bounded in-memory task queue that feeds the
// harvest worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained, and
// by Enqueue after Close.
var ErrClosed = harvest.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan harvest.Task
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan harvest.Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task harvest.Task) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. Tasks already
// buffered are still delivered after Close.
func (q *Queue) Dequeue(ctx context.Context) (harvest.Task, error) {
	select {
	case <-ctx.Done():
		return harvest.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return harvest.Task{}, ErrClosed
		}
		return task, nil
	}
}

// Close closes the underlying channel. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

// Len reports the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}
