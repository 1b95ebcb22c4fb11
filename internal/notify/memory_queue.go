package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned by MemoryQueue.Push when the buffer is full.
var ErrQueueFull = errors.New("notify: queue full")

// MemoryQueue is a bounded in-process queue for single-node deployments.
type MemoryQueue struct {
	tasks chan Task

	mu   sync.Mutex
	dead []Task
}

// NewMemoryQueue returns a queue holding up to size tasks.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{tasks: make(chan Task, size)}
}

// Push never blocks.
func (q *MemoryQueue) Push(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t := <-q.tasks:
		return &t, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) DeadLetter(_ context.Context, t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, t)
	return nil
}

// Pending reports the number of queued tasks.
func (q *MemoryQueue) Pending() int {
	return len(q.tasks)
}

// Dead returns the dead-lettered tasks in arrival order.
func (q *MemoryQueue) Dead() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.dead...)
}
