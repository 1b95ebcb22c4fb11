// Package notify delivers transaction notifications out of band. The engine
// enqueues a Task through Enqueuer; a Worker pops tasks and hands them to a
// Sender, re-queueing failures and dead-lettering tasks that keep failing.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

// Task is one queued notification.
type Task struct {
	ID           string              `json:"id"`
	Notification domain.Notification `json:"notification"`
	Attempts     int                 `json:"attempts"`
	LastError    string              `json:"last_error,omitempty"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	NotBefore    time.Time           `json:"not_before,omitzero"`
}

// Queue holds tasks between the engine and the worker.
type Queue interface {
	Push(ctx context.Context, t Task) error
	// Pop waits up to timeout for a task. It returns nil, nil on timeout.
	Pop(ctx context.Context, timeout time.Duration) (*Task, error)
	DeadLetter(ctx context.Context, t Task) error
}

// Enqueuer is the ledger's Notifier: it turns notifications into queued tasks.
type Enqueuer struct {
	queue Queue
	now   func() time.Time
}

// NewEnqueuer returns a notifier that pushes onto q.
func NewEnqueuer(q Queue) *Enqueuer {
	return &Enqueuer{queue: q, now: time.Now}
}

// Notify queues n for delivery.
func (e *Enqueuer) Notify(ctx context.Context, n domain.Notification) error {
	return e.queue.Push(ctx, Task{
		ID:           uuid.NewString(),
		Notification: n,
		EnqueuedAt:   e.now().UTC(),
	})
}
