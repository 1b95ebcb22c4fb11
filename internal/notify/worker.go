package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const maxRetryDelay = 10 * time.Minute

// errRequeue marks a failure to put a task back on the queue. Run has
// already logged it and keeps polling.
var errRequeue = errors.New("notify: requeue failed")

// Worker drains a Queue into a Sender.
type Worker struct {
	queue       Queue
	sender      Sender
	maxAttempts int
	retryDelay  time.Duration
	poll        time.Duration
	sendTimeout time.Duration
	now         func() time.Time
	log         *logrus.Entry
}

// NewWorker returns a worker that gives up on a task after maxAttempts
// failed deliveries. A failed task waits retryDelay before its second
// delivery, doubling on each further failure.
func NewWorker(q Queue, s Sender, maxAttempts int, retryDelay time.Duration) *Worker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Worker{
		queue:       q,
		sender:      s,
		maxAttempts: maxAttempts,
		retryDelay:  max(retryDelay, 0),
		poll:        time.Second,
		sendTimeout: 10 * time.Second,
		now:         time.Now,
		log:         logrus.WithField("component", "notify-worker"),
	}
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Notification worker started")
	defer w.log.Info("Notification worker stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if !errors.Is(err, errRequeue) {
				w.log.WithField("error", err.Error()).Error("queue read failed")
			}
			w.sleep(ctx, w.poll)
		}
	}
}

// ProcessOne waits for one task and delivers it. It reports whether a task
// was handled. A task still inside its retry delay goes back on the queue
// untouched and counts as not handled.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Pop(ctx, w.poll)
	if err != nil || task == nil {
		return false, err
	}
	fields := logrus.Fields{"task_id": task.ID, "transaction_id": task.Notification.TransactionID}

	if wait := task.NotBefore.Sub(w.now()); wait > 0 {
		if err := w.requeue(ctx, *task, fields); err != nil {
			return false, err
		}
		w.sleep(ctx, min(wait, w.poll))
		return false, nil
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.sendTimeout)
	err = w.sender.Send(sendCtx, task.Notification)
	cancel()

	if err == nil {
		w.log.WithFields(fields).Debug("notification sent")
		return true, nil
	}

	task.Attempts++
	task.LastError = err.Error()
	fields["attempts"] = task.Attempts
	fields["error"] = task.LastError
	if task.Attempts >= w.maxAttempts {
		w.log.WithFields(fields).Error("notification dead-lettered")
		qctx, qcancel := context.WithTimeout(context.WithoutCancel(ctx), w.sendTimeout)
		defer qcancel()
		if err := w.queue.DeadLetter(qctx, *task); err != nil {
			w.log.WithFields(fields).WithField("queue_error", err.Error()).Error("notification requeue failed")
			return true, fmt.Errorf("%w: %w", errRequeue, err)
		}
		return true, nil
	}
	task.NotBefore = w.now().Add(w.backoff(task.Attempts))
	fields["not_before"] = task.NotBefore
	w.log.WithFields(fields).Warn("notification failed, requeued")
	if err := w.requeue(ctx, *task, fields); err != nil {
		return true, err
	}
	return true, nil
}

func (w *Worker) requeue(ctx context.Context, t Task, fields logrus.Fields) error {
	// ctx may already be cancelled here.
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.sendTimeout)
	defer cancel()
	if err := w.queue.Push(qctx, t); err != nil {
		w.log.WithFields(fields).WithField("queue_error", err.Error()).Error("notification requeue failed")
		return fmt.Errorf("%w: %w", errRequeue, err)
	}
	return nil
}

// backoff is the wait after the given number of failed deliveries.
func (w *Worker) backoff(attempts int) time.Duration {
	d := w.retryDelay
	for i := 1; i < attempts && d < maxRetryDelay; i++ {
		d *= 2
	}
	return min(d, maxRetryDelay)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
