package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/metrics"
)

const emailSubject = "Order update"

// Source is what the worker drains; *Queue satisfies it.
type Source interface {
	Dequeue(ctx context.Context) (Job, error)
}

// Worker handles queued jobs one at a time. A failing job is logged and
// dropped; it never stops the loop.
type Worker struct {
	Source     Source
	Notifier   Notifier    // may be nil in processes that only send email
	Email      EmailSender // may be nil when SMTP is not configured
	Log        *logger.Logger
	Metrics    *metrics.Metrics
	FaultPause time.Duration
	Now        func() time.Time
}

// Run blocks until ctx is done or the source is closed and drained.
func (w *Worker) Run(ctx context.Context) error {
	pause := w.FaultPause
	if pause <= 0 {
		pause = time.Second
	}
	w.Log.Info(ctx, "notification worker started")
	defer w.Log.Info(ctx, "notification worker stopped")

	for {
		job, err := w.Source.Dequeue(ctx)
		switch {
		case err == nil:
			w.handle(ctx, job)
		case errors.Is(err, ErrQueueClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			w.Log.Error(ctx, "notification worker dequeue failed", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pause):
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, job Job) {
	jctx := w.Log.WithFields(ctx, map[string]any{
		"job_kind":        string(job.Kind),
		"notification_id": job.NotificationID,
		"order_id":        job.OrderID,
	})
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			w.Log.Error(jctx, "notification job panicked", fmt.Errorf("%v", r))
		}
		w.Metrics.JobHandled(string(job.Kind), outcome)
	}()

	var err error
	switch job.Kind {
	case JobRetryRealtimePush:
		err = w.retryPush(jctx, job)
	case JobSendEmail:
		err = w.sendEmail(jctx, job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if errors.Is(err, errSkipped) {
		outcome = "skipped"
		return
	}
	if err != nil {
		outcome = "failed"
		w.Log.Warn(jctx, "notification job dropped", err)
		return
	}
	w.Log.Info(jctx, "notification job delivered")
}

var errSkipped = errors.New("job skipped")

func (w *Worker) retryPush(ctx context.Context, job Job) error {
	if w.Notifier == nil {
		w.Log.Warn(ctx, "realtime notifier not configured, cannot retry push", nil)
		return errSkipped
	}
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = w.now()
	}
	return w.Notifier.Notify(ctx, job.Recipient, Event{
		Type:           EventOrderStatusChanged,
		NotificationID: job.NotificationID,
		OrderID:        job.OrderID,
		Message:        job.Payload,
		CreatedAt:      createdAt,
	})
}

func (w *Worker) sendEmail(ctx context.Context, job Job) error {
	if w.Email == nil || job.Recipient == "" {
		w.Log.Warn(ctx, "email sender not configured or recipient missing", nil)
		return errSkipped
	}
	return w.Email.SendEmail(ctx, job.Recipient, emailSubject, job.Payload)
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}
