package mailer

import (
	"context"
	"fmt"
	"strings"

	kafkax "github.com/ariefcatur/go-store-orders/internal/kafka"
	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/notify"
	"github.com/ariefcatur/go-store-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

// Deduper remembers which events were already turned into emails.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Enqueuer interface {
	Enqueue(job notify.Job) error
}

// Service turns committed status changes into send-email jobs.
type Service struct {
	Dedup Deduper
	Queue Enqueuer
	Log   *logger.Logger
}

// HandleStatusChanged is installed as the consumer handler.
func (s *Service) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return kafkax.Permanent(err)
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}
	ctx = s.Log.WithFields(ctx, map[string]any{"event_id": env.EventID, "trace_id": env.TraceID})

	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		return kafkax.Permanent(err)
	}
	to := strings.TrimSpace(p.CustomerEmail)
	if to == "" {
		s.Log.Debug(ctx, "status change without buyer email, skipping")
		return nil
	}

	first, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !first {
		s.Log.Debug(ctx, "duplicate event, skipping")
		return nil
	}

	job := notify.Job{
		Kind:           notify.JobSendEmail,
		NotificationID: p.NotificationID,
		OrderID:        p.OrderID,
		Payload:        p.Message,
		Recipient:      to,
	}
	if err := s.Queue.Enqueue(job); err != nil {
		if rerr := s.Dedup.Release(ctx, env.EventID); rerr != nil {
			s.Log.Warn(ctx, "release dedup key", rerr)
		}
		return fmt.Errorf("enqueue email: %w", err)
	}
	s.Log.Info(s.Log.WithField(ctx, "order_id", p.OrderID), "email queued")
	return nil
}
