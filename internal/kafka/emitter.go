package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const eventVersion = 1

// Publisher is the non-blocking side of Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) bool
}

// EventEmitter wraps order events in an Envelope and hands them to the
// producer. It implements orders.EventSink.
type EventEmitter struct {
	pub      Publisher
	producer string
	log      *logger.Logger
	now      func() time.Time
}

var _ orders.EventSink = (*EventEmitter)(nil)

func NewEventEmitter(pub Publisher, producer string, log *logger.Logger) *EventEmitter {
	if log == nil {
		log = logger.Nop()
	}
	return &EventEmitter{
		pub:      pub,
		producer: producer,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *EventEmitter) Emit(ctx context.Context, topic string, orderID int64, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		e.log.Error(ctx, "encode event payload", err)
		return
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    e.now(),
		Producer:      e.producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       raw,
	}
	e.pub.Publish(ctx, topic, orders.PartitionKey(orderID), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(eventVersion))},
	)
}
