package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/metrics"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox and writes them from one goroutine.
// Publish never blocks: when the inbox is full the message is dropped.
type Producer struct {
	w       messageWriter
	log     *logger.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	inbox   chan kafka.Message
	closeCh chan struct{}
}

// NewProducer builds a writer without a fixed topic; every message carries
// its own.
func NewProducer(brokers []string, buf int, log *logger.Logger, m *metrics.Metrics) *Producer {
	if log == nil {
		log = logger.Nop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Error(context.Background(), "kafka write failed", err)
			}
		},
	}
	return newProducer(w, buf, log, m)
}

func newProducer(w messageWriter, buf int, log *logger.Logger, m *metrics.Metrics) *Producer {
	if buf <= 0 {
		buf = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Producer{
		w:       w,
		log:     log,
		metrics: m,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start drains the inbox until Close is called or ctx ends, then flushes
// what is left and closes the writer.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		p.Close()
	}()
	go func() {
		defer close(p.closeCh)
		wctx := context.WithoutCancel(ctx)
		for m := range p.inbox {
			if err := p.w.WriteMessages(wctx, m); err != nil {
				p.log.Error(p.log.WithField(wctx, "topic", m.Topic), "kafka publish", err)
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn(wctx, "close kafka writer", err)
		}
	}()
}

// Publish queues a message for topic and reports whether it was accepted.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) bool {
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(ctx, topic, "producer closed")
		return false
	}
	select {
	case p.inbox <- m:
		return true
	default:
		p.drop(ctx, topic, "producer inbox full")
		return false
	}
}

func (p *Producer) drop(ctx context.Context, topic, reason string) {
	p.metrics.EventDropped()
	p.log.Warn(p.log.WithField(ctx, "topic", topic), "dropping event: "+reason, nil)
}

// Close stops accepting messages; the writer goroutine flushes the rest.
// Safe to call more than once.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the flush finished.
func (p *Producer) WaitClosed() { <-p.closeCh }
