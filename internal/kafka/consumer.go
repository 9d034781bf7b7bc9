package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message is fully handled and its offset
// may be committed. Errors are retried unless wrapped with Permanent.
type Handler func(ctx context.Context, m kafka.Message) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that retrying cannot fix, such as an
// undecodable payload. The message is logged and committed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          messageReader
	workers    int
	log        *logger.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log *logger.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit synchronously
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log *logger.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{
		r:          r,
		workers:    workers,
		log:        log,
		backoff:    200 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
}

// Start fetches until ctx ends. Every partition is pinned to one lane and
// handled in offset order; a failing message is retried with backoff and
// blocks its lane, so no later offset of that partition is committed first.
// Messages still failing at shutdown stay uncommitted and are redelivered.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if !c.process(ctx, h, m) {
					// ctx ended mid-retry; drop the rest of the lane uncommitted
					for range in {
					}
					return
				}
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// process handles m until it succeeds, fails permanently, or ctx ends. It
// reports false only when ctx ended before m was committed.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) bool {
	mctx := c.log.WithFields(ctx, map[string]any{
		"topic": m.Topic, "partition": m.Partition, "offset": m.Offset,
	})
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(mctx, m)
		if err != nil && IsPermanent(err) {
			c.log.Error(mctx, "message rejected, skipping", err)
			err = nil
		}
		if err == nil {
			err = c.r.CommitMessages(ctx, m)
			if err == nil {
				return true
			}
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.Warn(c.log.WithField(mctx, "attempt", attempt), "message failed, retrying", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}
