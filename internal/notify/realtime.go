package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/apperr"
	"github.com/redis/go-redis/v9"
)

const EventOrderStatusChanged = "OrderStatusChanged"

// Event is the payload pushed to realtime subscribers.
type Event struct {
	Type           string    `json:"type"`
	NotificationID int64     `json:"notification_id"`
	OrderID        int64     `json:"order_id"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// Notifier delivers an event to every subscriber of channel at call time.
// A returned error means delivery was not attempted or not acknowledged; the
// caller decides whether to queue a retry.
type Notifier interface {
	Notify(ctx context.Context, channel string, ev Event) error
}

// ChannelForUser names the realtime channel of one customer.
func ChannelForUser(userID int64) string {
	return "user-" + strconv.FormatInt(userID, 10)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier fans events out over Redis pub/sub. Every API instance
// subscribed to the channel relays the event to its SSE connections.
type RedisNotifier struct {
	pub     publisher
	rdb     *redis.Client
	timeout time.Duration
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{pub: rdb, rdb: rdb, timeout: 2 * time.Second}
}

func (n *RedisNotifier) Notify(ctx context.Context, channel string, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return apperr.Wrap(apperr.CodeDelivery, err, "encode realtime event")
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	// zero receivers is fine: nobody is connected for this customer right now
	if err := n.pub.Publish(ctx, channel, b).Err(); err != nil {
		return apperr.Wrap(apperr.CodeDelivery, err, fmt.Sprintf("publish to %s", channel))
	}
	return nil
}

// Subscribe streams events published on channel until ctx is done. The
// returned channel is closed when the subscription ends.
func (n *RedisNotifier) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	if n.rdb == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	sub := n.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
