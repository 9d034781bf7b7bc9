package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID    int64           `json:"order_id"`
	CustomerID *int64          `json:"customer_id,omitempty"`
	Items      []ItemPrice     `json:"items"`
	Total      decimal.Decimal `json:"total_amount"`
}

type OrderStatusChangedPayload struct {
	OrderID        int64  `json:"order_id"`
	CustomerID     *int64 `json:"customer_id,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	OldStatus      Status `json:"old_status"`
	NewStatus      Status `json:"new_status"`
	ChangedBy      string `json:"changed_by"`
	NotificationID int64  `json:"notification_id,omitempty"`
	Message        string `json:"message"`
}

// EventSink receives committed order events. Implementations must not
// block the caller; delivery is best effort.
type EventSink interface {
	Emit(ctx context.Context, topic string, orderID int64, eventType string, payload any)
}
