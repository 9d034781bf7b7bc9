package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is owned by the catalog; checkout only reads and decrements stock.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

type Order struct {
	ID              int64           `json:"order_id"`
	CustomerID      *int64          `json:"customer_id,omitempty"` // nil for guest checkout
	Total           decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	Note            string          `json:"note,omitempty"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ShippedAt       *time.Time      `json:"shipped_at,omitempty"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem keeps the unit price paid at checkout; later catalog price
// changes never touch it. ProductID may outlive the product row.
type OrderItem struct {
	ID        int64           `json:"order_item_id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// UserNotification with a nil UserID is global and shown to every customer.
type UserNotification struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id,omitempty"`
	OrderID   int64     `json:"order_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type AdminNotification struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
