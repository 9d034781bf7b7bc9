package orders

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStockConflict means a conditional decrement matched no row even
	// though the locked read saw enough stock.
	ErrStockConflict = errors.New("stock changed during reservation")
)

// Store is the transactional relational store behind the workflow.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error)
	// ListOrders pages over all orders, newest first, items included, and
	// returns the total order count.
	ListOrders(ctx context.Context, limit, offset int) ([]Order, int, error)
	GetOrderStatus(ctx context.Context, id int64) (Status, error)

	ListUserNotifications(ctx context.Context, userID int64, limit, offset int) ([]UserNotification, int, error)
	GetUserNotification(ctx context.Context, id int64) (*UserNotification, error)
	MarkUserNotificationRead(ctx context.Context, id int64) error
	MarkAllUserNotificationsRead(ctx context.Context, userID int64) (int64, error)

	ListAdminNotifications(ctx context.Context, unreadOnly bool) ([]AdminNotification, error)
	MarkAdminNotificationsRead(ctx context.Context, orderID int64) (int64, error)
}

// Tx is one unit of work. Rollback after Commit is a no-op.
type Tx interface {
	InsertOrder(ctx context.Context, o *Order) error
	// LockProduct returns ErrNotFound when the product row is gone.
	LockProduct(ctx context.Context, productID int64) (*Product, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
	InsertOrderItems(ctx context.Context, orderID int64, items []OrderItem) error
	InsertAdminNotification(ctx context.Context, n *AdminNotification) error

	// LockOrder returns ErrNotFound when the order does not exist.
	LockOrder(ctx context.Context, id int64) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status Status, shippedAt *time.Time) error
	InsertUserNotification(ctx context.Context, n *UserNotification) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
