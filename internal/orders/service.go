package orders

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/apperr"
	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/metrics"
	"github.com/ariefcatur/go-store-orders/internal/notify"
	"github.com/shopspring/decimal"
)

// StatusCache is a best-effort read cache for order status.
type StatusCache interface {
	SetStatus(ctx context.Context, orderID int64, status Status) error
	// GetStatus returns ErrNotFound on a cache miss.
	GetStatus(ctx context.Context, orderID int64) (Status, error)
	InvalidateStatus(ctx context.Context, orderID int64) error
}

// Enqueuer accepts delivery retries; *notify.Queue satisfies it.
type Enqueuer interface {
	Enqueue(job notify.Job) error
}

type ItemInput struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

type CreateOrderInput struct {
	CustomerID      *int64 // nil when the caller is anonymous
	Items           []ItemInput
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	PaymentMethod   string
	Note            string
}

type Deps struct {
	Store      Store
	Notifier   notify.Notifier
	Queue      Enqueuer
	Events     EventSink   // optional
	Cache      StatusCache // optional
	Log        *logger.Logger
	Metrics    *metrics.Metrics
	AllowGuest bool
	Now        func() time.Time
}

// Service runs checkout and the order status workflow.
type Service struct {
	store      Store
	notifier   notify.Notifier
	queue      Enqueuer
	events     EventSink
	cache      StatusCache
	log        *logger.Logger
	metrics    *metrics.Metrics
	allowGuest bool
	now        func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("orders: store required")
	}
	if d.Notifier == nil {
		return nil, errors.New("orders: realtime notifier required")
	}
	if d.Queue == nil {
		return nil, errors.New("orders: retry queue required")
	}
	s := &Service{
		store:      d.Store,
		notifier:   d.Notifier,
		queue:      d.Queue,
		events:     d.Events,
		cache:      d.Cache,
		log:        d.Log,
		metrics:    d.Metrics,
		allowGuest: d.AllowGuest,
		now:        d.Now,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// CreateOrder reserves stock and records the order, its items and the admin
// approval notice in one transaction. Nothing is written unless every line
// item passes the stock check.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (int64, error) {
	if len(in.Items) == 0 {
		return 0, s.reject(apperr.New(apperr.CodeValidation, "order has no items"))
	}
	items := make([]OrderItem, 0, len(in.Items))
	total := decimal.Zero
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return 0, s.reject(apperr.New(apperr.CodeValidation, fmt.Sprintf("invalid quantity for product %d", it.ProductID)))
		}
		if it.UnitPrice.IsNegative() {
			return 0, s.reject(apperr.New(apperr.CodeValidation, fmt.Sprintf("invalid unit price for product %d", it.ProductID)))
		}
		item := OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}
	if in.CustomerID == nil && !s.allowGuest {
		return 0, s.reject(apperr.New(apperr.CodeUnauthorized, "sign in to place an order"))
	}

	order := &Order{
		CustomerID:      in.CustomerID,
		Total:           total,
		Status:          StatusPending,
		Note:            in.Note,
		CustomerName:    in.CustomerName,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		CreatedAt:       s.now(),
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, s.internal(ctx, err, "begin checkout")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.InsertOrder(ctx, order); err != nil {
		return 0, s.internal(ctx, err, "insert order")
	}

	// ascending product ids, so concurrent checkouts lock rows in one order
	locking := slices.Clone(items)
	slices.SortStableFunc(locking, func(a, b OrderItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
	for _, it := range locking {
		p, err := tx.LockProduct(ctx, it.ProductID)
		if errors.Is(err, ErrNotFound) {
			// deleted products keep their line item but have no stock to move
			continue
		}
		if err != nil {
			return 0, s.internal(ctx, err, "load product")
		}
		shortage := apperr.StockShortage{ProductID: it.ProductID, Requested: it.Quantity, Available: p.Stock}
		if p.Stock < it.Quantity {
			return 0, s.reject(apperr.InsufficientStock(shortage))
		}
		if err := tx.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			if errors.Is(err, ErrStockConflict) {
				return 0, s.reject(apperr.InsufficientStock(shortage))
			}
			return 0, s.internal(ctx, err, "decrement stock")
		}
	}

	if err := tx.InsertOrderItems(ctx, order.ID, items); err != nil {
		return 0, s.internal(ctx, err, "insert order items")
	}
	if err := tx.InsertAdminNotification(ctx, &AdminNotification{
		OrderID:   order.ID,
		Message:   fmt.Sprintf("Order #%d is awaiting approval", order.ID),
		CreatedAt: order.CreatedAt,
	}); err != nil {
		return 0, s.internal(ctx, err, "insert admin notification")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, s.internal(ctx, err, "commit checkout")
	}

	ctx = s.log.WithField(ctx, "order_id", order.ID)
	s.log.Info(ctx, "order created")
	s.metrics.OrderCreated()
	if s.events != nil {
		s.events.Emit(ctx, TopicOrderCreated, order.ID, EventOrderCreated, OrderCreatedPayload{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Items:      toItemPrices(items),
			Total:      order.Total,
		})
	}
	return order.ID, nil
}

// UpdateStatus commits the new status and the customer's notification, then
// pushes the notification in realtime. A failed push is queued for one retry;
// it never undoes the committed change.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status Status, changedBy string) error {
	if !status.Valid() {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("invalid status %q", status))
	}
	ctx = s.log.WithFields(ctx, map[string]any{"order_id": orderID, "changed_by": changedBy})

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return s.internal(ctx, err, "begin status update")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := tx.LockOrder(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "order not found")
	}
	if err != nil {
		return s.internal(ctx, err, "load order")
	}

	now := s.now()
	old := order.Status
	msg := fmt.Sprintf("Order #%d: %s → %s", orderID, old, status)
	shippedAt := order.ShippedAt
	if status.StampsShipped() && shippedAt == nil {
		shippedAt = &now
	}
	if err := tx.UpdateOrderStatus(ctx, orderID, status, shippedAt); err != nil {
		return s.internal(ctx, err, "update order status")
	}

	var notif *UserNotification
	if order.CustomerID != nil {
		notif = &UserNotification{
			UserID:    order.CustomerID,
			OrderID:   orderID,
			Message:   msg,
			CreatedAt: now,
		}
		if err := tx.InsertUserNotification(ctx, notif); err != nil {
			return s.internal(ctx, err, "insert user notification")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return s.internal(ctx, err, "commit status update")
	}

	s.log.Info(ctx, fmt.Sprintf("order status %s -> %s", old, status))
	s.metrics.StatusUpdated(string(status))
	// the next read refills it; writing here could race a newer update
	s.invalidateStatus(ctx, orderID)
	if s.events != nil {
		payload := OrderStatusChangedPayload{
			OrderID:       orderID,
			CustomerID:    order.CustomerID,
			CustomerEmail: order.CustomerEmail,
			OldStatus:     old,
			NewStatus:     status,
			ChangedBy:     changedBy,
			Message:       msg,
		}
		if notif != nil {
			payload.NotificationID = notif.ID
		}
		s.events.Emit(ctx, TopicOrderStatusChanged, orderID, EventOrderStatusChanged, payload)
	}
	if notif != nil {
		s.push(ctx, *order.CustomerID, notif)
	}
	return nil
}

// Approve moves the order to Approved and acknowledges its admin notices.
func (s *Service) Approve(ctx context.Context, orderID int64, changedBy string) error {
	if err := s.UpdateStatus(ctx, orderID, StatusApproved, changedBy); err != nil {
		return err
	}
	if _, err := s.store.MarkAdminNotificationsRead(ctx, orderID); err != nil {
		s.log.Warn(s.log.WithField(ctx, "order_id", orderID), "mark admin notifications read", err)
	}
	return nil
}

func (s *Service) push(ctx context.Context, customerID int64, n *UserNotification) {
	channel := notify.ChannelForUser(customerID)
	ev := notify.Event{
		Type:           notify.EventOrderStatusChanged,
		NotificationID: n.ID,
		OrderID:        n.OrderID,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	}
	err := s.safeNotify(ctx, channel, ev)
	if err == nil {
		return
	}

	s.metrics.PushFailed()
	s.log.Warn(ctx, "realtime push failed, queueing retry", err)
	job := notify.Job{
		Kind:           notify.JobRetryRealtimePush,
		NotificationID: n.ID,
		OrderID:        n.OrderID,
		Payload:        n.Message,
		Recipient:      channel,
		CreatedAt:      n.CreatedAt,
	}
	if qerr := s.queue.Enqueue(job); qerr != nil {
		s.log.Error(ctx, "queue realtime retry", qerr)
	}
}

func (s *Service) safeNotify(ctx context.Context, channel string, ev notify.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.New(apperr.CodeDelivery, fmt.Sprintf("notifier panic: %v", r))
		}
	}()
	return s.notifier.Notify(ctx, channel, ev)
}

func (s *Service) cacheStatus(ctx context.Context, orderID int64, status Status) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetStatus(ctx, orderID, status); err != nil {
		s.log.Warn(ctx, "cache order status", err)
	}
}

func (s *Service) invalidateStatus(ctx context.Context, orderID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateStatus(ctx, orderID); err != nil {
		s.log.Warn(ctx, "invalidate cached order status", err)
	}
}

func (s *Service) reject(err *apperr.Error) error {
	s.metrics.OrderRejected(string(err.Code()))
	return err
}

func (s *Service) internal(ctx context.Context, err error, op string) error {
	s.log.Error(ctx, op, err)
	return apperr.Wrap(apperr.CodeInternal, err, op)
}

func toItemPrices(items []OrderItem) []ItemPrice {
	out := make([]ItemPrice, 0, len(items))
	for _, it := range items {
		out = append(out, ItemPrice{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}
