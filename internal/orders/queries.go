package orders

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-store-orders/internal/apperr"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// pageBounds clamps page to at least 1 and pageSize to [1, maxPageSize],
// with defaultPageSize for an unset size.
func pageBounds(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return page, pageSize
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, s.internal(ctx, err, "get order")
	}
	return o, nil
}

type OrderPage struct {
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Items    []Order `json:"items"`
}

// ListOrders is the admin view over every order, newest first.
func (s *Service) ListOrders(ctx context.Context, page, pageSize int) (*OrderPage, error) {
	page, pageSize = pageBounds(page, pageSize)
	items, total, err := s.store.ListOrders(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, s.internal(ctx, err, "list orders")
	}
	if items == nil {
		items = []Order{}
	}
	return &OrderPage{Total: total, Page: page, PageSize: pageSize, Items: items}, nil
}

func (s *Service) ListCustomerOrders(ctx context.Context, customerID int64) ([]Order, error) {
	out, err := s.store.ListOrdersByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.internal(ctx, err, "list customer orders")
	}
	return out, nil
}

// CachedStatus serves the status from cache, falling back to the store and
// refilling the cache on a miss.
func (s *Service) CachedStatus(ctx context.Context, id int64) (Status, error) {
	if s.cache != nil {
		if st, err := s.cache.GetStatus(ctx, id); err == nil {
			return st, nil
		} else if !errors.Is(err, ErrNotFound) {
			s.log.Warn(ctx, "read status cache", err)
		}
	}
	st, err := s.store.GetOrderStatus(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", apperr.New(apperr.CodeNotFound, "order not found")
	}
	if err != nil {
		return "", s.internal(ctx, err, "get order status")
	}
	s.cacheStatus(ctx, id, st)
	return st, nil
}

type NotificationPage struct {
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []UserNotification `json:"items"`
}

// ListNotifications returns the user's own and global notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID int64, page, pageSize int) (*NotificationPage, error) {
	page, pageSize = pageBounds(page, pageSize)
	items, total, err := s.store.ListUserNotifications(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, s.internal(ctx, err, "list notifications")
	}
	if items == nil {
		items = []UserNotification{}
	}
	return &NotificationPage{Total: total, Page: page, PageSize: pageSize, Items: items}, nil
}

// MarkNotificationRead lets a user acknowledge their own or a global
// notification. Admins may acknowledge any.
func (s *Service) MarkNotificationRead(ctx context.Context, userID int64, isAdmin bool, id int64) error {
	n, err := s.store.GetUserNotification(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "notification not found")
	}
	if err != nil {
		return s.internal(ctx, err, "get notification")
	}
	if n.UserID != nil && *n.UserID != userID && !isAdmin {
		return apperr.New(apperr.CodeForbidden, "notification belongs to another user")
	}
	if n.IsRead {
		return nil
	}
	if err := s.store.MarkUserNotificationRead(ctx, id); err != nil {
		return s.internal(ctx, err, "mark notification read")
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.MarkAllUserNotificationsRead(ctx, userID)
	if err != nil {
		return 0, s.internal(ctx, err, "mark notifications read")
	}
	return n, nil
}

func (s *Service) ListAdminNotifications(ctx context.Context, unreadOnly bool) ([]AdminNotification, error) {
	out, err := s.store.ListAdminNotifications(ctx, unreadOnly)
	if err != nil {
		return nil, s.internal(ctx, err, "list admin notifications")
	}
	if out == nil {
		out = []AdminNotification{}
	}
	return out, nil
}
