package orders

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"
)

type memState struct {
	products   map[int64]Product
	orders     map[int64]Order
	items      []OrderItem
	userNotes  []UserNotification
	adminNotes []AdminNotification
	nextID     int64
}

func (s memState) clone() memState {
	return memState{
		products:   maps.Clone(s.products),
		orders:     maps.Clone(s.orders),
		items:      append([]OrderItem(nil), s.items...),
		userNotes:  append([]UserNotification(nil), s.userNotes...),
		adminNotes: append([]AdminNotification(nil), s.adminNotes...),
		nextID:     s.nextID,
	}
}

// memStore serialises transactions on one mutex; a tx works on a copy and
// Commit swaps it in.
type memStore struct {
	mu    sync.Mutex
	state memState

	begins    int
	locks     []int64
	beginErr  error
	itemsErr  error
	commitErr error
}

var _ Store = (*memStore)(nil)

func newMemStore(products ...Product) *memStore {
	s := &memStore{state: memState{products: map[int64]Product{}, orders: map[int64]Order{}}}
	for _, p := range products {
		s.state.products[p.ID] = p
	}
	return s
}

func (s *memStore) Begin(context.Context) (Tx, error) {
	s.mu.Lock()
	s.begins++
	if s.beginErr != nil {
		s.mu.Unlock()
		return nil, s.beginErr
	}
	return &memTx{s: s, state: s.state.clone()}, nil
}

func (s *memStore) product(id int64) Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.products[id]
}

// lockOrder lists product ids in the order LockProduct saw them.
func (s *memStore) lockOrder() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.locks...)
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *memStore) itemsFor(orderID int64) []OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OrderItem
	for _, it := range s.state.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

func (s *memStore) userNotifications() []UserNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UserNotification(nil), s.state.userNotes...)
}

func (s *memStore) adminNotifications() []AdminNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AdminNotification(nil), s.state.adminNotes...)
}

// seedOrder inserts an order directly, bypassing checkout.
func (s *memStore) seedOrder(o Order) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextID++
	o.ID = s.state.nextID
	s.state.orders[o.ID] = o
	return o.ID
}

func (s *memStore) seedUserNotification(n UserNotification) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextID++
	n.ID = s.state.nextID
	s.state.userNotes = append(s.state.userNotes, n)
	return n.ID
}

func (s *memStore) GetOrder(_ context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, it := range s.state.items {
		if it.OrderID == id {
			o.Items = append(o.Items, it)
		}
	}
	return &o, nil
}

func (s *memStore) ListOrdersByCustomer(_ context.Context, customerID int64) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.state.orders {
		if o.CustomerID != nil && *o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) ListOrders(_ context.Context, limit, offset int) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]Order, 0, len(s.state.orders))
	for _, o := range s.state.orders {
		for _, it := range s.state.items {
			if it.OrderID == o.ID {
				o.Items = append(o.Items, it)
			}
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

func (s *memStore) GetOrderStatus(_ context.Context, id int64) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return "", ErrNotFound
	}
	return o.Status, nil
}

func visibleTo(n UserNotification, userID int64) bool {
	return n.UserID == nil || *n.UserID == userID
}

func (s *memStore) ListUserNotifications(_ context.Context, userID int64, limit, offset int) ([]UserNotification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []UserNotification
	for i := len(s.state.userNotes) - 1; i >= 0; i-- {
		if n := s.state.userNotes[i]; visibleTo(n, userID) {
			all = append(all, n)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (s *memStore) GetUserNotification(_ context.Context, id int64) (*UserNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.state.userNotes {
		if n.ID == id {
			return &n, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) MarkUserNotificationRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.userNotes {
		if s.state.userNotes[i].ID == id {
			s.state.userNotes[i].IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) MarkAllUserNotificationsRead(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.state.userNotes {
		if visibleTo(s.state.userNotes[i], userID) && !s.state.userNotes[i].IsRead {
			s.state.userNotes[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListAdminNotifications(_ context.Context, unreadOnly bool) ([]AdminNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AdminNotification
	for i := len(s.state.adminNotes) - 1; i >= 0; i-- {
		if n := s.state.adminNotes[i]; !unreadOnly || !n.IsRead {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memStore) MarkAdminNotificationsRead(_ context.Context, orderID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.state.adminNotes {
		if s.state.adminNotes[i].OrderID == orderID && !s.state.adminNotes[i].IsRead {
			s.state.adminNotes[i].IsRead = true
			n++
		}
	}
	return n, nil
}

type memTx struct {
	s     *memStore
	state memState
	done  bool
}

func (t *memTx) id() int64 {
	t.state.nextID++
	return t.state.nextID
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	o.ID = t.id()
	t.state.orders[o.ID] = *o
	return nil
}

func (t *memTx) LockProduct(_ context.Context, productID int64) (*Product, error) {
	t.s.locks = append(t.s.locks, productID)
	p, ok := t.state.products[productID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	p, ok := t.state.products[productID]
	if !ok || p.Stock < qty {
		return ErrStockConflict
	}
	p.Stock -= qty
	t.state.products[productID] = p
	return nil
}

func (t *memTx) InsertOrderItems(_ context.Context, orderID int64, items []OrderItem) error {
	if t.s.itemsErr != nil {
		return t.s.itemsErr
	}
	for i := range items {
		items[i].ID = t.id()
		items[i].OrderID = orderID
		t.state.items = append(t.state.items, items[i])
	}
	return nil
}

func (t *memTx) InsertAdminNotification(_ context.Context, n *AdminNotification) error {
	n.ID = t.id()
	t.state.adminNotes = append(t.state.adminNotes, *n)
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (*Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id int64, status Status, shippedAt *time.Time) error {
	o, ok := t.state.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.ShippedAt = shippedAt
	t.state.orders[id] = o
	return nil
}

func (t *memTx) InsertUserNotification(_ context.Context, n *UserNotification) error {
	n.ID = t.id()
	t.state.userNotes = append(t.state.userNotes, *n)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return errors.New("tx closed")
	}
	t.done = true
	defer t.s.mu.Unlock()
	if t.s.commitErr != nil {
		return t.s.commitErr
	}
	t.s.state = t.state
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}
