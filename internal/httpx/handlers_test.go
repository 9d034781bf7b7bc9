package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/apperr"
	"github.com/ariefcatur/go-store-orders/internal/config"
	"github.com/ariefcatur/go-store-orders/internal/notify"
	"github.com/ariefcatur/go-store-orders/internal/orders"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuth = config.AuthConfig{JWTSecret: "test-secret", JWTIssuer: "store"}

type fakeOrders struct {
	created    []orders.CreateOrderInput
	createErr  error
	updates    []string
	updateErr  error
	approved   []int64
	order      *orders.Order
	status     orders.Status
	mine       []orders.Order
	lastUserID int64
	all        *orders.OrderPage
	gotPage    [2]int
}

func (f *fakeOrders) ListOrders(_ context.Context, page, size int) (*orders.OrderPage, error) {
	f.gotPage = [2]int{page, size}
	return f.all, nil
}

func (f *fakeOrders) CreateOrder(_ context.Context, in orders.CreateOrderInput) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, in)
	return 101, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id int64, st orders.Status, by string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, string(st)+"|"+by)
	return nil
}

func (f *fakeOrders) Approve(_ context.Context, id int64, _ string) error {
	f.approved = append(f.approved, id)
	return nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id int64) (*orders.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, apperr.New(apperr.CodeNotFound, "order not found")
	}
	return f.order, nil
}

func (f *fakeOrders) ListCustomerOrders(_ context.Context, customerID int64) ([]orders.Order, error) {
	f.lastUserID = customerID
	return f.mine, nil
}

func (f *fakeOrders) CachedStatus(_ context.Context, id int64) (orders.Status, error) {
	if f.status == "" {
		return "", apperr.New(apperr.CodeNotFound, "order not found")
	}
	return f.status, nil
}

type fakeNotifications struct {
	page      *orders.NotificationPage
	gotPage   [2]int
	readErr   error
	read      []int64
	readAdmin bool
	allFor    int64
	admin     []orders.AdminNotification
	unread    bool
}

func (f *fakeNotifications) ListNotifications(_ context.Context, userID int64, page, size int) (*orders.NotificationPage, error) {
	f.gotPage = [2]int{page, size}
	return f.page, nil
}

func (f *fakeNotifications) MarkNotificationRead(_ context.Context, userID int64, isAdmin bool, id int64) error {
	if f.readErr != nil {
		return f.readErr
	}
	f.read = append(f.read, id)
	f.readAdmin = isAdmin
	return nil
}

func (f *fakeNotifications) MarkAllNotificationsRead(_ context.Context, userID int64) (int64, error) {
	f.allFor = userID
	return 3, nil
}

func (f *fakeNotifications) ListAdminNotifications(_ context.Context, unreadOnly bool) ([]orders.AdminNotification, error) {
	f.unread = unreadOnly
	return f.admin, nil
}

type fakeSubscriber struct {
	channel string
	events  []notify.Event
}

func (f *fakeSubscriber) Subscribe(_ context.Context, channel string) (<-chan notify.Event, error) {
	f.channel = channel
	ch := make(chan notify.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type testEnv struct {
	orders *fakeOrders
	notes  *fakeNotifications
	sub    *fakeSubscriber
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{orders: &fakeOrders{}, notes: &fakeNotifications{}, sub: &fakeSubscriber{}}
	e.router = NewRouter(RouterDeps{
		Auth:          testAuth,
		Orders:        e.orders,
		Notifications: e.notes,
		Stream:        e.sub,
		Gatherer:      prometheus.NewRegistry(),
	})
	return e
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := MintToken(testAuth, userID, role, time.Hour, time.Now())
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e *testEnv) do(method, path, auth, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = e.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrder_UsesTokenIdentity(t *testing.T) {
	e := newTestEnv(t)
	body := `{"items":[{"product_id":1,"quantity":2,"unit_price":"10.50"}],"customer_email":"a@b.co"}`

	rec := e.do(http.MethodPost, "/orders", token(t, 7, RoleUser), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"order_id":101}`, rec.Body.String())

	require.Len(t, e.orders.created, 1)
	in := e.orders.created[0]
	require.NotNil(t, in.CustomerID)
	assert.Equal(t, int64(7), *in.CustomerID)
	require.Len(t, in.Items, 1)
	assert.True(t, in.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.50")))
	assert.Equal(t, "a@b.co", in.CustomerEmail)
}

func TestCreateOrder_PayAliasAndAnonymous(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/orders/pay", "", `{"items":[{"product_id":1,"quantity":1,"unit_price":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, e.orders.created[0].CustomerID)
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/orders", "", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, string(apperr.CodeValidation), apiErr.Code)
	assert.Contains(t, apiErr.Details, "items")

	rec = e.do(http.MethodPost, "/orders", "", `{"items":[{"product_id":1,"quantity":0}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Details, "items[0].quantity")

	rec = e.do(http.MethodPost, "/orders", "", `{"items":[{"product_id":1,"quantity":1}],"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, e.orders.created)
}

func TestCreateOrder_InsufficientStockDetails(t *testing.T) {
	e := newTestEnv(t)
	e.orders.createErr = apperr.InsufficientStock(apperr.StockShortage{ProductID: 1, Requested: 5, Available: 3})

	rec := e.do(http.MethodPost, "/orders", token(t, 1, RoleUser), `{"items":[{"product_id":1,"quantity":5}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"INSUFFICIENT_STOCK","message":"product 1 has 3 in stock, 5 requested",
		"details":{"product_id":1,"requested":5,"available":3}}}`, rec.Body.String())
}

func TestInternalErrorsHideCause(t *testing.T) {
	e := newTestEnv(t)
	e.orders.createErr = apperr.Wrap(apperr.CodeInternal, assert.AnError, "insert order")

	rec := e.do(http.MethodPost, "/orders", token(t, 1, RoleUser), `{"items":[{"product_id":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`, rec.Body.String())
}

func TestAuth_InvalidTokenRejected(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/orders", "Bearer not-a-jwt", `{"items":[{"product_id":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := config.AuthConfig{JWTSecret: "other", JWTIssuer: "store"}
	tok, err := MintToken(other, 1, RoleAdmin, time.Hour, time.Now())
	require.NoError(t, err)
	rec = e.do(http.MethodGet, "/orders/mine", "Bearer "+tok, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := MintToken(testAuth, 1, RoleUser, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	rec = e.do(http.MethodGet, "/orders/mine", "Bearer "+expired, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateStatus_AdminOnly(t *testing.T) {
	e := newTestEnv(t)
	body := `{"status":"Shipped"}`

	rec := e.do(http.MethodPut, "/orders/5/status", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPut, "/orders/5/status", token(t, 2, RoleUser), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodPut, "/orders/5/status", token(t, 9, RoleAdmin), body)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"Shipped|user:9"}, e.orders.updates)

	rec = e.do(http.MethodPut, "/orders/5/status", token(t, 9, RoleAdmin), `{"status":"Lost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPut, "/orders/abc/status", token(t, 9, RoleAdmin), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e.orders.updateErr = apperr.New(apperr.CodeNotFound, "order not found")
	rec = e.do(http.MethodPut, "/orders/5/status", token(t, 9, RoleAdmin), body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprove(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/orders/12/approve", token(t, 1, RoleAdmin), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{12}, e.orders.approved)
}

func TestGetOrder_OwnerOrAdmin(t *testing.T) {
	e := newTestEnv(t)
	owner := int64(4)
	e.orders.order = &orders.Order{ID: 8, CustomerID: &owner, Status: orders.StatusPending}

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/orders/8", token(t, 4, RoleUser), "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/orders/8", token(t, 1, RoleAdmin), "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/orders/8", token(t, 5, RoleUser), "").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/orders/8", "", "").Code)
}

func TestListMine(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/orders/mine", token(t, 3, RoleUser), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, int64(3), e.orders.lastUserID)
}

func TestListAllOrders_AdminOnly(t *testing.T) {
	e := newTestEnv(t)
	e.orders.all = &orders.OrderPage{Total: 1, Page: 3, PageSize: 20, Items: []orders.Order{{ID: 9, Status: orders.StatusPending}}}

	rec := e.do(http.MethodGet, "/orders?page=3&page_size=20", token(t, 1, RoleAdmin), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{3, 20}, e.orders.gotPage)
	var got orders.OrderPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Total)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(9), got.Items[0].ID)

	rec = e.do(http.MethodGet, "/orders/admin", token(t, 1, RoleAdmin), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{1, 0}, e.orders.gotPage)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/orders?page_size=x", token(t, 1, RoleAdmin), "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/orders", token(t, 2, RoleUser), "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/orders/admin", token(t, 2, RoleUser), "").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/orders", "", "").Code)
}

func TestGetStatus_Public(t *testing.T) {
	e := newTestEnv(t)
	e.orders.status = orders.StatusShipping
	rec := e.do(http.MethodGet, "/orders/3/status", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"order_id":3,"status":"Shipping"}`, rec.Body.String())
}

func TestNotifications(t *testing.T) {
	e := newTestEnv(t)
	e.notes.page = &orders.NotificationPage{Page: 2, PageSize: 10, Items: []orders.UserNotification{}}

	rec := e.do(http.MethodGet, "/notifications?page=2&page_size=10", token(t, 1, RoleUser), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{2, 10}, e.notes.gotPage)

	rec = e.do(http.MethodGet, "/notifications?page=x", token(t, 1, RoleUser), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPut, "/notifications/44/read", token(t, 1, RoleUser), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{44}, e.notes.read)
	assert.False(t, e.notes.readAdmin)

	e.notes.readErr = apperr.New(apperr.CodeForbidden, "notification belongs to another user")
	rec = e.do(http.MethodPut, "/notifications/45/read", token(t, 1, RoleUser), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodPut, "/notifications/read-all", token(t, 6, RoleUser), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(6), e.notes.allFor)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/notifications", "", "").Code)
}

func TestAdminNotifications(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/admin/notifications", token(t, 1, RoleUser), "").Code)

	rec := e.do(http.MethodGet, "/admin/notifications?unread=true", token(t, 1, RoleAdmin), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, e.notes.unread)
}

func TestStream_RelaysUserChannel(t *testing.T) {
	e := newTestEnv(t)
	e.sub.events = []notify.Event{{
		Type:           notify.EventOrderStatusChanged,
		NotificationID: 77,
		OrderID:        5,
		Message:        "Order #5: Pending → Shipped",
	}}

	rec := e.do(http.MethodGet, "/notifications/stream", token(t, 12, RoleUser), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "user-12", e.sub.channel)

	body := rec.Body.String()
	assert.Contains(t, body, "event: OrderStatusChanged\n")
	assert.Contains(t, body, "id: 77\n")
	assert.Contains(t, body, `"message":"Order #5: Pending → Shipped"`)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/notifications/stream", "", "").Code)
}

func TestParseToken_DefaultsRole(t *testing.T) {
	tok, err := MintToken(testAuth, 5, "", time.Hour, time.Now())
	require.NoError(t, err)
	id, err := ParseToken(testAuth, tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 5, Role: RoleUser}, id)
}
