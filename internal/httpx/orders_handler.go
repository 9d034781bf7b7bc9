package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-store-orders/internal/apperr"
	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OrderService is the part of *orders.Service the HTTP layer drives.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (int64, error)
	UpdateStatus(ctx context.Context, orderID int64, status orders.Status, changedBy string) error
	Approve(ctx context.Context, orderID int64, changedBy string) error
	GetOrder(ctx context.Context, id int64) (*orders.Order, error)
	ListCustomerOrders(ctx context.Context, customerID int64) ([]orders.Order, error)
	ListOrders(ctx context.Context, page, pageSize int) (*orders.OrderPage, error)
	CachedStatus(ctx context.Context, id int64) (orders.Status, error)
}

type OrdersHandler struct {
	Svc OrderService
	Log *logger.Logger
}

type createOrderItemReq struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createOrderReq struct {
	Items           []createOrderItemReq `json:"items" validate:"required,min=1,dive"`
	CustomerName    string               `json:"customer_name" validate:"max=200"`
	CustomerEmail   string               `json:"customer_email" validate:"omitempty,email,max=254"`
	CustomerPhone   string               `json:"customer_phone" validate:"max=50"`
	ShippingAddress string               `json:"shipping_address" validate:"max=500"`
	PaymentMethod   string               `json:"payment_method" validate:"max=50"`
	Note            string               `json:"note" validate:"max=1000"`
}

type createOrderResp struct {
	OrderID int64 `json:"order_id"`
}

type updateStatusReq struct {
	Status string `json:"status" validate:"required,oneof=Pending Preparing Shipping Shipped Done Cancelled Approved"`
}

type statusResp struct {
	OrderID int64         `json:"order_id"`
	Status  orders.Status `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/pay", h.createOrder)
	r.Get("/orders/{id}/status", h.getStatus)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.Log))
		r.Get("/orders/mine", h.listMine)
		r.Get("/orders/{id}", h.getOrder)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin(h.Log))
		r.Get("/orders", h.listAll)
		r.Get("/orders/admin", h.listAll)
		r.Put("/orders/{id}/status", h.updateStatus)
		r.Post("/orders/{id}/approve", h.approve)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}

	in := orders.CreateOrderInput{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Note:            req.Note,
		Items:           make([]orders.ItemInput, 0, len(req.Items)),
	}
	if id, ok := IdentityFrom(r.Context()); ok {
		uid := id.UserID
		in.CustomerID = &uid
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, orders.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	orderID, err := h.Svc.CreateOrder(r.Context(), in)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResp{OrderID: orderID})
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	out, err := h.Svc.ListCustomerOrders(r.Context(), id.UserID)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	size, err := queryInt(r, "page_size", 0)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	out, err := h.Svc.ListOrders(r.Context(), page, size)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	o, err := h.Svc.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	if !id.IsAdmin() && (o.CustomerID == nil || *o.CustomerID != id.UserID) {
		// same answer as a missing order so ids cannot be probed
		writeError(r.Context(), h.Log, w, apperr.New(apperr.CodeNotFound, "order not found"))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	st, err := h.Svc.CachedStatus(r.Context(), orderID)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: st})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	var req updateStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	if err := h.Svc.UpdateStatus(r.Context(), orderID, orders.Status(req.Status), actor(r.Context())); err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) approve(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	if err := h.Svc.Approve(r.Context(), orderID, actor(r.Context())); err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actor(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return "user:" + strconv.FormatInt(id.UserID, 10)
}
