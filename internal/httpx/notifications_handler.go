package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/apperr"
	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/ariefcatur/go-store-orders/internal/notify"
	"github.com/ariefcatur/go-store-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

type NotificationService interface {
	ListNotifications(ctx context.Context, userID int64, page, pageSize int) (*orders.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, userID int64, isAdmin bool, id int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)
	ListAdminNotifications(ctx context.Context, unreadOnly bool) ([]orders.AdminNotification, error)
}

// Subscriber yields realtime events for one channel until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan notify.Event, error)
}

type NotificationsHandler struct {
	Svc NotificationService
	Log *logger.Logger
}

func (h *NotificationsHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.Log))
		r.Get("/notifications", h.list)
		r.Put("/notifications/read-all", h.readAll)
		r.Put("/notifications/{id}/read", h.read)
	})
	r.With(RequireAdmin(h.Log)).Get("/admin/notifications", h.listAdmin)
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
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
	id, _ := IdentityFrom(r.Context())
	out, err := h.Svc.ListNotifications(r.Context(), id.UserID, page, size)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *NotificationsHandler) read(w http.ResponseWriter, r *http.Request) {
	nid, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	if err := h.Svc.MarkNotificationRead(r.Context(), id.UserID, id.IsAdmin(), nid); err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationsHandler) readAll(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if _, err := h.Svc.MarkAllNotificationsRead(r.Context(), id.UserID); err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationsHandler) listAdmin(w http.ResponseWriter, r *http.Request) {
	unread := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), h.Log, w, apperr.New(apperr.CodeValidation, "unread must be a boolean"))
			return
		}
		unread = v
	}
	out, err := h.Svc.ListAdminNotifications(r.Context(), unread)
	if err != nil {
		writeError(r.Context(), h.Log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// StreamHandler relays the caller's realtime channel as server-sent events.
type StreamHandler struct {
	Sub       Subscriber
	Log       *logger.Logger
	KeepAlive time.Duration
	Done      <-chan struct{}
}

func (h *StreamHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(r.Context(), h.Log, w, apperr.New(apperr.CodeInternal, "streaming unsupported"))
		return
	}
	id, _ := IdentityFrom(r.Context())
	ctx := r.Context()

	events, err := h.Sub.Subscribe(ctx, notify.ChannelForUser(id.UserID))
	if err != nil {
		writeError(ctx, h.Log, w, apperr.Wrap(apperr.CodeDelivery, err, "subscribe"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				h.Log.Warn(ctx, "encode stream event", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Type, ev.NotificationID, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
