package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/config"
	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Log           *logger.Logger
	Auth          config.AuthConfig
	Orders        OrderService        // optional
	Notifications NotificationService // optional
	Stream        Subscriber          // optional; no SSE route without it
	StreamDone    <-chan struct{}     // closed on shutdown to end open streams
	Gatherer      prometheus.Gatherer // optional; no /metrics without it
}

func NewRouter(d RouterDeps) *chi.Mux {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Log), middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(d.Auth, d.Log))

		// the stream outlives the request timeout
		if d.Stream != nil {
			sh := &StreamHandler{Sub: d.Stream, Log: d.Log, Done: d.StreamDone}
			r.With(RequireAuth(d.Log)).Get("/notifications/stream", sh.stream)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(15 * time.Second))
			if d.Orders != nil {
				oh := &OrdersHandler{Svc: d.Orders, Log: d.Log}
				oh.Register(r)
			}
			if d.Notifications != nil {
				nh := &NotificationsHandler{Svc: d.Notifications, Log: d.Log}
				nh.Register(r)
			}
		})
	})
	return r
}

// requestLogger seeds the request context with the chi request id and logs
// one line per finished request.
func requestLogger(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logg.Info(logg.WithFields(ctx, map[string]any{
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
			}), "request.complete")
		})
	}
}
