package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters exported by the order service and the mailer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ordersCreated   prometheus.Counter
	orderRejections *prometheus.CounterVec
	statusUpdates   *prometheus.CounterVec
	pushFailures    prometheus.Counter
	jobs            *prometheus.CounterVec
	eventsDropped   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders committed by checkout.",
		}),
		orderRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_rejections_total",
			Help: "Checkout attempts rejected, by error code.",
		}, []string{"code"}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_updates_total",
			Help: "Committed order status transitions, by target status.",
		}, []string{"status"}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_push_failures_total",
			Help: "Direct realtime pushes that failed and were queued for retry.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_total",
			Help: "Notification jobs handled by the worker, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_events_dropped_total",
			Help: "Order events dropped because the producer inbox was full or closed.",
		}),
	}
	reg.MustRegister(m.ordersCreated, m.orderRejections, m.statusUpdates, m.pushFailures, m.jobs, m.eventsDropped)
	return m
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) OrderRejected(code string) {
	if m == nil {
		return
	}
	m.orderRejections.WithLabelValues(code).Inc()
}

func (m *Metrics) StatusUpdated(status string) {
	if m == nil {
		return
	}
	m.statusUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) PushFailed() {
	if m == nil {
		return
	}
	m.pushFailures.Inc()
}

func (m *Metrics) JobHandled(kind, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
