package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики оформления заказа.
type CheckoutMetrics struct {
	// Счётчики запусков
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutFailed    *prometheus.CounterVec
	checkoutRejected  prometheus.Counter

	// Резерв остался без заказа: окно несогласованности
	reservationsOrphaned prometheus.Counter
	compensations        prometheus.Counter

	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	outboxEvents prometheus.Counter

	activeCheckouts prometheus.Gauge
}

// NewCheckoutMetrics создаёт метрики оформления в DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в указанном registerer (нужно тестам).
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_started_total",
			Help: "Total number of checkout runs started",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_completed_total",
			Help: "Total number of checkout runs that created an order",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_failed_total",
			Help: "Total number of checkout runs failed, grouped by step",
		}, []string{"step"}),
		checkoutRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_rejected_total",
			Help: "Total number of checkout runs rejected before any remote call",
		}),
		reservationsOrphaned: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_orphaned_reservations_total",
			Help: "Total number of reservations left without an order",
		}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_compensations_total",
			Help: "Total number of local stock compensations applied",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_outbox_events_total",
			Help: "Total number of outbox events enqueued by checkout",
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_checkouts",
			Help: "Number of checkout runs in flight",
		}),
	}
}

// RecordStarted увеличивает счётчик запусков и число активных оформлений.
func (m *CheckoutMetrics) RecordStarted() {
	m.checkoutStarted.Inc()
	m.activeCheckouts.Inc()
}

// RecordFinished уменьшает число активных оформлений и пишет длительность.
func (m *CheckoutMetrics) RecordFinished(duration time.Duration) {
	m.activeCheckouts.Dec()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordCompleted увеличивает счётчик успешных оформлений.
func (m *CheckoutMetrics) RecordCompleted() {
	m.checkoutCompleted.Inc()
}

// RecordFailed увеличивает счётчик неудач на шаге.
func (m *CheckoutMetrics) RecordFailed(step string) {
	m.checkoutFailed.WithLabelValues(step).Inc()
}

// RecordRejected увеличивает счётчик отклонённых до вызовов оформлений.
func (m *CheckoutMetrics) RecordRejected() {
	m.checkoutRejected.Inc()
}

// RecordOrphanedReservation фиксирует резерв, оставшийся без заказа.
func (m *CheckoutMetrics) RecordOrphanedReservation() {
	m.reservationsOrphaned.Inc()
}

// RecordCompensation фиксирует локальную компенсацию остатков.
func (m *CheckoutMetrics) RecordCompensation() {
	m.compensations.Inc()
}

// RecordStepDuration записывает время выполнения шага.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
