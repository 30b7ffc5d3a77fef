package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы доставки события из outbox.
const (
	OutboxSent       = "sent"
	OutboxRetryError = "retry_error"
	OutboxFailed     = "failed"
	OutboxDLQFailed  = "dlq_failed"
)

// OutboxMetrics описывает доставку outbox и размер backlog.
type OutboxMetrics struct {
	publishAttempts *prometheus.CounterVec
	pending         prometheus.Gauge
	oldestAge       prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики в DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики в указанном registerer.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Outbox publish attempts grouped by event type and result",
		}, []string{"event_type", "result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Pending storefront events in the outbox",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record",
		}),
	}
}

// RecordPublish фиксирует исход одной попытки или итог доставки.
func (m *OutboxMetrics) RecordPublish(eventType, result string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(eventType, result).Inc()
}

// SetBacklog обновляет размер backlog; oldestAge < 0 считается нулём.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.oldestAge.Set(max(oldestAge, 0).Seconds())
}

// CleanupMetrics описывает фоновую очистку устаревших записей.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     *prometheus.CounterVec
	lastDeleted *prometheus.GaugeVec
}

// NewCleanupMetrics создаёт метрики в DefaultRegisterer.
func NewCleanupMetrics() *CleanupMetrics {
	return NewCleanupMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCleanupMetricsWithRegisterer создаёт метрики в указанном registerer.
func NewCleanupMetricsWithRegisterer(registerer prometheus.Registerer) *CleanupMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CleanupMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cleanup_runs_total",
			Help: "Cleanup runs grouped by record kind and result",
		}, []string{"kind", "result"}),
		deleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cleanup_deleted_total",
			Help: "Records deleted by cleanup grouped by record kind",
		}, []string{"kind"}),
		lastDeleted: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "storefront_cleanup_last_deleted",
			Help: "Records deleted during the last cleanup run",
		}, []string{"kind"}),
	}
}

// RecordRun фиксирует итог прогона очистки для kind. При ошибке deleted учитывается
// в общем счётчике, но не в последнем прогоне.
func (m *CleanupMetrics) RecordRun(kind string, deleted int, err error) {
	if m == nil {
		return
	}
	if deleted > 0 {
		m.deleted.WithLabelValues(kind).Add(float64(deleted))
	}
	if err != nil {
		m.runs.WithLabelValues(kind, "error").Inc()
		return
	}
	m.runs.WithLabelValues(kind, "ok").Inc()
	m.lastDeleted.WithLabelValues(kind).Set(float64(deleted))
}
