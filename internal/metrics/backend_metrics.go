package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics: метрики обращений к внешним сервисам и состояния склада.
type BackendMetrics struct {
	requestDuration *prometheus.HistogramVec
	stockClamped    prometheus.Counter
}

// NewBackendMetrics создаёт метрики в DefaultRegisterer.
func NewBackendMetrics() *BackendMetrics {
	return NewBackendMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewBackendMetricsWithRegisterer создаёт метрики в указанном registerer.
func NewBackendMetricsWithRegisterer(registerer prometheus.Registerer) *BackendMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BackendMetrics{
		requestDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_backend_request_duration_seconds",
			Help:    "Duration of requests to backend services",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "operation", "code"}),
		stockClamped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_clamped_total",
			Help: "Total number of stock decreases floored at zero",
		}),
	}
}

// ObserveRequest записывает длительность запроса. code=0 означает сетевую ошибку.
func (m *BackendMetrics) ObserveRequest(service, operation string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "network_error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requestDuration.WithLabelValues(service, operation, label).Observe(duration.Seconds())
}

// RecordStockClamped фиксирует уменьшение остатка, упёршееся в ноль.
func (m *BackendMetrics) RecordStockClamped() {
	if m == nil {
		return
	}
	m.stockClamped.Inc()
}
