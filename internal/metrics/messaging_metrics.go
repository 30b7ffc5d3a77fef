package metrics

import "github.com/prometheus/client_golang/prometheus"

// Исходы обработки события статуса заказа.
const (
	StatusEventApplied   = "applied"
	StatusEventDuplicate = "duplicate"
	StatusEventRejected  = "rejected"
	StatusEventMalformed = "malformed"
)

// MessagingMetrics: метрики потребления событий из брокера.
type MessagingMetrics struct {
	statusEvents *prometheus.CounterVec
	dlqMessages  *prometheus.CounterVec
}

// NewMessagingMetrics создаёт метрики в DefaultRegisterer.
func NewMessagingMetrics() *MessagingMetrics {
	return NewMessagingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMessagingMetricsWithRegisterer создаёт метрики в указанном registerer.
func NewMessagingMetricsWithRegisterer(registerer prometheus.Registerer) *MessagingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &MessagingMetrics{
		statusEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_status_events_total",
			Help: "Order status events consumed from the broker, grouped by result",
		}, []string{"result"}),
		dlqMessages: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_consumer_dlq_messages_total",
			Help: "Messages moved to the dead letter topic by consumers",
		}, []string{"topic"}),
	}
}

// RecordStatusEvent фиксирует исход обработки события статуса.
func (m *MessagingMetrics) RecordStatusEvent(result string) {
	if m == nil {
		return
	}
	m.statusEvents.WithLabelValues(result).Inc()
}

// RecordDLQ фиксирует сообщение, ушедшее в DLQ.
func (m *MessagingMetrics) RecordDLQ(topic string) {
	if m == nil {
		return
	}
	m.dlqMessages.WithLabelValues(topic).Inc()
}
