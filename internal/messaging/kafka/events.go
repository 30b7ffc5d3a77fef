package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Topics витрины.
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicOrderStatus     = "storefront.order.status"
	TopicStockEvents     = "storefront.stock.events"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderReprocessedAt = "x-dlq-reprocessed-at"
)

// OutboxEnvelope: тело события, публикуемого из outbox.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OrderStatusEvent: уведомление сервиса заказов о смене статуса.
type OrderStatusEvent struct {
	OrderID   string             `json:"order_id"`
	UserID    string             `json:"user_id,omitempty"`
	Status    domain.OrderStatus `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
}

// ParseOrderStatusEvent разбирает событие статуса и нормализует статус.
func ParseOrderStatusEvent(message *sarama.ConsumerMessage) (OrderStatusEvent, error) {
	var event OrderStatusEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return OrderStatusEvent{}, fmt.Errorf("failed to unmarshal order status event: %w", err)
	}
	event.OrderID = strings.TrimSpace(event.OrderID)
	if event.OrderID == "" {
		return OrderStatusEvent{}, fmt.Errorf("order status event without order_id")
	}
	event.Status = domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(event.Status))))
	if !event.Status.Valid() {
		return OrderStatusEvent{}, fmt.Errorf("order status event with unknown status %q", event.Status)
	}
	return event, nil
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}
