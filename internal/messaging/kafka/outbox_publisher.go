package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// NewOutboxEnvelope оборачивает outbox-сообщение в конверт для Kafka.
// Payload, не являющийся JSON, кладётся строкой.
func NewOutboxEnvelope(event domain.OutboxMessage, publishedAt time.Time) OutboxEnvelope {
	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(event.Payload))
	}
	return OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// partitionKey: события одного агрегата попадают в одну партицию и читаются по порядку.
func partitionKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	routes   map[string]string
}

// OutboxPublisherOption настраивает OutboxTopicPublisher.
type OutboxPublisherOption func(*OutboxTopicPublisher)

// WithEventTopic отправляет события типа eventType в отдельный topic.
func WithEventTopic(eventType, topic string) OutboxPublisherOption {
	return func(p *OutboxTopicPublisher) {
		if eventType != "" && topic != "" {
			p.routes[eventType] = topic
		}
	}
}

// NewOutboxPublisher создаёт публикатор outbox; пустой topic заменяется на TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string, opts ...OutboxPublisherOption) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	p := &OutboxTopicPublisher{producer: producer, topic: topic, routes: make(map[string]string)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OutboxTopicPublisher) topicFor(eventType string) string {
	if topic, ok := p.routes[eventType]; ok {
		return topic
	}
	return p.topic
}

// Publish реализует domain.OutboxPublisher.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	envelope := NewOutboxEnvelope(event, p.producer.now())
	return p.producer.PublishEvent(ctx, p.topicFor(event.EventType), partitionKey(event), envelope, map[string]string{
		HeaderEventType: event.EventType,
		HeaderOutboxID:  event.ID,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
