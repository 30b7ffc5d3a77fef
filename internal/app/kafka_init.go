package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// messaging: публикаторы outbox и подписка на статусы заказов.
type messaging struct {
	producer  *kafka.Producer
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	statuses  *kafka.Consumer
	closers   []func() error
}

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, kafka.WithProducerLogger(logger.WithField("component", "kafka-producer")))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// initMessaging выбирает, куда уходят события outbox: Kafka и/или RabbitMQ.
// Недоступный брокер не мешает старту: без брокеров события пишутся в лог.
func initMessaging(ctx context.Context, cfg Config, cache domain.OrderStatusCache, logger *log.Entry) *messaging {
	m := &messaging{}
	var publishers []domain.OutboxPublisher

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err == nil && producer != nil {
		m.producer = producer
		m.closers = append(m.closers, func() error {
			closeKafka(producer, logger)
			return nil
		})
		publishers = append(publishers, kafka.NewOutboxPublisher(producer, cfg.KafkaOrderTopic,
			kafka.WithEventTopic(domain.EventStockReserved, cfg.KafkaStockTopic),
			kafka.WithEventTopic(domain.EventStockClamped, cfg.KafkaStockTopic),
		))
		m.dlq = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)

		messagingMetrics := metrics.NewMessagingMetrics()
		consumer, err := kafka.NewStatusConsumer(
			cfg.KafkaBrokers,
			cfg.KafkaGroupID,
			cfg.KafkaStatusTopic,
			kafka.NewStatusProjector(cache, messagingMetrics),
			kafka.WithDLQ(producer),
			kafka.WithConsumerMetrics(messagingMetrics),
		)
		if err != nil {
			logger.WithError(err).Warn("failed to create order status consumer, statuses come from the orders service only")
		} else {
			m.statuses = consumer
		}
	}

	if cfg.AMQPURL != "" {
		publisher, err := rabbitmq.Dial(ctx, cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.WithError(err).Warn("failed to connect rabbitmq, continuing without amqp")
		} else {
			m.closers = append(m.closers, publisher.Close)
			publishers = append(publishers, publisher)
			logger.WithField("exchange", cfg.AMQPExchange).Info("rabbitmq publisher initialized")
		}
	}

	switch len(publishers) {
	case 0:
		m.publisher = logPublisher{logger: logger.WithField("component", "outbox-log")}
		logger.Info("no broker configured, outbox events go to the log")
	case 1:
		m.publisher = publishers[0]
	default:
		m.publisher = fanoutPublisher(publishers)
	}
	return m
}

// fanoutPublisher публикует событие во все брокеры. Ошибка любого приводит
// к повторной доставке через outbox, поэтому получатели должны терпеть дубли по ID.
type fanoutPublisher []domain.OutboxPublisher

func (f fanoutPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// logPublisher пишет события в лог вместо брокера.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	if event.ID == "" {
		return fmt.Errorf("outbox event without id: %s", event.EventType)
	}
	p.logger.WithFields(log.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"aggregate":    event.AggregateType,
		"aggregate_id": event.AggregateID,
		"payload":      string(event.Payload),
	}).Info("outbox event")
	return nil
}
