// Package rabbitmq публикует события outbox в topic exchange RabbitMQ.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// DefaultExchange: topic exchange событий витрины.
	DefaultExchange = "storefront.events"
	exchangeType    = "topic"

	defaultDialAttempts = 5
	defaultDialBackoff  = 2 * time.Second
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher: domain.OutboxPublisher поверх AMQP-канала.
// Routing key совпадает с типом события, чтобы подписчики могли фильтровать по нему.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *log.Entry
}

// Dial подключается к брокеру, открывает канал и объявляет durable topic exchange.
func Dial(ctx context.Context, url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	logger := log.WithField("component", "amqp-publisher")

	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= defaultDialAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.WithError(err).WithField("attempt", attempt).Warn("failed to connect to rabbitmq")
		if attempt == defaultDialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(defaultDialBackoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,     // name
		exchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("could not declare exchange %s: %w", exchange, err)
	}

	p := newPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) *Publisher {
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   log.WithField("component", "amqp-publisher"),
	}
}

// Publish отправляет payload события как persistent-сообщение.
func (p *Publisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.ch == nil {
		return fmt.Errorf("amqp publisher is not initialized")
	}

	contentType := "application/json"
	if !jsonLike(event.Payload) {
		contentType = "application/octet-stream"
	}

	err := p.ch.PublishWithContext(ctx,
		p.exchange,
		event.EventType,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         event.EventType,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				"aggregate_type": event.AggregateType,
				"aggregate_id":   event.AggregateID,
			},
			Body: event.Payload,
		},
	)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"event_type": event.EventType,
			"outbox_id":  event.ID,
		}).Error("failed to publish to rabbitmq")
		return fmt.Errorf("amqp publish %s: %w", event.EventType, err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func jsonLike(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

var _ domain.OutboxPublisher = (*Publisher)(nil)
