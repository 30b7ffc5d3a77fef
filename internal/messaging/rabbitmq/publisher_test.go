package rabbitmq

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange = exchange
	c.key = key
	c.msg = msg
	return c.err
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher_PublishUsesEventTypeAsRoutingKey(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{}
	publisher := newPublisher(ch, DefaultExchange)

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "msg-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if ch.exchange != DefaultExchange || ch.key != domain.EventOrderPlaced {
		t.Fatalf("unexpected exchange/key: %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.MessageId != "msg-1" || ch.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing: %+v", ch.msg)
	}
	if ch.msg.ContentType != "application/json" {
		t.Fatalf("expected json content type, got %s", ch.msg.ContentType)
	}
	if ch.msg.Headers["aggregate_id"] != "order-1" {
		t.Fatalf("unexpected headers: %v", ch.msg.Headers)
	}
}

func TestPublisher_PublishRawPayload(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{}
	if err := newPublisher(ch, DefaultExchange).Publish(context.Background(), domain.OutboxMessage{EventType: domain.EventStockClamped, Payload: []byte("7:L")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.msg.ContentType != "application/octet-stream" {
		t.Fatalf("expected octet-stream, got %s", ch.msg.ContentType)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{err: errors.New("channel closed")}
	err := newPublisher(ch, DefaultExchange).Publish(context.Background(), domain.OutboxMessage{EventType: domain.EventStockReserved})
	if err == nil || !strings.Contains(err.Error(), "channel closed") {
		t.Fatalf("expected wrapped channel error, got %v", err)
	}
}

func TestPublisher_NilAndClose(t *testing.T) {
	t.Parallel()

	var nilPublisher *Publisher
	if err := nilPublisher.Publish(context.Background(), domain.OutboxMessage{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	if err := nilPublisher.Close(); err != nil {
		t.Fatalf("close nil publisher: %v", err)
	}

	ch := &recordingChannel{}
	if err := newPublisher(ch, DefaultExchange).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ch.closed {
		t.Fatal("expected channel to be closed")
	}
}

func TestDial_Broker(t *testing.T) {
	url := strings.TrimSpace(os.Getenv("STOREFRONT_AMQP_TEST_URL"))
	if url == "" {
		t.Skip("STOREFRONT_AMQP_TEST_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	publisher, err := Dial(ctx, url, "storefront.events.test")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer publisher.Close()

	if err := publisher.Publish(ctx, domain.OutboxMessage{ID: "it-1", EventType: domain.EventOrderPlaced, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
