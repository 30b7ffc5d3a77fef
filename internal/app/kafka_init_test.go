package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(nil, testLogger())

	if err != nil {
		t.Errorf("expected no error for empty brokers, got %v", err)
	}
	if producer != nil {
		t.Error("expected nil producer for empty brokers")
	}
}

func TestInitKafkaProducer_InvalidBrokers(t *testing.T) {
	producer, err := initKafkaProducer([]string{"invalid-broker:9999"}, testLogger())

	if err == nil {
		t.Error("expected error for invalid brokers")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestCloseKafka_Nil(t *testing.T) {
	closeKafka(nil, testLogger())
}

func TestInitMessaging_FallsBackToLog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = []string{"invalid-broker:9999"}

	m := initMessaging(context.Background(), cfg, memory.NewOrderStatusCache(), testLogger())

	assert.IsType(t, logPublisher{}, m.publisher)
	assert.Nil(t, m.dlq)
	assert.Nil(t, m.statuses)
	assert.Empty(t, m.closers)
}

type recordingPublisher struct {
	err    error
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.events = append(p.events, event.ID)
	return p.err
}

func TestFanoutPublisher(t *testing.T) {
	t.Parallel()
	errDown := errors.New("broker down")
	first := &recordingPublisher{}
	second := &recordingPublisher{err: errDown}
	third := &recordingPublisher{}

	err := fanoutPublisher{first, second, third}.Publish(context.Background(), domain.OutboxMessage{ID: "evt-1"})

	require.ErrorIs(t, err, errDown)
	assert.Equal(t, []string{"evt-1"}, first.events)
	assert.Equal(t, []string{"evt-1"}, third.events, "one failing broker must not block the rest")
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()
	p := logPublisher{logger: testLogger()}

	require.NoError(t, p.Publish(context.Background(), domain.OutboxMessage{
		ID:        "evt-1",
		EventType: domain.EventOrderPlaced,
		Payload:   []byte(`{"order_id":"o-1"}`),
	}))
	require.Error(t, p.Publish(context.Background(), domain.OutboxMessage{EventType: domain.EventOrderPlaced}))
}
