package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultClientID = "storefront"

// Producer отправляет JSON-события витрины в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

type producerSettings struct {
	clientID string
	retries  int
	logger   *log.Entry
}

// ProducerOption настраивает Producer.
type ProducerOption func(*producerSettings)

// WithClientID задаёт client.id, под которым producer виден брокеру.
func WithClientID(id string) ProducerOption {
	return func(s *producerSettings) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithSendRetries задаёт число повторов отправки внутри sarama.
func WithSendRetries(n int) ProducerOption {
	return func(s *producerSettings) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithProducerLogger задаёт логгер.
func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(s *producerSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func producerConfig(s producerSettings) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = s.clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = s.retries
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// Идемпотентный producer требует ровно одного запроса в полёте.
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducer подключается к brokers синхронным идемпотентным producer.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	settings := producerSettings{
		clientID: defaultClientID,
		retries:  5,
		logger:   log.WithField("component", "kafka-producer"),
	}
	for _, opt := range opts {
		opt(&settings)
	}

	syncProducer, err := sarama.NewSyncProducer(brokers, producerConfig(settings))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	p := newProducer(syncProducer)
	p.logger = settings.logger
	return p, nil
}

func newProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
		now:      time.Now,
	}
}

// recordHeaders возвращает заголовки в порядке имён, чтобы одинаковые события
// давали одинаковые сообщения.
func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for _, name := range slices.Sorted(maps.Keys(headers)) {
		out = append(out, sarama.RecordHeader{Key: []byte(name), Value: []byte(headers[name])})
	}
	return out
}

// PublishEvent кодирует event в JSON и синхронно отправляет его в topic.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event any, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   recordHeaders(headers),
		Timestamp: p.now().UTC(),
	}
	partition, offset, err := p.SendMessage(msg)
	entry := p.logger.WithFields(log.Fields{"topic": topic, "key": key})
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message sent")
	return nil
}

// SendMessage отправляет готовое сообщение без перекодирования. Им пользуется
// повторная публикация из DLQ.
func (p *Producer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	return p.producer.SendMessage(msg)
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
