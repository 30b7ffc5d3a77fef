package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// StatusProjector применяет события статусов заказов к локальному кэшу.
// Витрина статусы не пишет: она только отражает то, что прислал сервер.
type StatusProjector struct {
	cache   domain.OrderStatusCache
	metrics *metrics.MessagingMetrics
	logger  *log.Entry
}

// NewStatusProjector создаёт обработчик событий статусов.
func NewStatusProjector(cache domain.OrderStatusCache, m *metrics.MessagingMetrics) *StatusProjector {
	return &StatusProjector{
		cache:   cache,
		metrics: m,
		logger:  log.WithField("component", "order-status-projector"),
	}
}

// Handle: MessageHandler для Consumer. Недопустимый переход не повторяется:
// он логируется и сообщение подтверждается. Нечитаемое событие помечается Permanent.
func (p *StatusProjector) Handle(_ context.Context, message *sarama.ConsumerMessage) error {
	event, err := ParseOrderStatusEvent(message)
	if err != nil {
		p.metrics.RecordStatusEvent(metrics.StatusEventMalformed)
		return Permanent(err)
	}

	fields := log.Fields{"order_id": event.OrderID, "status": event.Status}
	applied, err := p.cache.Apply(event.OrderID, event.Status)
	switch {
	case errors.Is(err, domain.ErrStatusTransition):
		p.metrics.RecordStatusEvent(metrics.StatusEventRejected)
		p.logger.WithError(err).WithFields(fields).Warn("order status transition ignored")
		return nil
	case err != nil:
		p.metrics.RecordStatusEvent(metrics.StatusEventMalformed)
		return err
	case !applied:
		p.metrics.RecordStatusEvent(metrics.StatusEventDuplicate)
		return nil
	}

	p.metrics.RecordStatusEvent(metrics.StatusEventApplied)
	p.logger.WithFields(fields).Info("order status projected")
	return nil
}

// NewStatusConsumer подписывает projector на topic статусов.
func NewStatusConsumer(brokers []string, groupID, topic string, projector *StatusProjector, opts ...ConsumerOption) (*Consumer, error) {
	if topic == "" {
		topic = TopicOrderStatus
	}
	return NewConsumer(brokers, groupID, []string{topic}, projector.Handle, opts...)
}
