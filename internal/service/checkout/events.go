package checkout

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
)

type reservedItem struct {
	Key    string `json:"key"`
	ItemID int64  `json:"item_id"`
	Size   string `json:"size"`
	Qty    int    `json:"qty"`
}

type stockReservedPayload struct {
	RunID    string         `json:"run_id"`
	ClientID string         `json:"client_id"`
	Items    []reservedItem `json:"items"`
}

type orderPlacedPayload struct {
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id,omitempty"`
	RunID         string               `json:"run_id"`
	ClientID      string               `json:"client_id"`
	Lines         []domain.OrderLine   `json:"lines"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	Total         decimal.Decimal      `json:"total"`
	PlacedAt      time.Time            `json:"placed_at"`
}

type stockClampedPayload struct {
	Key       string    `json:"key"`
	ItemID    int64     `json:"item_id"`
	Size      string    `json:"size"`
	Requested int       `json:"requested"`
	Before    int       `json:"before"`
	At        time.Time `json:"at"`
}

func newStockReservedPayload(run *runContext, reservations []domain.Reservation) stockReservedPayload {
	items := make([]reservedItem, 0, len(reservations))
	for _, r := range reservations {
		items = append(items, reservedItem{Key: r.Key.String(), ItemID: r.Key.ItemID, Size: string(r.Key.Size), Qty: r.Qty})
	}
	return stockReservedPayload{RunID: run.id, ClientID: run.clientID, Items: items}
}

func newOrderPlacedPayload(run *runContext, order domain.Order, draft domain.OrderDraft, at time.Time) orderPlacedPayload {
	lines := order.Lines
	if len(lines) == 0 {
		lines = draft.Lines
	}
	total := order.Total
	if total.IsZero() {
		total = draft.Total
	}
	userID := order.UserID
	if userID == "" {
		userID = draft.UserID
	}
	return orderPlacedPayload{
		OrderID:       order.ID,
		UserID:        userID,
		RunID:         run.id,
		ClientID:      run.clientID,
		Lines:         lines,
		PaymentMethod: draft.PaymentMethod,
		Total:         total,
		PlacedAt:      at.UTC(),
	}
}

func (w *Workflow) enqueue(run *runContext, aggregateType, aggregateID, eventType string, payload any) {
	if w.outbox == nil {
		return
	}
	logger := run.logger.WithField("event_type", eventType)

	body, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Warn("failed to encode outbox event")
		return
	}

	if _, err := w.outbox.Enqueue(domain.OutboxMessage{
		ID:            w.newID(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}); err != nil {
		logger.WithError(err).Warn("failed to enqueue outbox event")
		return
	}

	if w.metrics != nil {
		w.metrics.RecordOutboxEvent()
	}
	if w.notify != nil {
		w.notify()
	}
}

// NewClampRecorder возвращает наблюдателя за списаниями, упёршимися в ноль:
// считает их в метрике и пишет событие StockClamped в outbox.
// repo, m и notify могут быть nil.
func NewClampRecorder(repo domain.OutboxRepository, m *metrics.BackendMetrics, notify func(), logger *log.Entry) stock.ClampObserver {
	if logger == nil {
		logger = log.WithField("component", "stock-clamp")
	}
	return func(key domain.ItemKey, requested int, result stock.DecreaseResult) {
		m.RecordStockClamped()
		if repo == nil {
			return
		}

		body, err := json.Marshal(stockClampedPayload{
			Key:       key.String(),
			ItemID:    key.ItemID,
			Size:      string(key.Size),
			Requested: requested,
			Before:    result.Before,
			At:        time.Now().UTC(),
		})
		if err != nil {
			logger.WithError(err).Warn("failed to encode stock clamped event")
			return
		}
		if _, err := repo.Enqueue(domain.OutboxMessage{
			ID:            uuid.NewString(),
			AggregateType: domain.AggregateStock,
			AggregateID:   key.String(),
			EventType:     domain.EventStockClamped,
			Payload:       body,
		}); err != nil {
			logger.WithError(err).WithField("key", key.String()).Warn("failed to enqueue stock clamped event")
			return
		}
		if notify != nil {
			notify()
		}
	}
}
