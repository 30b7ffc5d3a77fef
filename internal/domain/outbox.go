package domain

import "time"

// Типы событий витрины, которые уходят через outbox.
const (
	EventOrderPlaced   = "OrderPlaced"
	EventStockReserved = "StockReserved"
	EventStockClamped  = "StockClamped"
)

// Типы агрегатов для outbox.
const (
	AggregateOrder = "order"
	AggregateStock = "stock"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
