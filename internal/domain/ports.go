package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogService описывает взаимодействие с сервисом каталога.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	// StockBySize возвращает остатки товара по размерам.
	StockBySize(ctx context.Context, id int64) (map[Size]int, error)
	// Reserve резервирует количество по позициям; отказ прерывает оформление.
	Reserve(ctx context.Context, session Session, items []Reservation) error
}

// OrdersService описывает взаимодействие с сервисом заказов и серверной корзиной.
type OrdersService interface {
	GetCart(ctx context.Context, session Session) ([]CartLine, error)
	UpdateCartLine(ctx context.Context, session Session, line CartLine) error
	RemoveCartLine(ctx context.Context, session Session, key ItemKey) error
	ClearCart(ctx context.Context, session Session) error
	CreateOrder(ctx context.Context, session Session, draft OrderDraft) (Order, error)
	ListOrders(ctx context.Context, session Session, userID string) ([]Order, error)
	GetOrder(ctx context.Context, session Session, id string) (Order, error)
	TotalSpent(ctx context.Context, session Session, userID string) (decimal.Decimal, error)
}

// UsersService описывает взаимодействие с сервисом пользователей.
type UsersService interface {
	GetProfile(ctx context.Context, session Session, userID string) (User, error)
	UpdateProfile(ctx context.Context, session Session, user User) (User, error)
	Login(ctx context.Context, creds Credentials) (Session, User, error)
	CompleteRegistration(ctx context.Context, session Session, reg Registration) (User, error)
}

// SupportService описывает работу с обращениями пользователей.
type SupportService interface {
	Inbox(ctx context.Context, session Session) ([]ContactMessage, error)
	MarkRead(ctx context.Context, session Session, id string) error
	Reply(ctx context.Context, session Session, id, body string) error
}

// StateStore: локальное key-value хранилище состояния с уведомлениями об изменениях.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch возвращает канал изменений; канал закрывается после отмены ctx.
	Watch(ctx context.Context) (<-chan StateChange, error)
}

// OrderStatusCache хранит статусы заказов, пришедшие от сервера.
type OrderStatusCache interface {
	// Apply применяет статус, если переход допустим, и сообщает, был ли он применён.
	Apply(orderID string, status OrderStatus) (bool, error)
	Get(orderID string) (OrderStatus, bool)
}

// CheckoutJournal: журнал шагов оформления.
type CheckoutJournal interface {
	Append(ctx context.Context, entry JournalEntry) error
	List(ctx context.Context, runID string) ([]JournalEntry, error)
}

// OutboxPublisher публикует события из outbox в брокер.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; повторная публикация того же ID допустима.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по Idempotency-Key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	// Release удаляет ключ, чтобы запрос с ним можно было выполнить заново.
	Release(key string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
