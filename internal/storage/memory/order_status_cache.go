package memory

import (
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderStatusCache хранит последние известные статусы заказов из событий сервера.
type OrderStatusCache struct {
	mu       sync.RWMutex
	statuses map[string]domain.OrderStatus
}

// NewOrderStatusCache создаёт пустой кэш статусов.
func NewOrderStatusCache() *OrderStatusCache {
	return &OrderStatusCache{statuses: make(map[string]domain.OrderStatus)}
}

// Apply записывает статус, если это первый статус заказа или допустимый переход.
// Повтор текущего статуса ничего не меняет и не считается ошибкой.
func (c *OrderStatusCache) Apply(orderID string, status domain.OrderStatus) (bool, error) {
	if orderID == "" {
		return false, fmt.Errorf("%w: empty order id", domain.ErrOrderNotFound)
	}
	if !status.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", domain.ErrStatusTransition, status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.statuses[orderID]
	switch {
	case !ok:
	case current == status:
		return false, nil
	case !current.CanTransition(status):
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrStatusTransition, current, status)
	}

	c.statuses[orderID] = status
	return true, nil
}

// Get возвращает статус заказа, если он известен.
func (c *OrderStatusCache) Get(orderID string) (domain.OrderStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.statuses[orderID]
	return status, ok
}

var _ domain.OrderStatusCache = (*OrderStatusCache)(nil)
