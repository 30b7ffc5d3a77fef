package domain

import "time"

// Фиксированные ключи локального хранилища состояния.
const (
	StateKeyProducts = "products"
	StateKeyCart     = "cart"
	StateKeyStock    = "stock"
)

// StateChange: уведомление об изменении значения в хранилище состояния.
type StateChange struct {
	Key     string
	Deleted bool
	At      time.Time
}
