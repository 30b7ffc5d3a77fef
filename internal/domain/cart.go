package domain

import "github.com/shopspring/decimal"

const (
	// MinLineQuantity: минимальное количество в строке корзины.
	MinLineQuantity = 1
	// MaxLineQuantity: максимальное количество в строке корзины.
	MaxLineQuantity = 99
)

// CartLine: строка корзины.
type CartLine struct {
	Key       ItemKey         `json:"key"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"image_ref,omitempty"`
}

// Subtotal возвращает цену строки: unit price × quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ClampQuantity приводит количество к диапазону [MinLineQuantity, MaxLineQuantity].
func ClampQuantity(qty int) int {
	switch {
	case qty < MinLineQuantity:
		return MinLineQuantity
	case qty > MaxLineQuantity:
		return MaxLineQuantity
	default:
		return qty
	}
}

// AddQuantity прибавляет delta к количеству строки с тем же ограничением диапазона.
// Слагаемое сначала ограничивается сверху, поэтому сумма не переполняет int.
func AddQuantity(current, delta int) int {
	return ClampQuantity(min(current, MaxLineQuantity) + min(delta, MaxLineQuantity))
}
