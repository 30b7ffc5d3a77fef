package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа. Статус меняет только сервер заказов,
// витрина его лишь отражает.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан и ждёт обработки.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing: заказ в обработке.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusConfirmed: заказ подтверждён.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered: заказ доставлен.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled: заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusConfirmed:  2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// Valid проверяет, что статус входит в фиксированный набор.
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := orderStatusRank[s]
	return ok
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition разрешает только движение вперёд по цепочке
// pending → processing → confirmed → shipped → delivered, либо отмену из нетерминального статуса.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if !s.Valid() || !to.Valid() || s.Terminal() {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	return orderStatusRank[to] > orderStatusRank[s]
}

// PaymentMethod: способ оплаты, выбранный покупателем.
type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodCash     PaymentMethod = "cash"
)

// Valid проверяет поддерживаемый способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodTransfer, PaymentMethodCash:
		return true
	default:
		return false
	}
}

// ShippingInfo: адрес доставки.
type ShippingInfo struct {
	Address string `json:"address"`
	Region  string `json:"region"`
	Commune string `json:"commune"`
	Notes   string `json:"notes,omitempty"`
}

// ContactInfo: контактные данные покупателя.
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// OrderLine: снимок позиции заказа на момент оформления.
type OrderLine struct {
	ItemID    int64           `json:"item_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	Size      Size            `json:"size"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// NewOrderLine строит позицию и считает subtotal.
func NewOrderLine(itemID int64, name string, qty int, size Size, unitPrice decimal.Decimal) OrderLine {
	return OrderLine{
		ItemID:    itemID,
		Name:      name,
		Qty:       qty,
		Size:      NormalizeSize(string(size)),
		UnitPrice: unitPrice,
		Subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// Valid: позиция отправляется только с положительными id и количеством.
func (l OrderLine) Valid() bool {
	return l.ItemID > 0 && l.Qty > 0
}

// OrderDraft: данные, которые отправляются в сервис заказов.
type OrderDraft struct {
	UserID        string          `json:"user_id"`
	Lines         []OrderLine     `json:"lines"`
	Shipping      ShippingInfo    `json:"shipping"`
	Contact       ContactInfo     `json:"contact"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
}

// Order: неизменяемый снимок созданного заказа.
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Lines         []OrderLine     `json:"lines"`
	Shipping      ShippingInfo    `json:"shipping"`
	Contact       ContactInfo     `json:"contact"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LinesTotal считает сумму subtotal по позициям.
func LinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal)
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты черновика и возвращает список замечаний.
func (d *OrderDraft) ValidateInvariants() []error {
	var errs []error

	if len(d.Lines) == 0 {
		errs = append(errs, ErrNoValidLines)
	}
	for _, line := range d.Lines {
		if !line.Valid() {
			errs = append(errs, ErrLineInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
	}
	if !d.Total.Equal(LinesTotal(d.Lines)) {
		errs = append(errs, ErrAmountMismatch)
	}
	if d.PaymentMethod != "" && !d.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}

	return errs
}
