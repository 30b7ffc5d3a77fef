package domain

import "time"

// CheckoutStep: шаг оформления заказа для журнала, метрик и логов.
type CheckoutStep string

const (
	CheckoutStepReserve     CheckoutStep = "reserve"
	CheckoutStepCreateOrder CheckoutStep = "create-order"
	CheckoutStepClearCart   CheckoutStep = "clear-cart"
)

// JournalOutcome: результат шага.
type JournalOutcome string

const (
	JournalStarted     JournalOutcome = "started"
	JournalSucceeded   JournalOutcome = "succeeded"
	JournalFailed      JournalOutcome = "failed"
	JournalCompensated JournalOutcome = "compensated"
)

// JournalEntry описывает событие в журнале одного запуска оформления.
type JournalEntry struct {
	RunID    string
	ClientID string
	Step     CheckoutStep
	Outcome  JournalOutcome
	Detail   string
	Occurred time.Time
}
