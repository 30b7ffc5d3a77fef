package domain

import "errors"

var (
	// Ошибка разбора ссылки на товар вида category/id.
	ErrProductRefInvalid = errors.New("product reference is invalid")
	// Ошибка отсутствующего товара в резерве.
	ErrReservationItemRequired = errors.New("reservation item id is required")
	// Ошибка некорректного количества в резерве.
	ErrReservationQtyInvalid = errors.New("reservation qty must be greater than zero")
	// Ошибка позиции заказа с неположительным id или количеством.
	ErrLineInvalid = errors.New("order line must have positive item id and qty")
	// Ошибка, если цена позиции отрицательная.
	ErrLinePriceInvalid = errors.New("order line price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match lines sum")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method is not supported")

	// ErrCartEmpty возвращается при попытке оформить пустую корзину.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrNoValidLines возвращается, если после фильтрации не осталось ни одной позиции.
	ErrNoValidLines = errors.New("order has no valid lines")
	// ErrCheckoutInProgress означает, что оформление для клиента уже выполняется.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	// ErrReservationFailed оборачивает отказ каталога в резерве.
	ErrReservationFailed = errors.New("stock reservation failed")
	// ErrOrderCreateFailed оборачивает отказ сервиса заказов после успешного резерва.
	ErrOrderCreateFailed = errors.New("order creation failed")
	// ErrLineNotFound возвращается, если строки с таким ключом нет в корзине.
	ErrLineNotFound = errors.New("cart line not found")

	// ErrUnauthenticated: операция требует авторизованной сессии.
	ErrUnauthenticated = errors.New("session is not authenticated")
	// ErrForbidden: роль сессии не позволяет выполнить операцию.
	ErrForbidden = errors.New("operation is not allowed for role")

	// ErrStateKeyNotFound возвращается, если в локальном хранилище нет значения.
	ErrStateKeyNotFound = errors.New("state key not found")
	// ErrStatusTransition: недопустимый переход статуса заказа.
	ErrStatusTransition = errors.New("order status transition is not allowed")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsCheckoutRejected сообщает, что оформление отклонено до отправки чего-либо наружу.
func IsCheckoutRejected(err error) bool {
	return errors.Is(err, ErrCartEmpty) ||
		errors.Is(err, ErrNoValidLines) ||
		errors.Is(err, ErrCheckoutInProgress)
}
