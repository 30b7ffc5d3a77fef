package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
)

// Kind: класс ошибки обращения к бэкенду.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindNotFound       Kind = "not_found"
	KindBadRequest     Kind = "bad_request"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindStockExhausted Kind = "stock_exhausted"
	KindServer         Kind = "server"
	KindUnavailable    Kind = "unavailable"
	KindUnknown        Kind = "unknown"
)

// ErrNetwork: сервис недоступен на уровне транспорта (соединение, DNS, таймаут).
var ErrNetwork = errors.New("backend is unreachable")

// APIError: ответ бэкенда с кодом вне 2xx. Body содержит сырой текст ответа.
type APIError struct {
	Service string
	Method  string
	Path    string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s %s: status %d: %s", e.Service, e.Method, e.Path, e.Status, e.Body)
}

// Kind классифицирует ошибку по HTTP-статусу. 409 означает исчерпание остатка.
func (e *APIError) Kind() Kind {
	switch {
	case e.Status == http.StatusNotFound:
		return KindNotFound
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return KindBadRequest
	case e.Status == http.StatusUnauthorized:
		return KindUnauthorized
	case e.Status == http.StatusForbidden:
		return KindForbidden
	case e.Status == http.StatusConflict:
		return KindStockExhausted
	case e.Status == http.StatusServiceUnavailable:
		return KindUnavailable
	case e.Status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// OpError: ошибка операции с сообщением для пользователя.
type OpError struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Classify возвращает класс ошибки. nil даёт пустую строку.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var opErr *OpError
	if errors.As(err, &opErr) && opErr.Kind != "" {
		return opErr.Kind
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	switch {
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, domain.ErrUnauthenticated):
		return KindUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return KindForbidden
	case errors.Is(err, normalize.ErrMalformed), errors.Is(err, normalize.ErrMissingID), errors.Is(err, normalize.ErrMissingToken):
		return KindServer
	default:
		return KindUnknown
	}
}

// Wrap оборачивает ошибку операции, добавляя сообщение для пользователя.
// Повторная обёртка сохраняет исходный класс.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := Classify(err)
	return &OpError{
		Op:      op,
		Kind:    kind,
		Message: messageFor(op, kind),
		Err:     err,
	}
}

// UserMessage возвращает текст ошибки для покупателя.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var opErr *OpError
	if errors.As(err, &opErr) && opErr.Message != "" {
		return opErr.Message
	}
	return kindMessages[Classify(err)]
}

// HTTPStatus подбирает статус ответа витрины для класса ошибки.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindStockExhausted:
		return http.StatusConflict
	case KindUnavailable, KindNetwork:
		return http.StatusServiceUnavailable
	case KindServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var kindMessages = map[Kind]string{
	KindNetwork:        "No hay conexión con el servidor. Revisa tu conexión e inténtalo de nuevo.",
	KindNotFound:       "El recurso solicitado no existe.",
	KindBadRequest:     "Los datos enviados no son válidos.",
	KindUnauthorized:   "Tu sesión expiró. Inicia sesión nuevamente.",
	KindForbidden:      "No tienes permisos para realizar esta acción.",
	KindStockExhausted: "No hay stock suficiente para completar la compra.",
	KindServer:         "Ocurrió un error en el servidor. Inténtalo más tarde.",
	KindUnavailable:    "El servicio no está disponible en este momento.",
	KindUnknown:        "Ocurrió un error inesperado.",
}

// Операции клиентов бэкенда.
const (
	OpListProducts         = "catalog.list_products"
	OpGetProduct           = "catalog.get_product"
	OpListCategories       = "catalog.list_categories"
	OpStockBySize          = "catalog.stock_by_size"
	OpReserve              = "catalog.reserve"
	OpGetCart              = "orders.get_cart"
	OpUpdateCartLine       = "orders.update_cart_line"
	OpRemoveCartLine       = "orders.remove_cart_line"
	OpClearCart            = "orders.clear_cart"
	OpCreateOrder          = "orders.create_order"
	OpListOrders           = "orders.list_orders"
	OpGetOrder             = "orders.get_order"
	OpTotalSpent           = "orders.total_spent"
	OpGetProfile           = "users.get_profile"
	OpUpdateProfile        = "users.update_profile"
	OpLogin                = "users.login"
	OpCompleteRegistration = "users.complete_registration"
	OpInbox                = "support.inbox"
	OpMarkRead             = "support.mark_read"
	OpReply                = "support.reply"
)

var operationActions = map[string]string{
	OpListProducts:         "cargar los productos",
	OpGetProduct:           "cargar el producto",
	OpListCategories:       "cargar las categorías",
	OpStockBySize:          "consultar el stock",
	OpReserve:              "reservar el stock",
	OpGetCart:              "cargar el carrito",
	OpUpdateCartLine:       "actualizar el carrito",
	OpRemoveCartLine:       "quitar el producto del carrito",
	OpClearCart:            "vaciar el carrito",
	OpCreateOrder:          "crear el pedido",
	OpListOrders:           "cargar tus pedidos",
	OpGetOrder:             "cargar el pedido",
	OpTotalSpent:           "calcular el total gastado",
	OpGetProfile:           "cargar tu perfil",
	OpUpdateProfile:        "actualizar tu perfil",
	OpLogin:                "iniciar sesión",
	OpCompleteRegistration: "completar el registro",
	OpInbox:                "cargar los mensajes",
	OpMarkRead:             "marcar el mensaje como leído",
	OpReply:                "responder el mensaje",
}

func messageFor(op string, kind Kind) string {
	text, ok := kindMessages[kind]
	if !ok {
		text = kindMessages[KindUnknown]
	}
	action, ok := operationActions[op]
	if !ok {
		return text
	}
	return "No se pudo " + action + ". " + text
}
