package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/backend"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

// Коды ошибок API, которые не выводятся из класса ошибки бэкенда.
const (
	codeInvalidJSON        = "invalid_json"
	codeInvalidRequest     = "invalid_request"
	codeInvalidItem        = "invalid_item"
	codeSizeUnavailable    = "size_unavailable"
	codeLineNotFound       = "line_not_found"
	codeCartEmpty          = "cart_empty"
	codeNoValidLines       = "no_valid_lines"
	codePaymentInvalid     = "invalid_payment_method"
	codeCheckoutInProgress = "checkout_in_progress"
	codeReservationFailed  = "reservation_failed"
	codeOrderCreateFailed  = "order_create_failed"
	codeIdempotencyReused  = "idempotency_key_reused"
	codeRequestInProgress  = "request_in_progress"
	codeStreamUnsupported  = "stream_unsupported"
	codeInternal           = "internal_error"
)

var localMessages = map[string]string{
	codeInvalidJSON:        "La solicitud no tiene un formato válido.",
	codeInvalidRequest:     "Los datos enviados no son válidos.",
	codeInvalidItem:        "El producto indicado no es válido.",
	codeSizeUnavailable:    "La talla seleccionada no está disponible para este producto.",
	codeLineNotFound:       "El producto no está en tu carrito.",
	codeCartEmpty:          "Tu carrito está vacío.",
	codeNoValidLines:       "Tu carrito no tiene productos válidos para comprar.",
	codePaymentInvalid:     "El método de pago seleccionado no es válido.",
	codeCheckoutInProgress: "Ya hay una compra en proceso. Espera a que termine.",
	codeIdempotencyReused:  "Esta solicitud ya fue enviada con otros datos.",
	codeRequestInProgress:  "Tu solicitud anterior todavía se está procesando.",
	codeStreamUnsupported:  "El servidor no admite notificaciones en vivo.",
	codeInternal:           "Ocurrió un error inesperado.",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	if msg == "" {
		msg = localMessages[code]
	}
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}

// errorResponse переводит ошибку витрины или бэкенда в статус и тело ответа.
func errorResponse(err error) (int, ErrorResponse) {
	local := func(status int, code string) (int, ErrorResponse) {
		return status, ErrorResponse{Error: code, Message: localMessages[code]}
	}
	remote := func(code string) (int, ErrorResponse) {
		kind := backend.Classify(err)
		return backend.HTTPStatus(kind), ErrorResponse{Error: code, Message: backend.UserMessage(err)}
	}

	switch {
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return local(http.StatusConflict, codeCheckoutInProgress)
	case errors.Is(err, domain.ErrCartEmpty):
		return local(http.StatusBadRequest, codeCartEmpty)
	case errors.Is(err, domain.ErrPaymentMethodInvalid):
		return local(http.StatusBadRequest, codePaymentInvalid)
	case errors.Is(err, domain.ErrNoValidLines), errors.Is(err, domain.ErrLineInvalid),
		errors.Is(err, domain.ErrLinePriceInvalid), errors.Is(err, domain.ErrAmountMismatch):
		return local(http.StatusUnprocessableEntity, codeNoValidLines)
	case errors.Is(err, domain.ErrLineNotFound):
		return local(http.StatusNotFound, codeLineNotFound)
	case errors.Is(err, domain.ErrProductRefInvalid):
		return local(http.StatusBadRequest, codeInvalidItem)
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return local(http.StatusConflict, codeIdempotencyReused)
	case errors.Is(err, idempotency.ErrRequestInProgress):
		return local(http.StatusConflict, codeRequestInProgress)
	case errors.Is(err, domain.ErrReservationFailed):
		return remote(codeReservationFailed)
	case errors.Is(err, domain.ErrOrderCreateFailed):
		return remote(codeOrderCreateFailed)
	}

	kind := backend.Classify(err)
	if kind == backend.KindUnknown {
		return local(http.StatusInternalServerError, codeInternal)
	}
	return backend.HTTPStatus(kind), ErrorResponse{Error: string(kind), Message: backend.UserMessage(err)}
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	entry := h.requestLogger(r).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	writeJSON(w, status, body)
}
