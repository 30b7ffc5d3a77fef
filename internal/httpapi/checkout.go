package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/backend"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

// Checkout оформляет заказ из текущей корзины клиента.
//
// С заголовком Idempotency-Key ответ сохраняется, и повтор с тем же телом получает
// его без повторного оформления. Оформление не прерывается, если клиент отключился.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "")
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "")
		return
	}

	var req CheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "")
		return
	}

	clientID, c, _ := h.activeCart(r)
	session := SessionFrom(r.Context())
	run := func(ctx context.Context) idempotency.Response {
		result, err := h.checkout.Run(ctx, clientID, c, checkout.Request{
			Session:       session,
			Shipping:      req.Shipping,
			Contact:       req.Contact,
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			status, payload := errorResponse(err)
			h.requestLogger(r).WithError(err).WithField("status", status).Warn("checkout failed")
			resp := encodeResponse(status, payload)
			resp.Retryable = retryableCheckout(err)
			return resp
		}
		return encodeResponse(http.StatusCreated, mapCheckout(result))
	}

	ctx := context.WithoutCancel(r.Context())
	var (
		resp     idempotency.Response
		replayed bool
	)
	if h.guard != nil {
		resp, replayed, err = h.guard.Do(ctx, r.Header.Get(idempotency.HeaderKey), clientID, body, run)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
	} else {
		resp = run(ctx)
	}

	if replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// retryableCheckout: оформление не дошло до создания заказа по временной причине,
// поэтому ответ не закрепляется за ключом идемпотентности.
func retryableCheckout(err error) bool {
	switch {
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return true
	case errors.Is(err, domain.ErrOrderCreateFailed):
		return false
	}
	kind := backend.Classify(err)
	return kind == backend.KindNetwork || kind == backend.KindUnavailable
}

func encodeResponse(status int, payload any) idempotency.Response {
	body, err := json.Marshal(payload)
	if err != nil {
		body, _ = json.Marshal(ErrorResponse{Error: codeInternal, Message: localMessages[codeInternal]})
		status = http.StatusInternalServerError
	}
	return idempotency.Response{Status: status, Body: append(body, '\n')}
}
