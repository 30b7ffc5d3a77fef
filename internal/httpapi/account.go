package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/backend"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Login открывает сессию пользователя. Корзина клиента сбрасывается и
// заполняется серверной корзиной; если её не удалось загрузить, вход всё равно успешен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "")
		return
	}

	session, user, err := h.users.Login(r.Context(), creds)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	clientID := ClientIDFrom(r.Context())
	c, reset := h.carts.Activate(clientID, session)
	lines, err := h.orders.GetCart(r.Context(), session)
	if err != nil {
		h.requestLogger(r).WithError(err).Warn("remote cart load failed, starting with empty cart")
	} else {
		c.Replace(lines)
	}

	h.requestLogger(r).WithFields(log.Fields{
		"user_id": session.UserID,
		"role":    session.Role,
		"lines":   c.Len(),
	}).Info("session opened")

	writeJSON(w, http.StatusOK, SessionResponse{
		Session: session,
		User:    user,
		Cart:    mapCart(clientID, c, reset),
	})
}

// Logout переключает клиента на анонимную сессию с пустой корзиной.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	clientID := ClientIDFrom(r.Context())
	c, reset := h.carts.Activate(clientID, domain.AnonymousSession())
	writeJSON(w, http.StatusOK, mapCart(clientID, c, reset))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r, backend.OpListOrders)
	if !ok {
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), session, session.UserID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	for i := range orders {
		orders[i] = h.overlayStatus(orders[i])
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r, backend.OpGetOrder)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.overlayStatus(order))
}

func (h *Handler) TotalSpent(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r, backend.OpTotalSpent)
	if !ok {
		return
	}
	total, err := h.orders.TotalSpent(r.Context(), session, session.UserID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TotalSpentResponse{UserID: session.UserID, Total: total})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r, backend.OpGetProfile)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(r.Context(), session, session.UserID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile обновляет профиль текущего пользователя; id из тела игнорируется.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r, backend.OpUpdateProfile)
	if !ok {
		return
	}
	var user domain.User
	if !decodeBody(w, r, &user) {
		return
	}
	user.ID = session.UserID

	updated, err := h.users.UpdateProfile(r.Context(), session, user)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r, backend.OpCompleteRegistration)
	if !ok {
		return
	}
	var reg domain.Registration
	if !decodeBody(w, r, &reg) {
		return
	}

	user, err := h.users.CompleteRegistration(r.Context(), session, reg)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) SupportInbox(w http.ResponseWriter, r *http.Request) {
	messages, err := h.support.Inbox(r.Context(), SessionFrom(r.Context()))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) SupportMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.support.MarkRead(r.Context(), SessionFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SupportReply(w http.ResponseWriter, r *http.Request) {
	var req ReplyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "")
		return
	}
	if err := h.support.Reply(r.Context(), SessionFrom(r.Context()), chi.URLParam(r, "id"), req.Body); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request, op string) (domain.Session, bool) {
	session := SessionFrom(r.Context())
	if !session.Authenticated() {
		h.writeFailure(w, r, backend.Wrap(op, domain.ErrUnauthenticated))
		return domain.Session{}, false
	}
	return session, true
}

// overlayStatus подставляет статус из проекции, если он новее статуса в ответе сервера.
func (h *Handler) overlayStatus(order domain.Order) domain.Order {
	if h.statuses == nil {
		return order
	}
	status, ok := h.statuses.Get(order.ID)
	if ok && order.Status.CanTransition(status) {
		order.Status = status
	}
	return order
}
