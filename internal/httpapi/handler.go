package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 1 << 20

// ChangeFeed отдаёт поток изменений локального состояния.
type ChangeFeed interface {
	Subscribe() (<-chan domain.StateChange, func())
}

// Dependencies: сервисы, которые обслуживает HTTP API.
// Guard, Statuses и Feed необязательны.
type Dependencies struct {
	Catalog  *catalog.Service
	Stock    *stock.Map
	Carts    *cart.Registry
	Checkout *checkout.Workflow
	Guard    *idempotency.Guard
	Orders   domain.OrdersService
	Users    domain.UsersService
	Support  domain.SupportService
	Statuses domain.OrderStatusCache
	Feed     ChangeFeed
	Logger   *log.Entry
}

// Handler обрабатывает запросы витрины.
type Handler struct {
	catalog  *catalog.Service
	stock    *stock.Map
	carts    *cart.Registry
	checkout *checkout.Workflow
	guard    *idempotency.Guard
	orders   domain.OrdersService
	users    domain.UsersService
	support  domain.SupportService
	statuses domain.OrderStatusCache
	feed     ChangeFeed
	logger   *log.Entry
}

// NewHandler собирает Handler из зависимостей.
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		catalog:  deps.Catalog,
		stock:    deps.Stock,
		carts:    deps.Carts,
		checkout: deps.Checkout,
		guard:    deps.Guard,
		orders:   deps.Orders,
		users:    deps.Users,
		support:  deps.Support,
		statuses: deps.Statuses,
		feed:     deps.Feed,
		logger:   logger,
	}
}

func (h *Handler) requestLogger(r *http.Request) *log.Entry {
	return h.logger.WithFields(log.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"client_id":  ClientIDFrom(r.Context()),
	})
}

// ListProducts возвращает каталог, опционально отфильтрованный по ?category=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filtered := make([]domain.Product, 0, len(products))
		for _, p := range products {
			if strings.EqualFold(p.Category, category) {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}

	writeJSON(w, http.StatusOK, products)
}

// GetProduct отдаёт товар по id или по ссылке category/id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	if item := chi.URLParam(r, "item"); item != "" {
		raw += "/" + item
	}
	ref, err := domain.ParseProductRef(raw)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), ref.ID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// ProductStock перечитывает остатки товара с сервера и обновляет локальную карту.
func (h *Handler) ProductStock(w http.ResponseWriter, r *http.Request) {
	id, ok := parseItemID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	sizes, err := h.catalog.RefreshStock(r.Context(), id)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProductStockResponse{ItemID: id, Sizes: sizes})
}

// Stock возвращает локальный остаток позиции.
func (h *Handler) Stock(w http.ResponseWriter, r *http.Request) {
	id, ok := parseItemID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	key := domain.NewItemKey(id, domain.Size(chi.URLParam(r, "size")))
	writeJSON(w, http.StatusOK, StockResponse{
		ItemID:    key.ItemID,
		Size:      key.Size,
		Available: h.stock.Available(key),
	})
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	clientID, c, reset := h.activeCart(r)
	writeJSON(w, http.StatusOK, mapCart(clientID, c, reset))
}

// AddItem добавляет товар в корзину. Имя, цена и изображение берутся из каталога.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	itemID := req.ItemID
	if itemID <= 0 && req.Product != "" {
		ref, err := domain.ParseProductRef(req.Product)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		itemID = ref.ID
	}
	if itemID <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidItem, "")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), itemID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	size := domain.NormalizeSize(req.Size)
	if !offersSize(product, size) {
		writeError(w, http.StatusBadRequest, codeSizeUnavailable, "")
		return
	}

	item := cart.Item{
		ID:    product.ID,
		Name:  product.Name,
		Price: product.PriceFor(size),
	}
	if img, ok := product.PrincipalImage(); ok {
		item.ImageRef = img.URL
	}

	if h.cartBusy(w, r) {
		return
	}
	clientID, c, reset := h.activeCart(r)
	line := c.Add(item, req.quantity(), size)
	h.syncLine(r, line)

	writeJSON(w, http.StatusOK, mapCart(clientID, c, reset))
}

// SetQuantity меняет количество строки; ноль и меньше удаляют её.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	key, ok := parseItemKey(w, r)
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if h.cartBusy(w, r) {
		return
	}

	clientID, c, reset := h.activeCart(r)
	line, removed, err := c.SetQuantity(key, req.Quantity)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if removed {
		h.syncRemove(r, key)
	} else {
		h.syncLine(r, line)
	}

	writeJSON(w, http.StatusOK, mapCart(clientID, c, reset))
}

// RemoveItem удаляет строку. Повторное удаление не считается ошибкой.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	key, ok := parseItemKey(w, r)
	if !ok || h.cartBusy(w, r) {
		return
	}

	clientID, c, reset := h.activeCart(r)
	if c.Remove(key) {
		h.syncRemove(r, key)
	}
	writeJSON(w, http.StatusOK, mapCart(clientID, c, reset))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if h.cartBusy(w, r) {
		return
	}
	clientID, c, reset := h.activeCart(r)
	c.Clear()

	session := SessionFrom(r.Context())
	if session.Authenticated() {
		if err := h.orders.ClearCart(r.Context(), session); err != nil {
			h.requestLogger(r).WithError(err).Warn("remote cart clear failed")
		}
	}
	writeJSON(w, http.StatusOK, mapCart(clientID, c, reset))
}

// cartBusy отвечает 409, пока для клиента идёт оформление заказа.
func (h *Handler) cartBusy(w http.ResponseWriter, r *http.Request) bool {
	if h.checkout == nil || !h.checkout.InFlight(ClientIDFrom(r.Context())) {
		return false
	}
	h.writeFailure(w, r, domain.ErrCheckoutInProgress)
	return true
}

// activeCart возвращает корзину клиента для текущей сессии; смена сессии её сбрасывает.
func (h *Handler) activeCart(r *http.Request) (string, *cart.Cart, bool) {
	clientID := ClientIDFrom(r.Context())
	c, reset := h.carts.Activate(clientID, SessionFrom(r.Context()))
	return clientID, c, reset
}

// syncLine повторяет изменение строки в серверной корзине пользователя.
// Ошибка синхронизации не откатывает локальную корзину.
func (h *Handler) syncLine(r *http.Request, line domain.CartLine) {
	session := SessionFrom(r.Context())
	if !session.Authenticated() {
		return
	}
	if err := h.orders.UpdateCartLine(r.Context(), session, line); err != nil {
		h.requestLogger(r).WithError(err).WithField("key", line.Key.String()).Warn("remote cart update failed")
	}
}

func (h *Handler) syncRemove(r *http.Request, key domain.ItemKey) {
	session := SessionFrom(r.Context())
	if !session.Authenticated() {
		return
	}
	if err := h.orders.RemoveCartLine(r.Context(), session, key); err != nil {
		h.requestLogger(r).WithError(err).WithField("key", key.String()).Warn("remote cart remove failed")
	}
}

func offersSize(p domain.Product, size domain.Size) bool {
	if len(p.Sizes) == 0 {
		return size == domain.SizeUnique
	}
	for _, s := range p.SizeList() {
		if s == size {
			return true
		}
	}
	return false
}

func parseItemID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidItem, "")
		return 0, false
	}
	return id, true
}

func parseItemKey(w http.ResponseWriter, r *http.Request) (domain.ItemKey, bool) {
	id, ok := parseItemID(w, chi.URLParam(r, "id"))
	if !ok {
		return domain.ItemKey{}, false
	}
	return domain.NewItemKey(id, domain.Size(chi.URLParam(r, "size"))), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "")
			return false
		}
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "")
		return false
	}
	return true
}
