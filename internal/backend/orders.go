package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
)

// OrdersClient: клиент сервиса заказов и серверной корзины.
type OrdersClient struct {
	client     *Client
	normalizer *normalize.Normalizer
}

var _ domain.OrdersService = (*OrdersClient)(nil)

// NewOrdersClient создаёт клиент сервиса заказов.
func NewOrdersClient(client *Client, normalizer *normalize.Normalizer) *OrdersClient {
	if normalizer == nil {
		normalizer = normalize.New(nil)
	}
	return &OrdersClient{client: client, normalizer: normalizer}
}

type cartLineRequest struct {
	ProductID int64           `json:"product_id"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name,omitempty"`
}

// GetCart возвращает серверную корзину пользователя.
func (c *OrdersClient) GetCart(ctx context.Context, session domain.Session) ([]domain.CartLine, error) {
	if !session.Authenticated() {
		return nil, Wrap(OpGetCart, domain.ErrUnauthenticated)
	}
	raw, err := c.client.Do(ctx, OpGetCart, session, http.MethodGet, "/cart/"+pathEscape(session.UserID), nil)
	if err != nil {
		return nil, Wrap(OpGetCart, err)
	}
	return c.normalizer.CartLines(raw), nil
}

// UpdateCartLine создаёт или обновляет строку серверной корзины.
func (c *OrdersClient) UpdateCartLine(ctx context.Context, session domain.Session, line domain.CartLine) error {
	if !session.Authenticated() {
		return Wrap(OpUpdateCartLine, domain.ErrUnauthenticated)
	}
	req := cartLineRequest{
		ProductID: line.Key.ItemID,
		Size:      string(line.Key.Size),
		Quantity:  line.Quantity,
		Price:     line.UnitPrice,
		Name:      line.Name,
	}
	if _, err := c.client.Do(ctx, OpUpdateCartLine, session, http.MethodPut, "/cart/"+pathEscape(session.UserID)+"/items", req); err != nil {
		return Wrap(OpUpdateCartLine, err)
	}
	return nil
}

// RemoveCartLine удаляет строку серверной корзины.
func (c *OrdersClient) RemoveCartLine(ctx context.Context, session domain.Session, key domain.ItemKey) error {
	if !session.Authenticated() {
		return Wrap(OpRemoveCartLine, domain.ErrUnauthenticated)
	}
	path := fmt.Sprintf("/cart/%s/items/%d/%s", pathEscape(session.UserID), key.ItemID, pathEscape(string(key.Size)))
	if _, err := c.client.Do(ctx, OpRemoveCartLine, session, http.MethodDelete, path, nil); err != nil {
		return Wrap(OpRemoveCartLine, err)
	}
	return nil
}

// ClearCart очищает серверную корзину.
func (c *OrdersClient) ClearCart(ctx context.Context, session domain.Session) error {
	if !session.Authenticated() {
		return Wrap(OpClearCart, domain.ErrUnauthenticated)
	}
	if _, err := c.client.Do(ctx, OpClearCart, session, http.MethodDelete, "/cart/"+pathEscape(session.UserID), nil); err != nil {
		return Wrap(OpClearCart, err)
	}
	return nil
}

// CreateOrder отправляет черновик заказа. Сервис заказов сам назначает id и статус.
func (c *OrdersClient) CreateOrder(ctx context.Context, session domain.Session, draft domain.OrderDraft) (domain.Order, error) {
	raw, err := c.client.Do(ctx, OpCreateOrder, session, http.MethodPost, "/orders", draft)
	if err != nil {
		return domain.Order{}, Wrap(OpCreateOrder, err)
	}
	order, err := c.normalizer.Order(raw)
	if err != nil {
		return domain.Order{}, Wrap(OpCreateOrder, err)
	}
	if len(order.Lines) == 0 {
		order.Lines = draft.Lines
	}
	if order.UserID == "" {
		order.UserID = draft.UserID
	}
	return order, nil
}

// ListOrders возвращает заказы пользователя.
func (c *OrdersClient) ListOrders(ctx context.Context, session domain.Session, userID string) ([]domain.Order, error) {
	raw, err := c.client.Do(ctx, OpListOrders, session, http.MethodGet, "/orders/user/"+pathEscape(userID), nil)
	if err != nil {
		return nil, Wrap(OpListOrders, err)
	}
	return c.normalizer.Orders(raw), nil
}

// GetOrder возвращает заказ по идентификатору.
func (c *OrdersClient) GetOrder(ctx context.Context, session domain.Session, id string) (domain.Order, error) {
	raw, err := c.client.Do(ctx, OpGetOrder, session, http.MethodGet, "/orders/"+pathEscape(id), nil)
	if err != nil {
		return domain.Order{}, Wrap(OpGetOrder, err)
	}
	order, err := c.normalizer.Order(raw)
	if err != nil {
		return domain.Order{}, Wrap(OpGetOrder, err)
	}
	return order, nil
}

// TotalSpent возвращает сумму покупок пользователя.
func (c *OrdersClient) TotalSpent(ctx context.Context, session domain.Session, userID string) (decimal.Decimal, error) {
	raw, err := c.client.Do(ctx, OpTotalSpent, session, http.MethodGet, "/orders/user/"+pathEscape(userID)+"/total", nil)
	if err != nil {
		return decimal.Zero, Wrap(OpTotalSpent, err)
	}
	return c.normalizer.Amount(raw), nil
}
