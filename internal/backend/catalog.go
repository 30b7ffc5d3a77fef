package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
)

// CatalogClient: клиент сервиса каталога.
type CatalogClient struct {
	client     *Client
	normalizer *normalize.Normalizer
}

var _ domain.CatalogService = (*CatalogClient)(nil)

// NewCatalogClient создаёт клиент каталога.
func NewCatalogClient(client *Client, normalizer *normalize.Normalizer) *CatalogClient {
	if normalizer == nil {
		normalizer = normalize.New(nil)
	}
	return &CatalogClient{client: client, normalizer: normalizer}
}

// ListProducts возвращает нормализованный список товаров.
func (c *CatalogClient) ListProducts(ctx context.Context) ([]domain.Product, error) {
	raw, err := c.client.Do(ctx, OpListProducts, domain.AnonymousSession(), http.MethodGet, "/products", nil)
	if err != nil {
		return nil, Wrap(OpListProducts, err)
	}
	return c.normalizer.Products(raw), nil
}

// GetProduct возвращает товар по идентификатору.
func (c *CatalogClient) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	raw, err := c.client.Do(ctx, OpGetProduct, domain.AnonymousSession(), http.MethodGet, fmt.Sprintf("/products/%d", id), nil)
	if err != nil {
		return domain.Product{}, Wrap(OpGetProduct, err)
	}
	product, err := c.normalizer.Product(raw)
	if err != nil {
		return domain.Product{}, Wrap(OpGetProduct, err)
	}
	return product, nil
}

// ListCategories возвращает категории каталога.
func (c *CatalogClient) ListCategories(ctx context.Context) ([]domain.Category, error) {
	raw, err := c.client.Do(ctx, OpListCategories, domain.AnonymousSession(), http.MethodGet, "/categories", nil)
	if err != nil {
		return nil, Wrap(OpListCategories, err)
	}
	return c.normalizer.Categories(raw), nil
}

// StockBySize возвращает серверные остатки товара по размерам.
func (c *CatalogClient) StockBySize(ctx context.Context, id int64) (map[domain.Size]int, error) {
	raw, err := c.client.Do(ctx, OpStockBySize, domain.AnonymousSession(), http.MethodGet, fmt.Sprintf("/products/%d/stock", id), nil)
	if err != nil {
		return nil, Wrap(OpStockBySize, err)
	}
	return c.normalizer.StockLevels(raw), nil
}

type reserveItem struct {
	ProductID int64  `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type reserveRequest struct {
	Items []reserveItem `json:"items"`
}

// Reserve резервирует позиции. Ответ 409 классифицируется как исчерпание остатка.
func (c *CatalogClient) Reserve(ctx context.Context, session domain.Session, items []domain.Reservation) error {
	req := reserveRequest{Items: make([]reserveItem, 0, len(items))}
	for _, item := range items {
		req.Items = append(req.Items, reserveItem{
			ProductID: item.Key.ItemID,
			Size:      string(item.Key.Size),
			Quantity:  item.Qty,
		})
	}

	if _, err := c.client.Do(ctx, OpReserve, session, http.MethodPost, "/stock/reserve", req); err != nil {
		return Wrap(OpReserve, err)
	}
	return nil
}

func pathEscape(value string) string {
	return url.PathEscape(value)
}
