package httpapi

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AddItemRequest: тело POST /api/cart/items. Без quantity добавляется одна штука.
type AddItemRequest struct {
	ItemID   int64  `json:"item_id"`
	Product  string `json:"product,omitempty"`
	Size     string `json:"size"`
	Quantity *int   `json:"quantity,omitempty"`
}

func (r AddItemRequest) quantity() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartLineResponse struct {
	ItemID    int64           `json:"item_id"`
	Size      domain.Size     `json:"size"`
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ImageRef  string          `json:"image_ref,omitempty"`
}

type CartResponse struct {
	ClientID    string             `json:"client_id"`
	Lines       []CartLineResponse `json:"lines"`
	TotalCount  int                `json:"total_count"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Reset       bool               `json:"reset,omitempty"`
}

type StockResponse struct {
	ItemID    int64       `json:"item_id"`
	Size      domain.Size `json:"size"`
	Available int         `json:"available"`
}

type ProductStockResponse struct {
	ItemID int64               `json:"item_id"`
	Sizes  map[domain.Size]int `json:"sizes"`
}

type CheckoutRequest struct {
	Shipping      domain.ShippingInfo  `json:"shipping"`
	Contact       domain.ContactInfo   `json:"contact"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

type ClampResponse struct {
	Key       string `json:"key"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type CheckoutResponse struct {
	RunID             string          `json:"run_id"`
	Order             domain.Order    `json:"order"`
	Clamped           []ClampResponse `json:"clamped,omitempty"`
	RemoteCartCleared bool            `json:"remote_cart_cleared"`
}

type SessionResponse struct {
	Session domain.Session `json:"session"`
	User    domain.User    `json:"user"`
	Cart    CartResponse   `json:"cart"`
}

type TotalSpentResponse struct {
	UserID string          `json:"user_id"`
	Total  decimal.Decimal `json:"total"`
}

type ReplyRequest struct {
	Body string `json:"body"`
}

func mapCart(clientID string, c *cart.Cart, reset bool) CartResponse {
	lines := c.Lines()
	out := make([]CartLineResponse, len(lines))
	for i, line := range lines {
		out[i] = CartLineResponse{
			ItemID:    line.Key.ItemID,
			Size:      line.Key.Size,
			Key:       line.Key.String(),
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal(),
			ImageRef:  line.ImageRef,
		}
	}
	return CartResponse{
		ClientID:    clientID,
		Lines:       out,
		TotalCount:  c.TotalCount(),
		TotalAmount: c.TotalAmount(),
		Reset:       reset,
	}
}

func mapCheckout(result checkout.Result) CheckoutResponse {
	resp := CheckoutResponse{
		RunID:             result.RunID,
		Order:             result.Order,
		RemoteCartCleared: result.RemoteCartCleared,
	}
	for _, clamp := range result.Clamped {
		resp.Clamped = append(resp.Clamped, ClampResponse{
			Key:       clamp.Key.String(),
			Requested: clamp.Requested,
			Available: clamp.Before,
		})
	}
	return resp
}
