package features

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
)

type catalogStub struct{}

func (catalogStub) ListProducts(context.Context) ([]domain.Product, error) { return nil, nil }
func (catalogStub) GetProduct(context.Context, int64) (domain.Product, error) {
	return domain.Product{}, nil
}
func (catalogStub) ListCategories(context.Context) ([]domain.Category, error) { return nil, nil }
func (catalogStub) StockBySize(context.Context, int64) (map[domain.Size]int, error) {
	return nil, nil
}
func (catalogStub) Reserve(context.Context, domain.Session, []domain.Reservation) error { return nil }

type ordersStub struct {
	createErr error
}

func (o *ordersStub) GetCart(context.Context, domain.Session) ([]domain.CartLine, error) {
	return nil, nil
}
func (o *ordersStub) UpdateCartLine(context.Context, domain.Session, domain.CartLine) error {
	return nil
}
func (o *ordersStub) RemoveCartLine(context.Context, domain.Session, domain.ItemKey) error {
	return nil
}
func (o *ordersStub) ClearCart(context.Context, domain.Session) error { return nil }
func (o *ordersStub) CreateOrder(_ context.Context, _ domain.Session, draft domain.OrderDraft) (domain.Order, error) {
	if o.createErr != nil {
		return domain.Order{}, o.createErr
	}
	return domain.Order{ID: "order-1", Lines: draft.Lines, Total: draft.Total, Status: domain.OrderStatusPending}, nil
}
func (o *ordersStub) ListOrders(context.Context, domain.Session, string) ([]domain.Order, error) {
	return nil, nil
}
func (o *ordersStub) GetOrder(context.Context, domain.Session, string) (domain.Order, error) {
	return domain.Order{}, nil
}
func (o *ordersStub) TotalSpent(context.Context, domain.Session, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type storefrontContext struct {
	stock        *stock.Map
	carts        *cart.Registry
	orders       *ordersStub
	clientID     string
	session      domain.Session
	lastDecrease stock.DecreaseResult
	result       checkout.Result
	checkoutErr  error
	product      domain.Product
}

func (c *storefrontContext) reset() {
	c.stock = stock.New()
	c.carts = cart.NewRegistry(nil)
	c.orders = &ordersStub{}
	c.clientID = cart.AnonymousClient
	c.session = domain.AnonymousSession()
	c.lastDecrease = stock.DecreaseResult{}
	c.result = checkout.Result{}
	c.checkoutErr = nil
	c.product = domain.Product{}
}

func (c *storefrontContext) activeCart() *cart.Cart {
	current, _ := c.carts.Activate(c.clientID, c.session)
	return current
}

func (c *storefrontContext) itemIsSeededWithSizes(id int64, sizes string) error {
	var parsed []domain.Size
	for _, raw := range strings.Split(sizes, ",") {
		parsed = append(parsed, domain.NormalizeSize(raw))
	}
	c.stock.InitializeForItem(id, parsed...)
	return nil
}

func (c *storefrontContext) iDecrease(id int64, size string, qty int) error {
	c.lastDecrease = c.stock.Decrease(domain.NewItemKey(id, domain.Size(size)), qty)
	return nil
}

func (c *storefrontContext) iIncrease(id int64, size string, qty int) error {
	c.stock.Increase(domain.NewItemKey(id, domain.Size(size)), qty)
	return nil
}

func (c *storefrontContext) itemHasAvailable(id int64, size string, want int) error {
	if got := c.stock.Available(domain.NewItemKey(id, domain.Size(size))); got != want {
		return fmt.Errorf("expected %d available for %d/%s, got %d", want, id, size, got)
	}
	return nil
}

func (c *storefrontContext) lastDecreaseWasClamped() error {
	if !c.lastDecrease.Clamped {
		return fmt.Errorf("expected clamped decrease, got %+v", c.lastDecrease)
	}
	return nil
}

func (c *storefrontContext) anEmptyCartFor(clientID string) error {
	c.clientID = clientID
	c.activeCart().Clear()
	return nil
}

func (c *storefrontContext) iAddItem(id int64, name string, price int64, qty int, size string) error {
	c.activeCart().Add(cart.Item{ID: id, Name: name, Price: decimal.NewFromInt(price)}, qty, domain.Size(size))
	return nil
}

func (c *storefrontContext) iSetQuantity(id int64, size string, qty int) error {
	_, _, err := c.activeCart().SetQuantity(domain.NewItemKey(id, domain.Size(size)), qty)
	return err
}

func (c *storefrontContext) iRemove(id int64, size string) error {
	c.activeCart().Remove(domain.NewItemKey(id, domain.Size(size)))
	return nil
}

func (c *storefrontContext) cartHas(lines, count int, amount string) error {
	current := c.activeCart()
	want, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	if current.Len() != lines || current.TotalCount() != count || !current.TotalAmount().Equal(want) {
		return fmt.Errorf("expected %d lines, count %d, amount %s; got %d, %d, %s",
			lines, count, amount, current.Len(), current.TotalCount(), current.TotalAmount())
	}
	return nil
}

func (c *storefrontContext) cartIsEmpty() error {
	if n := c.activeCart().Len(); n != 0 {
		return fmt.Errorf("expected empty cart, got %d lines", n)
	}
	return nil
}

func (c *storefrontContext) clientLogsIn(clientID, userID string) error {
	c.clientID = clientID
	c.session = domain.Session{Token: "token-" + userID, UserID: userID, Role: domain.RoleCustomer}
	if _, reset := c.carts.Activate(clientID, c.session); !reset {
		return errors.New("expected cart reset on session switch")
	}
	return nil
}

func (c *storefrontContext) ordersServiceFails() error {
	c.orders.createErr = errors.New("orders service returned 500")
	return nil
}

func (c *storefrontContext) iCheckOut() error {
	workflow := checkout.New(catalogStub{}, c.orders, c.stock)
	c.result, c.checkoutErr = workflow.Run(context.Background(), c.clientID, c.activeCart(), checkout.Request{
		Session:       c.session,
		PaymentMethod: domain.PaymentMethodCard,
	})
	return nil
}

func (c *storefrontContext) checkoutFailsWithOrderCreationError() error {
	if !errors.Is(c.checkoutErr, domain.ErrOrderCreateFailed) {
		return fmt.Errorf("expected order creation error, got %v", c.checkoutErr)
	}
	return nil
}

func (c *storefrontContext) anOrderIsCreated() error {
	if c.checkoutErr != nil {
		return c.checkoutErr
	}
	if c.result.Order.ID == "" {
		return errors.New("expected order id")
	}
	return nil
}

func (c *storefrontContext) catalogReturnsProduct(body string) error {
	raw, err := normalize.Decode([]byte(body))
	if err != nil {
		return err
	}
	c.product, err = normalize.New(nil).Product(raw)
	return err
}

func (c *storefrontContext) productHasOneVariant(size string) error {
	if len(c.product.Sizes) != 1 {
		return fmt.Errorf("expected one variant, got %d", len(c.product.Sizes))
	}
	variant := c.product.Sizes[0]
	if string(variant.Size) != size || variant.Stock <= 0 {
		return fmt.Errorf("unexpected variant %+v", variant)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	sc := &storefrontContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		sc.reset()
		return ctx, nil
	})

	ctx.Step(`^item (\d+) is seeded with sizes "([^"]*)"$`, sc.itemIsSeededWithSizes)
	ctx.Step(`^I decrease item (\d+) size "([^"]*)" by (\d+)$`, sc.iDecrease)
	ctx.Step(`^I increase item (\d+) size "([^"]*)" by (\d+)$`, sc.iIncrease)
	ctx.Step(`^item (\d+) size "([^"]*)" has (\d+) available$`, sc.itemHasAvailable)
	ctx.Step(`^the last decrease was clamped$`, sc.lastDecreaseWasClamped)

	ctx.Step(`^an empty cart for client "([^"]*)"$`, sc.anEmptyCartFor)
	ctx.Step(`^I add item (\d+) named "([^"]*)" priced (\d+) with quantity (-?\d+) and size "([^"]*)"$`, sc.iAddItem)
	ctx.Step(`^I set the quantity of item (\d+) size "([^"]*)" to (-?\d+)$`, sc.iSetQuantity)
	ctx.Step(`^I remove item (\d+) size "([^"]*)"$`, sc.iRemove)
	ctx.Step(`^the cart has (\d+) lines, total count (\d+) and total amount "([^"]*)"$`, sc.cartHas)
	ctx.Step(`^the cart is empty$`, sc.cartIsEmpty)
	ctx.Step(`^client "([^"]*)" logs in as user "([^"]*)"$`, sc.clientLogsIn)

	ctx.Step(`^the orders service fails to create orders$`, sc.ordersServiceFails)
	ctx.Step(`^I check out$`, sc.iCheckOut)
	ctx.Step(`^checkout fails with an order creation error$`, sc.checkoutFailsWithOrderCreationError)
	ctx.Step(`^an order is created$`, sc.anOrderIsCreated)

	ctx.Step(`^the catalog returns the product '([^']*)'$`, sc.catalogReturnsProduct)
	ctx.Step(`^the product has exactly one size variant "([^"]*)" with positive stock$`, sc.productHasOneVariant)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"storefront.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
