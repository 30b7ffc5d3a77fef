// Package checkout оформляет заказ из корзины клиента: резерв остатков,
// создание заказа и очистка корзины.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
)

// CompensationPolicy определяет, что делать с резервом, если заказ не создался.
type CompensationPolicy string

const (
	// CompensationNone оставляет резерв и локальное списание как есть.
	CompensationNone CompensationPolicy = "none"
	// CompensationReleaseLocal возвращает локальные остатки; удалённый резерв остаётся.
	CompensationReleaseLocal CompensationPolicy = "release-local"
)

// ErrUnknownCompensationPolicy возвращается для неизвестного значения политики.
var ErrUnknownCompensationPolicy = errors.New("unknown compensation policy")

// ParseCompensationPolicy разбирает политику; пустое значение означает CompensationNone.
func ParseCompensationPolicy(raw string) (CompensationPolicy, error) {
	switch CompensationPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CompensationNone:
		return CompensationNone, nil
	case CompensationReleaseLocal:
		return CompensationReleaseLocal, nil
	default:
		return CompensationNone, fmt.Errorf("%w: %q", ErrUnknownCompensationPolicy, raw)
	}
}

// Request: данные покупателя для оформления.
type Request struct {
	Session       domain.Session
	Shipping      domain.ShippingInfo
	Contact       domain.ContactInfo
	PaymentMethod domain.PaymentMethod
}

// Clamp описывает списание, упёршееся в ноль во время оформления.
type Clamp struct {
	Key       domain.ItemKey
	Requested int
	Before    int
}

// Result: итог оформления.
type Result struct {
	RunID             string
	Order             domain.Order
	Reserved          []domain.Reservation
	Clamped           []Clamp
	RemoteCartCleared bool
}

// Option настраивает Workflow.
type Option func(*Workflow)

// WithOutbox включает запись событий OrderPlaced и StockReserved в outbox.
// notify вызывается после каждой записи и может быть nil.
func WithOutbox(repo domain.OutboxRepository, notify func()) Option {
	return func(w *Workflow) {
		w.outbox = repo
		w.notify = notify
	}
}

// WithJournal задаёт журнал шагов.
func WithJournal(journal domain.CheckoutJournal) Option {
	return func(w *Workflow) {
		w.entries = journal
	}
}

// WithMetrics задаёт метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithCompensationPolicy задаёт политику компенсации.
func WithCompensationPolicy(policy CompensationPolicy) Option {
	return func(w *Workflow) {
		if policy != "" {
			w.policy = policy
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов запусков и событий.
func WithIDGenerator(newID func() string) Option {
	return func(w *Workflow) {
		if newID != nil {
			w.newID = newID
		}
	}
}

// Workflow выполняет оформление заказа. Для одного клиента одновременно
// выполняется не больше одного оформления.
type Workflow struct {
	catalog domain.CatalogService
	orders  domain.OrdersService
	stock   *stock.Map
	outbox  domain.OutboxRepository
	notify  func()
	entries domain.CheckoutJournal
	metrics *metrics.CheckoutMetrics
	policy  CompensationPolicy
	logger  *log.Entry
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New создаёт Workflow.
func New(catalog domain.CatalogService, orders domain.OrdersService, stockMap *stock.Map, opts ...Option) *Workflow {
	w := &Workflow{
		catalog:  catalog,
		orders:   orders,
		stock:    stockMap,
		policy:   CompensationNone,
		logger:   log.WithField("component", "checkout"),
		now:      time.Now,
		newID:    uuid.NewString,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// InFlight сообщает, выполняется ли сейчас оформление для клиента.
func (w *Workflow) InFlight(clientID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inFlight[normalizeClientID(clientID)]
	return ok
}

type runContext struct {
	id       string
	clientID string
	logger   *log.Entry
}

type decrement struct {
	key domain.ItemKey
	qty int
}

// Run оформляет заказ из корзины c.
//
// Порядок шагов: reserve → create-order → clear-cart. Отказ резерва ничего не меняет.
// clear-cart вычитает только оформленные строки.
// Если заказ не создался после успешного резерва, резерв остаётся, локальные остатки
// возвращаются только при CompensationReleaseLocal, корзина не трогается.
func (w *Workflow) Run(ctx context.Context, clientID string, c *cart.Cart, req Request) (Result, error) {
	clientID = normalizeClientID(clientID)
	if !w.acquire(clientID) {
		w.reject(clientID, domain.ErrCheckoutInProgress)
		return Result{}, domain.ErrCheckoutInProgress
	}
	defer w.release(clientID)

	if c == nil || c.Len() == 0 {
		w.reject(clientID, domain.ErrCartEmpty)
		return Result{}, domain.ErrCartEmpty
	}

	cartLines := c.Lines()
	lines := buildLines(cartLines)
	draft := domain.OrderDraft{
		UserID:        req.Session.UserID,
		Lines:         lines,
		Shipping:      req.Shipping,
		Contact:       req.Contact,
		PaymentMethod: req.PaymentMethod,
		Total:         domain.LinesTotal(lines),
	}
	if errs := draft.ValidateInvariants(); len(errs) > 0 {
		err := errors.Join(errs...)
		w.reject(clientID, err)
		return Result{}, err
	}

	run := &runContext{id: w.newID(), clientID: clientID}
	run.logger = w.logger.WithFields(log.Fields{
		"run_id":    run.id,
		"client_id": clientID,
	})

	start := w.now()
	if w.metrics != nil {
		w.metrics.RecordStarted()
		defer func() {
			w.metrics.RecordFinished(w.now().Sub(start))
		}()
	}

	result := Result{RunID: run.id, Reserved: domain.ReservationsFromLines(lines)}
	var applied []decrement

	steps := []Step{
		{
			Name: domain.CheckoutStepReserve,
			Execute: func(ctx context.Context) error {
				if err := w.catalog.Reserve(ctx, req.Session, result.Reserved); err != nil {
					return fmt.Errorf("%w: %w", domain.ErrReservationFailed, err)
				}
				for _, r := range result.Reserved {
					res := w.stock.Decrease(r.Key, r.Qty)
					applied = append(applied, decrement{key: r.Key, qty: res.Before - res.After})
					if res.Clamped {
						result.Clamped = append(result.Clamped, Clamp{Key: r.Key, Requested: r.Qty, Before: res.Before})
					}
				}
				w.enqueue(run, domain.AggregateStock, run.id, domain.EventStockReserved, newStockReservedPayload(run, result.Reserved))
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return w.compensateReserve(ctx, run, applied)
			},
		},
		{
			Name: domain.CheckoutStepCreateOrder,
			Execute: func(ctx context.Context) error {
				order, err := w.orders.CreateOrder(ctx, req.Session, draft)
				if err != nil {
					return fmt.Errorf("%w: %w", domain.ErrOrderCreateFailed, err)
				}
				result.Order = order
				w.enqueue(run, domain.AggregateOrder, order.ID, domain.EventOrderPlaced, newOrderPlacedPayload(run, order, draft, w.now()))
				return nil
			},
		},
		{
			Name: domain.CheckoutStepClearCart,
			Execute: func(ctx context.Context) error {
				kept, remaining := c.Deduct(cartLines)
				if !req.Session.Authenticated() {
					return nil
				}
				if remaining > 0 {
					w.syncRemoteCart(ctx, run, req.Session, cartLines, kept)
					return nil
				}
				if err := w.orders.ClearCart(ctx, req.Session); err != nil {
					run.logger.WithError(err).WithField("order_id", result.Order.ID).Warn("remote cart clear failed, order kept")
					return nil
				}
				result.RemoteCartCleared = true
				return nil
			},
		},
	}

	if err := w.runSteps(ctx, run, steps); err != nil {
		return result, err
	}

	if w.metrics != nil {
		w.metrics.RecordCompleted()
	}
	run.logger.WithFields(log.Fields{
		"order_id": result.Order.ID,
		"total":    result.Order.Total.String(),
		"lines":    len(lines),
	}).Info("checkout completed")

	return result, nil
}

// syncRemoteCart убирает из серверной корзины только оформленные позиции, когда
// за время оформления в корзину успели добавить что-то ещё.
func (w *Workflow) syncRemoteCart(ctx context.Context, run *runContext, session domain.Session, ordered, kept []domain.CartLine) {
	left := make(map[domain.ItemKey]domain.CartLine, len(kept))
	for _, line := range kept {
		left[line.Key] = line
	}
	for _, o := range ordered {
		key := domain.NewItemKey(o.Key.ItemID, o.Key.Size)
		var err error
		if line, ok := left[key]; ok {
			err = w.orders.UpdateCartLine(ctx, session, line)
		} else {
			err = w.orders.RemoveCartLine(ctx, session, key)
		}
		if err != nil {
			run.logger.WithError(err).WithField("key", key.String()).Warn("remote cart line sync failed, order kept")
		}
	}
}

func (w *Workflow) compensateReserve(ctx context.Context, run *runContext, applied []decrement) error {
	if w.metrics != nil {
		w.metrics.RecordOrphanedReservation()
	}

	if w.policy != CompensationReleaseLocal {
		run.logger.Warn("order was not created after reservation; reservation and local stock decrement are kept")
		return nil
	}

	for _, d := range applied {
		w.stock.Increase(d.key, d.qty)
	}
	if w.metrics != nil {
		w.metrics.RecordCompensation()
	}
	w.journal(ctx, run, domain.CheckoutStepReserve, domain.JournalCompensated, "local stock released")
	run.logger.Warn("order was not created after reservation; local stock released, remote reservation kept")
	return nil
}

func (w *Workflow) acquire(clientID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[clientID]; busy {
		return false
	}
	w.inFlight[clientID] = struct{}{}
	return true
}

func (w *Workflow) release(clientID string) {
	w.mu.Lock()
	delete(w.inFlight, clientID)
	w.mu.Unlock()
}

func (w *Workflow) reject(clientID string, err error) {
	if w.metrics != nil {
		w.metrics.RecordRejected()
	}
	w.logger.WithError(err).WithField("client_id", clientID).Info("checkout rejected")
}

// buildLines превращает строки корзины в позиции заказа. Строки без товара или
// с неположительным количеством молча отбрасываются.
func buildLines(cartLines []domain.CartLine) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(cartLines))
	for _, cl := range cartLines {
		if cl.Key.ItemID <= 0 || cl.Quantity <= 0 {
			continue
		}
		lines = append(lines, domain.NewOrderLine(cl.Key.ItemID, cl.Name, cl.Quantity, cl.Key.Size, cl.UnitPrice))
	}
	return lines
}

func normalizeClientID(clientID string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return cart.AnonymousClient
	}
	return clientID
}
