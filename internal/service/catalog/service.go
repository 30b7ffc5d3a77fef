// Package catalog кэширует каталог и засевает по нему карту остатков.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront/internal/backend"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
)

// DefaultTTL: время жизни закэшированного каталога.
const DefaultTTL = time.Minute

// fetchTimeout ограничивает общий запрос к бэкенду: он не привязан к отмене
// первого из ожидающих клиентов.
const fetchTimeout = 10 * time.Second

const listKey = "products"

type cachedList struct {
	products []domain.Product
	expires  time.Time
}

type cachedProduct struct {
	product domain.Product
	expires time.Time
}

// Service: cache-aside поверх CatalogService. Одновременные промахи по одному
// ключу схлопываются в один запрос к бэкенду.
type Service struct {
	backend domain.CatalogService
	stock   *stock.Map
	states  domain.StateStore
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Entry

	group singleflight.Group

	mu         sync.RWMutex
	list       *cachedList
	products   map[int64]cachedProduct
	categories *cachedCategories
}

type cachedCategories struct {
	items   []domain.Category
	expires time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithTTL задаёт время жизни кэша; ноль отключает кэширование.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithStateStore включает зеркалирование списка товаров в хранилище состояния.
func WithStateStore(states domain.StateStore) Option {
	return func(s *Service) {
		s.states = states
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New создаёт сервис каталога.
func New(upstream domain.CatalogService, stockMap *stock.Map, opts ...Option) *Service {
	s := &Service{
		backend:  upstream,
		stock:    stockMap,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   log.WithField("component", "catalog"),
		products: make(map[int64]cachedProduct),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListProducts возвращает список товаров из кэша или с бэкенда.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	if s.list != nil && s.now().Before(s.list.expires) {
		products := s.list.products
		s.mu.RUnlock()
		return products, nil
	}
	s.mu.RUnlock()

	value, err, _ := s.group.Do(listKey, func() (any, error) {
		ctx, cancel := detached(ctx)
		defer cancel()

		products, err := s.backend.ListProducts(ctx)
		if err != nil {
			return nil, err
		}

		expires := s.now().Add(s.ttl)
		s.mu.Lock()
		s.list = &cachedList{products: products, expires: expires}
		for _, product := range products {
			s.products[product.ID] = cachedProduct{product: product, expires: expires}
		}
		s.mu.Unlock()

		s.seedStock(products...)
		s.mirror(ctx, products)
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]domain.Product), nil
}

// GetProduct возвращает товар из кэша или с бэкенда.
func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	s.mu.RLock()
	cached, ok := s.products[id]
	s.mu.RUnlock()
	if ok && s.now().Before(cached.expires) {
		return cached.product, nil
	}

	value, err, _ := s.group.Do("product:"+strconv.FormatInt(id, 10), func() (any, error) {
		ctx, cancel := detached(ctx)
		defer cancel()

		product, err := s.backend.GetProduct(ctx, id)
		if err != nil {
			s.forgetIfGone(id, err)
			return nil, err
		}

		s.mu.Lock()
		s.products[id] = cachedProduct{product: product, expires: s.now().Add(s.ttl)}
		s.mu.Unlock()

		s.seedStock(product)
		return product, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return value.(domain.Product), nil
}

// ListCategories возвращает категории каталога.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	if s.categories != nil && s.now().Before(s.categories.expires) {
		items := s.categories.items
		s.mu.RUnlock()
		return items, nil
	}
	s.mu.RUnlock()

	value, err, _ := s.group.Do("categories", func() (any, error) {
		ctx, cancel := detached(ctx)
		defer cancel()

		items, err := s.backend.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.categories = &cachedCategories{items: items, expires: s.now().Add(s.ttl)}
		s.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]domain.Category), nil
}

// RefreshStock запрашивает остатки товара по размерам и переносит их в карту.
func (s *Service) RefreshStock(ctx context.Context, id int64) (map[domain.Size]int, error) {
	levels, err := s.backend.StockBySize(ctx, id)
	if err != nil {
		s.forgetIfGone(id, err)
		return nil, err
	}
	for size, qty := range levels {
		s.stock.Set(domain.NewItemKey(id, size), qty)
	}
	return s.stock.ForItem(id), nil
}

// Forget удаляет товар из кэша и его остатки из карты.
func (s *Service) Forget(id int64) {
	s.mu.Lock()
	delete(s.products, id)
	s.list = nil
	s.mu.Unlock()

	s.stock.RemoveForItem(id)
}

// forgetIfGone забывает товар, которого бэкенд больше не знает.
func (s *Service) forgetIfGone(id int64, err error) {
	if backend.Classify(err) != backend.KindNotFound {
		return
	}
	s.logger.WithField("item_id", id).Info("product is gone, dropping cached entry and stock")
	s.Forget(id)
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
}

// Restore подхватывает последний сохранённый список товаров и засевает по нему остатки.
// Восстановленные записи сразу устаревшие: данные всё равно перечитываются с бэкенда.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.states == nil {
		return 0, nil
	}

	raw, err := s.states.Get(ctx, domain.StateKeyProducts)
	if errors.Is(err, domain.ErrStateKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("restore products: %w", err)
	}

	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return 0, fmt.Errorf("decode persisted products: %w", err)
	}

	now := s.now()
	s.mu.Lock()
	for _, product := range products {
		s.products[product.ID] = cachedProduct{product: product, expires: now}
	}
	s.mu.Unlock()

	s.seedStock(products...)
	return len(products), nil
}

// seedStock засевает остатки только для товаров, которых ещё нет в карте,
// чтобы повторное чтение каталога не откатывало локальные списания.
func (s *Service) seedStock(products ...domain.Product) {
	if s.stock == nil {
		return
	}
	for _, product := range products {
		if product.ID <= 0 || s.stock.Tracked(product.ID) {
			continue
		}
		s.stock.InitializeForItem(product.ID, product.SizeList()...)
	}
}

func (s *Service) mirror(ctx context.Context, products []domain.Product) {
	if s.states == nil {
		return
	}
	payload, err := json.Marshal(products)
	if err != nil {
		s.logger.WithError(err).Warn("failed to encode products for state store")
		return
	}
	if err := s.states.Put(ctx, domain.StateKeyProducts, payload); err != nil {
		s.logger.WithError(err).Warn("failed to persist products")
	}
}
