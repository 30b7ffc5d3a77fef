// Package state зеркалирует остатки и корзины в локальное хранилище состояния
// и раздаёт уведомления об изменениях.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
)

const (
	defaultWriteTimeout = 3 * time.Second
	subscriberBuffer    = 16
)

// Mirror пишет JSON-снимки остатков и корзин под фиксированными ключами.
// Наблюдатели только помечают ключ изменённым; снимок снимается в момент записи,
// поэтому частые изменения схлопываются в одну запись и порядок уведомлений не важен.
type Mirror struct {
	store  domain.StateStore
	stock  *stock.Map
	carts  *cart.Registry
	logger *log.Entry

	mu    sync.Mutex
	dirty map[string]struct{}
	wake  chan struct{}

	subsMu  sync.Mutex
	subs    map[int]chan domain.StateChange
	nextSub int
}

// NewMirror создаёт зеркало. stockMap и carts могут быть nil.
func NewMirror(store domain.StateStore, stockMap *stock.Map, carts *cart.Registry, logger *log.Entry) *Mirror {
	if logger == nil {
		logger = log.WithField("component", "state-mirror")
	}
	return &Mirror{
		store:  store,
		stock:  stockMap,
		carts:  carts,
		logger: logger,
		dirty:  make(map[string]struct{}),
		wake:   make(chan struct{}, 1),
		subs:   make(map[int]chan domain.StateChange),
	}
}

// Attach подписывает зеркало на изменения остатков и корзин.
func (m *Mirror) Attach() {
	if m.stock != nil {
		m.stock.Subscribe(func([]stock.Entry) { m.markDirty(domain.StateKeyStock) })
	}
	if m.carts != nil {
		m.carts.Subscribe(func([]cart.Snapshot) { m.markDirty(domain.StateKeyCart) })
	}
}

// Restore загружает сохранённые остатки и корзины. Отсутствующие ключи пропускаются.
func (m *Mirror) Restore(ctx context.Context) error {
	if m.stock != nil {
		var entries []stock.Entry
		found, err := m.load(ctx, domain.StateKeyStock, &entries)
		if err != nil {
			return err
		}
		if found {
			m.stock.Restore(entries)
			m.logger.WithField("entries", len(entries)).Info("stock restored from state store")
		}
	}

	if m.carts != nil {
		var snapshots []cart.Snapshot
		found, err := m.load(ctx, domain.StateKeyCart, &snapshots)
		if err != nil {
			return err
		}
		if found {
			m.carts.Restore(snapshots)
			m.logger.WithField("carts", len(snapshots)).Info("carts restored from state store")
		}
	}

	return nil
}

// Run пишет отложенные снимки и слушает изменения хранилища до отмены ctx.
// Перед выходом оставшиеся снимки дописываются.
func (m *Mirror) Run(ctx context.Context) {
	changes, err := m.store.Watch(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("state watch is unavailable")
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
			if err := m.Flush(flushCtx); err != nil {
				m.logger.WithError(err).Warn("final state flush failed")
			}
			cancel()
			m.closeSubscribers()
			return
		case <-m.wake:
			if err := m.Flush(ctx); err != nil {
				m.logger.WithError(err).Warn("state flush failed")
			}
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			m.logger.WithFields(log.Fields{
				"key":     change.Key,
				"deleted": change.Deleted,
			}).Debug("state changed")
			m.broadcast(change)
		}
	}
}

// Flush записывает текущие снимки изменённых ключей.
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.dirty
	m.dirty = make(map[string]struct{})
	m.mu.Unlock()

	var errs []error
	for key := range batch {
		value, err := json.Marshal(m.snapshot(key))
		if err != nil {
			m.logger.WithError(err).WithField("key", key).Warn("failed to encode state snapshot")
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
		err = m.store.Put(writeCtx, key, value)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("put %s: %w", key, err))
			m.markDirty(key)
		}
	}
	return errors.Join(errs...)
}

// Subscribe возвращает канал изменений хранилища и функцию отписки.
// Медленный подписчик теряет уведомления, а не тормозит остальных.
func (m *Mirror) Subscribe() (<-chan domain.StateChange, func()) {
	ch := make(chan domain.StateChange, subscriberBuffer)

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
			m.subsMu.Unlock()
		})
	}
}

func (m *Mirror) markDirty(key string) {
	m.mu.Lock()
	m.dirty[key] = struct{}{}
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mirror) snapshot(key string) any {
	switch key {
	case domain.StateKeyStock:
		return m.stock.Snapshot()
	case domain.StateKeyCart:
		return m.carts.Snapshot()
	default:
		return nil
	}
}

func (m *Mirror) load(ctx context.Context, key string, target any) (bool, error) {
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, domain.ErrStateKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Mirror) broadcast(change domain.StateChange) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (m *Mirror) closeSubscribers() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}
