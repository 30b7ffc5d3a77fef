// Package stock хранит доступные остатки по ключу (товар, размер).
package stock

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultQuantity: остаток, которым засевается каждый размер нового товара.
const DefaultQuantity = 20

// Entry: запись снимка склада.
type Entry struct {
	Key      domain.ItemKey `json:"key"`
	Quantity int            `json:"quantity"`
}

// DecreaseResult описывает результат уменьшения остатка.
// Clamped=true означает, что запрошено больше, чем было, и остаток упёрся в ноль.
type DecreaseResult struct {
	Before  int
	After   int
	Clamped bool
}

// Observer получает снимок после каждого изменения.
type Observer func(entries []Entry)

// ClampObserver вызывается, когда уменьшение упёрлось в ноль.
type ClampObserver func(key domain.ItemKey, requested int, result DecreaseResult)

// Option настраивает Map.
type Option func(*Map)

// WithDefaultQuantity задаёт остаток для InitializeForItem.
func WithDefaultQuantity(qty int) Option {
	return func(m *Map) {
		if qty > 0 {
			m.defaultQty = qty
		}
	}
}

// WithObserver добавляет подписчика на изменения.
func WithObserver(observer Observer) Option {
	return func(m *Map) {
		if observer != nil {
			m.observers = append(m.observers, observer)
		}
	}
}

// WithClampObserver добавляет подписчика на уменьшения, упёршиеся в ноль.
func WithClampObserver(observer ClampObserver) Option {
	return func(m *Map) {
		if observer != nil {
			m.clampObservers = append(m.clampObservers, observer)
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(m *Map) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Map: карта остатков. Каждая операция атомарна сама по себе,
// последовательности операций вызывающий код не защищены.
type Map struct {
	mu             sync.RWMutex
	entries        map[domain.ItemKey]int
	defaultQty     int
	observers      []Observer
	clampObservers []ClampObserver
	logger         *log.Entry
}

// New создаёт пустую карту остатков.
func New(options ...Option) *Map {
	m := &Map{
		entries:    make(map[domain.ItemKey]int),
		defaultQty: DefaultQuantity,
		logger:     log.WithField("component", "stock"),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Subscribe добавляет подписчика после создания карты.
func (m *Map) Subscribe(observer Observer) {
	if observer == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, observer)
	m.mu.Unlock()
}

// Available возвращает остаток или 0, если записи нет.
func (m *Map) Available(key domain.ItemKey) int {
	key = domain.NewItemKey(key.ItemID, key.Size)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key]
}

// Tracked сообщает, есть ли у товара хотя бы одна запись.
func (m *Map) Tracked(itemID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key := range m.entries {
		if key.ItemID == itemID {
			return true
		}
	}
	return false
}

// Decrease уменьшает остаток на qty. Результат не опускается ниже нуля:
// перерасход молча обнуляет остаток, о чём сообщает DecreaseResult.Clamped.
func (m *Map) Decrease(key domain.ItemKey, qty int) DecreaseResult {
	key = domain.NewItemKey(key.ItemID, key.Size)
	if qty <= 0 {
		current := m.Available(key)
		return DecreaseResult{Before: current, After: current}
	}

	m.mu.Lock()
	before := m.entries[key]
	after := before - qty
	clamped := false
	if after < 0 {
		after = 0
		clamped = true
	}
	m.entries[key] = after
	snapshot, observers, clampObservers := m.snapshotLocked(), m.observers, m.clampObservers
	m.mu.Unlock()

	result := DecreaseResult{Before: before, After: after, Clamped: clamped}
	if clamped {
		m.logger.WithFields(log.Fields{
			"item_id":   key.ItemID,
			"size":      key.Size,
			"requested": qty,
			"available": before,
		}).Warn("stock decrease floored at zero")
		for _, observer := range clampObservers {
			observer(key, qty, result)
		}
	}
	notify(observers, snapshot)
	return result
}

// Increase увеличивает остаток на qty.
func (m *Map) Increase(key domain.ItemKey, qty int) {
	key = domain.NewItemKey(key.ItemID, key.Size)
	if qty <= 0 {
		return
	}

	m.mu.Lock()
	m.entries[key] += qty
	snapshot, observers := m.snapshotLocked(), m.observers
	m.mu.Unlock()

	notify(observers, snapshot)
}

// Set выставляет остаток, полученный от каталога. Отрицательное значение становится нулём.
func (m *Map) Set(key domain.ItemKey, qty int) {
	key = domain.NewItemKey(key.ItemID, key.Size)
	if qty < 0 {
		qty = 0
	}

	m.mu.Lock()
	m.entries[key] = qty
	snapshot, observers := m.snapshotLocked(), m.observers
	m.mu.Unlock()

	notify(observers, snapshot)
}

// InitializeForItem засевает остаток по умолчанию для каждого размера,
// либо для единственного слота SizeUnique, если размеры не переданы.
func (m *Map) InitializeForItem(itemID int64, sizes ...domain.Size) {
	if len(sizes) == 0 {
		sizes = []domain.Size{domain.SizeUnique}
	}

	m.mu.Lock()
	for _, size := range sizes {
		m.entries[domain.NewItemKey(itemID, size)] = m.defaultQty
	}
	snapshot, observers := m.snapshotLocked(), m.observers
	m.mu.Unlock()

	notify(observers, snapshot)
}

// RemoveForItem удаляет все размеры товара.
func (m *Map) RemoveForItem(itemID int64) {
	m.mu.Lock()
	removed := 0
	for key := range m.entries {
		if key.ItemID == itemID {
			delete(m.entries, key)
			removed++
		}
	}
	snapshot, observers := m.snapshotLocked(), m.observers
	m.mu.Unlock()

	if removed > 0 {
		notify(observers, snapshot)
	}
}

// ForItem возвращает остатки товара по размерам.
func (m *Map) ForItem(itemID int64) map[domain.Size]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[domain.Size]int)
	for key, qty := range m.entries {
		if key.ItemID == itemID {
			result[key.Size] = qty
		}
	}
	return result
}

// Snapshot возвращает копию всех записей, отсортированную по ключу.
func (m *Map) Snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Restore заменяет содержимое карты снимком без уведомления подписчиков.
func (m *Map) Restore(entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[domain.ItemKey]int, len(entries))
	for _, entry := range entries {
		if entry.Key.ItemID <= 0 {
			continue
		}
		qty := entry.Quantity
		if qty < 0 {
			qty = 0
		}
		m.entries[domain.NewItemKey(entry.Key.ItemID, entry.Key.Size)] = qty
	}
}

func (m *Map) snapshotLocked() []Entry {
	result := make([]Entry, 0, len(m.entries))
	for key, qty := range m.entries {
		result = append(result, Entry{Key: key, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Key.ItemID != result[j].Key.ItemID {
			return result[i].Key.ItemID < result[j].Key.ItemID
		}
		return result[i].Key.Size < result[j].Key.Size
	})
	return result
}

func notify(observers []Observer, snapshot []Entry) {
	for _, observer := range observers {
		observer(snapshot)
	}
}
