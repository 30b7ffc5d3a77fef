// Package cart хранит корзины клиентов витрины.
package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Item: данные товара, которые попадают в строку корзины.
type Item struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	ImageRef string
}

// Cart: корзина одного клиента. Строки хранятся в порядке добавления.
type Cart struct {
	mu       sync.RWMutex
	lines    map[domain.ItemKey]domain.CartLine
	order    []domain.ItemKey
	onChange func()
}

// New создаёт пустую корзину.
func New() *Cart {
	return &Cart{lines: make(map[domain.ItemKey]domain.CartLine)}
}

// Add добавляет товар: количество суммируется с существующей строкой и
// приводится к диапазону [1, 99].
func (c *Cart) Add(item Item, qty int, size domain.Size) domain.CartLine {
	key := domain.NewItemKey(item.ID, size)

	c.mu.Lock()
	line, exists := c.lines[key]
	if exists {
		line.Quantity = domain.AddQuantity(line.Quantity, qty)
		if item.Name != "" {
			line.Name = item.Name
		}
		if item.ImageRef != "" {
			line.ImageRef = item.ImageRef
		}
		line.UnitPrice = item.Price
	} else {
		line = domain.CartLine{
			Key:       key,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  domain.ClampQuantity(qty),
			ImageRef:  item.ImageRef,
		}
		c.order = append(c.order, key)
	}
	c.lines[key] = line
	onChange := c.onChange
	c.mu.Unlock()

	fire(onChange)
	return line
}

// SetQuantity выставляет количество. qty <= 0 удаляет строку (removed=true),
// иначе значение приводится к [1, 99]. Для отсутствующей строки возвращает ErrLineNotFound.
func (c *Cart) SetQuantity(key domain.ItemKey, qty int) (line domain.CartLine, removed bool, err error) {
	key = domain.NewItemKey(key.ItemID, key.Size)
	if qty <= 0 {
		if !c.Remove(key) {
			return domain.CartLine{}, false, domain.ErrLineNotFound
		}
		return domain.CartLine{}, true, nil
	}

	c.mu.Lock()
	line, ok := c.lines[key]
	if !ok {
		c.mu.Unlock()
		return domain.CartLine{}, false, domain.ErrLineNotFound
	}
	line.Quantity = domain.ClampQuantity(qty)
	c.lines[key] = line
	onChange := c.onChange
	c.mu.Unlock()

	fire(onChange)
	return line, false, nil
}

// Remove удаляет строку. Повторный вызов ничего не меняет и возвращает false.
func (c *Cart) Remove(key domain.ItemKey) bool {
	key = domain.NewItemKey(key.ItemID, key.Size)

	c.mu.Lock()
	if _, ok := c.lines[key]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.lines, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	onChange := c.onChange
	c.mu.Unlock()

	fire(onChange)
	return true
}

// Clear очищает корзину.
func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = make(map[domain.ItemKey]domain.CartLine)
	c.order = nil
	onChange := c.onChange
	c.mu.Unlock()

	fire(onChange)
}

// Deduct вычитает из корзины оформленные строки: количество уменьшается на
// оформленное, строка исчезает, когда от неё ничего не осталось. Строки,
// добавленные после снимка, не трогаются. Возвращает строки, которые остались
// у оформленных ключей, и число строк в корзине после вычитания.
func (c *Cart) Deduct(ordered []domain.CartLine) (kept []domain.CartLine, remaining int) {
	c.mu.Lock()
	changed := false
	for _, o := range ordered {
		key := domain.NewItemKey(o.Key.ItemID, o.Key.Size)
		line, ok := c.lines[key]
		if !ok {
			continue
		}
		changed = true
		if line.Quantity > o.Quantity {
			line.Quantity -= o.Quantity
			c.lines[key] = line
			kept = append(kept, line)
			continue
		}
		delete(c.lines, key)
		c.order = slices.DeleteFunc(c.order, func(k domain.ItemKey) bool { return k == key })
	}
	remaining = len(c.lines)
	onChange := c.onChange
	c.mu.Unlock()

	if changed {
		fire(onChange)
	}
	return kept, remaining
}

// Replace заменяет содержимое строками извне (серверная корзина, снимок).
// Строки с некорректным ключом или количеством <= 0 отбрасываются, дубликаты суммируются.
func (c *Cart) Replace(lines []domain.CartLine) {
	c.mu.Lock()
	c.lines = make(map[domain.ItemKey]domain.CartLine, len(lines))
	c.order = nil
	for _, line := range lines {
		line.Key = domain.NewItemKey(line.Key.ItemID, line.Key.Size)
		if !line.Key.Valid() || line.Quantity <= 0 {
			continue
		}
		if existing, ok := c.lines[line.Key]; ok {
			existing.Quantity = domain.AddQuantity(existing.Quantity, line.Quantity)
			c.lines[line.Key] = existing
			continue
		}
		line.Quantity = domain.ClampQuantity(line.Quantity)
		c.lines[line.Key] = line
		c.order = append(c.order, line.Key)
	}
	onChange := c.onChange
	c.mu.Unlock()

	fire(onChange)
}

// Line возвращает строку по ключу.
func (c *Cart) Line(key domain.ItemKey) (domain.CartLine, bool) {
	key = domain.NewItemKey(key.ItemID, key.Size)

	c.mu.RLock()
	defer c.mu.RUnlock()
	line, ok := c.lines[key]
	return line, ok
}

// Lines возвращает копию строк в порядке добавления.
func (c *Cart) Lines() []domain.CartLine {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.CartLine, 0, len(c.order))
	for _, key := range c.order {
		result = append(result, c.lines[key])
	}
	return result
}

// Len возвращает число строк.
func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines)
}

// TotalCount: сумма количеств по строкам.
func (c *Cart) TotalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, line := range c.lines {
		total += line.Quantity
	}
	return total
}

// TotalAmount: сумма price × qty по строкам.
func (c *Cart) TotalAmount() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

func fire(fn func()) {
	if fn != nil {
		fn()
	}
}
