package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var (
	// ErrMalformed: ответ не похож на ожидаемый объект или список.
	ErrMalformed = errors.New("malformed backend payload")
	// ErrMissingID: у сущности нет идентификатора.
	ErrMissingID = errors.New("backend payload has no identifier")
	// ErrMissingToken: в ответе входа нет токена.
	ErrMissingToken = errors.New("login response has no token")
)

// Normalizer превращает разнородные ответы бэкенда в доменные структуры.
type Normalizer struct {
	table         *Table
	fallbackStock int
}

// Option настраивает Normalizer.
type Option func(*Normalizer)

// WithFallbackStock переопределяет остаток синтезированного варианта. Неположительные значения игнорируются.
func WithFallbackStock(stock int) Option {
	return func(n *Normalizer) {
		if stock > 0 {
			n.fallbackStock = stock
		}
	}
}

// New создаёт нормализатор. nil-таблица заменяется встроенной.
func New(table *Table, opts ...Option) *Normalizer {
	if table == nil {
		table = Default()
	}
	n := &Normalizer{table: table, fallbackStock: table.FallbackStock}
	for _, opt := range opts {
		opt(n)
	}
	if n.fallbackStock <= 0 {
		n.fallbackStock = DefaultFallbackStock
	}
	return n
}

// FallbackStock возвращает остаток, который получает синтезированный вариант.
func (n *Normalizer) FallbackStock() int {
	return n.fallbackStock
}

// Decode разбирает тело ответа, сохраняя числа как json.Number. Пустое тело даёт nil.
func Decode(data []byte) (any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return value, nil
}

func (n *Normalizer) record(entity string, raw map[string]any) record {
	return record{entity: n.table.Entities[entity], raw: raw}
}

// unwrapObject снимает обёртки вида {"data": {...}}.
func (n *Normalizer) unwrapObject(raw any) (map[string]any, bool) {
	for depth := 0; depth < 3; depth++ {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, false
		}
		next, wrapped := n.envelopeValue(m, n.table.Envelope.Object)
		if !wrapped {
			return m, true
		}
		if _, isMap := next.(map[string]any); !isMap {
			return m, true
		}
		raw = next
	}
	m, ok := raw.(map[string]any)
	return m, ok
}

// unwrapList снимает обёртки вида {"data": {"items": [...]}}. Одиночный объект
// считается списком из одного элемента.
func (n *Normalizer) unwrapList(raw any) []any {
	for depth := 0; depth < 3; depth++ {
		switch v := raw.(type) {
		case nil:
			return nil
		case []any:
			return v
		case map[string]any:
			next, wrapped := n.envelopeValue(v, n.table.Envelope.List)
			if !wrapped {
				return []any{v}
			}
			raw = next
		default:
			return nil
		}
	}
	if list, ok := raw.([]any); ok {
		return list
	}
	return nil
}

func (n *Normalizer) envelopeValue(m map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		value, ok := m[key]
		if !ok || value == nil {
			continue
		}
		switch value.(type) {
		case []any, map[string]any:
			return value, true
		}
	}
	return nil, false
}

// Product нормализует один товар.
func (n *Normalizer) Product(raw any) (domain.Product, error) {
	m, ok := n.unwrapObject(raw)
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: product is not an object", ErrMalformed)
	}
	r := n.record(EntityProduct, m)

	id := r.Int("id")
	if id <= 0 {
		return domain.Product{}, fmt.Errorf("%w: product", ErrMissingID)
	}

	product := domain.Product{
		ID:          id,
		Name:        r.String("name"),
		Description: r.String("description"),
		Price:       r.Decimal("price"),
		Category:    r.String("category"),
	}
	product.Images = n.images(r)
	product.Sizes = n.sizeVariants(r)

	return product, nil
}

// Products нормализует список товаров; записи без идентификатора пропускаются.
func (n *Normalizer) Products(raw any) []domain.Product {
	items := n.unwrapList(raw)
	result := make([]domain.Product, 0, len(items))
	for _, item := range items {
		product, err := n.Product(item)
		if err != nil {
			continue
		}
		result = append(result, product)
	}
	return result
}

func (n *Normalizer) images(r record) []domain.Image {
	var images []domain.Image
	for i, item := range r.List("images") {
		switch v := item.(type) {
		case string:
			if url := strings.TrimSpace(v); url != "" {
				images = append(images, domain.Image{URL: url, Order: i})
			}
		case map[string]any:
			ir := n.record(EntityImage, v)
			url := ir.String("url")
			if url == "" {
				continue
			}
			order := int(ir.Int("order"))
			if !ir.Has("order") {
				order = i
			}
			images = append(images, domain.Image{URL: url, Principal: ir.Bool("principal"), Order: order})
		}
	}

	if len(images) == 0 {
		if url := r.String("image"); url != "" {
			images = append(images, domain.Image{URL: url, Principal: true})
		}
	}

	sort.SliceStable(images, func(i, j int) bool { return images[i].Order < images[j].Order })
	return images
}

// sizeVariants читает размеры товара. Если данных нет, синтезируется ровно один
// вариант SizeUnique с положительным остатком fallbackStock.
func (n *Normalizer) sizeVariants(r record) []domain.SizeVariant {
	value, _ := r.Value("sizes")

	var variants []domain.SizeVariant
	seen := make(map[domain.Size]struct{})
	add := func(v domain.SizeVariant) {
		if _, dup := seen[v.Size]; dup {
			return
		}
		seen[v.Size] = struct{}{}
		variants = append(variants, v)
	}

	switch v := value.(type) {
	case []any:
		for _, item := range v {
			switch entry := item.(type) {
			case string:
				add(domain.SizeVariant{Size: domain.NormalizeSize(entry), Stock: n.fallbackStock})
			case map[string]any:
				add(n.sizeVariant(entry))
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			stock, ok := intOf(v[k])
			if !ok {
				stock = int64(n.fallbackStock)
			}
			add(domain.SizeVariant{Size: domain.NormalizeSize(k), Stock: nonNegative(stock)})
		}
	}

	if len(variants) == 0 {
		return []domain.SizeVariant{{Size: domain.SizeUnique, Stock: n.fallbackStock}}
	}
	return variants
}

func (n *Normalizer) sizeVariant(raw map[string]any) domain.SizeVariant {
	r := n.record(EntitySizeVariant, raw)

	variant := domain.SizeVariant{
		Size:  domain.NormalizeSize(r.String("size")),
		Stock: n.fallbackStock,
	}
	if r.Has("stock") {
		variant.Stock = nonNegative(r.Int("stock"))
	}
	if price, ok := r.OptDecimal("price"); ok {
		variant.Price = &price
	}
	return variant
}

// Categories нормализует список категорий. Строковые элементы считаются названиями.
func (n *Normalizer) Categories(raw any) []domain.Category {
	items := n.unwrapList(raw)
	result := make([]domain.Category, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			name := strings.TrimSpace(v)
			if name == "" {
				continue
			}
			result = append(result, domain.Category{Name: name, Slug: slugify(name)})
		case map[string]any:
			r := n.record(EntityCategory, v)
			category := domain.Category{ID: r.Int("id"), Name: r.String("name"), Slug: r.String("slug")}
			if category.Name == "" {
				continue
			}
			if category.Slug == "" {
				category.Slug = slugify(category.Name)
			}
			result = append(result, category)
		}
	}
	return result
}

// CartLines нормализует серверную корзину. Ссылки "category/id" разбираются в
// типизированный ключ; строки без товара пропускаются.
func (n *Normalizer) CartLines(raw any) []domain.CartLine {
	items := n.unwrapList(raw)
	result := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := n.record(EntityCartLine, m)

		var itemID int64
		if ref := r.String("ref"); ref != "" {
			if parsed, err := domain.ParseProductRef(ref); err == nil {
				itemID = parsed.ID
			}
		}
		if itemID <= 0 {
			itemID = r.Int("item_id")
		}
		if itemID <= 0 {
			continue
		}

		qty := int(r.Int("quantity"))
		if qty <= 0 {
			continue
		}

		result = append(result, domain.CartLine{
			Key:       domain.NewItemKey(itemID, domain.Size(r.String("size"))),
			Name:      r.String("name"),
			UnitPrice: r.Decimal("price"),
			Quantity:  domain.ClampQuantity(qty),
			ImageRef:  r.String("image"),
		})
	}
	return result
}

// Order нормализует заказ. Невалидные позиции отбрасываются; если сумма не пришла,
// она считается по позициям.
func (n *Normalizer) Order(raw any) (domain.Order, error) {
	m, ok := n.unwrapObject(raw)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order is not an object", ErrMalformed)
	}
	r := n.record(EntityOrder, m)

	id := r.String("id")
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order", ErrMissingID)
	}

	order := domain.Order{
		ID:            id,
		UserID:        r.String("user_id"),
		Status:        n.status(r.String("status")),
		PaymentMethod: domain.PaymentMethod(strings.ToLower(r.String("payment_method"))),
		Shipping: domain.ShippingInfo{
			Address: r.String("address"),
			Region:  r.String("region"),
			Commune: r.String("commune"),
			Notes:   r.String("notes"),
		},
		Contact: domain.ContactInfo{
			Name:  r.String("contact_name"),
			Email: r.String("contact_email"),
			Phone: r.String("contact_phone"),
		},
		CreatedAt: r.Time("created_at"),
		UpdatedAt: r.Time("updated_at"),
	}

	for _, item := range r.List("lines") {
		lm, isMap := item.(map[string]any)
		if !isMap {
			continue
		}
		line := n.orderLine(lm)
		if !line.Valid() {
			continue
		}
		order.Lines = append(order.Lines, line)
	}

	if total, has := r.OptDecimal("total"); has {
		order.Total = total
	} else {
		order.Total = domain.LinesTotal(order.Lines)
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	return order, nil
}

// Orders нормализует список заказов; записи без идентификатора пропускаются.
func (n *Normalizer) Orders(raw any) []domain.Order {
	items := n.unwrapList(raw)
	result := make([]domain.Order, 0, len(items))
	for _, item := range items {
		order, err := n.Order(item)
		if err != nil {
			continue
		}
		result = append(result, order)
	}
	return result
}

func (n *Normalizer) orderLine(raw map[string]any) domain.OrderLine {
	r := n.record(EntityOrderLine, raw)
	line := domain.NewOrderLine(
		r.Int("item_id"),
		r.String("name"),
		int(r.Int("qty")),
		domain.Size(r.String("size")),
		r.Decimal("unit_price"),
	)
	if subtotal, ok := r.OptDecimal("subtotal"); ok {
		line.Subtotal = subtotal
	}
	return line
}

func (n *Normalizer) status(raw string) domain.OrderStatus {
	value := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := n.table.StatusAliases[value]; ok {
		value = alias
	}
	status := domain.OrderStatus(value)
	if !status.Valid() {
		return domain.OrderStatusPending
	}
	return status
}

// User нормализует профиль пользователя.
func (n *Normalizer) User(raw any) (domain.User, error) {
	m, ok := n.unwrapObject(raw)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user is not an object", ErrMalformed)
	}
	user := n.user(m)
	if user.ID == "" {
		return domain.User{}, fmt.Errorf("%w: user", ErrMissingID)
	}
	return user, nil
}

func (n *Normalizer) user(m map[string]any) domain.User {
	r := n.record(EntityUser, m)
	return domain.User{
		ID:    r.String("id"),
		Email: r.String("email"),
		Name:  r.String("name"),
		Phone: r.String("phone"),
		Shipping: domain.ShippingInfo{
			Address: r.String("address"),
			Region:  r.String("region"),
			Commune: r.String("commune"),
		},
		Role:       domain.ParseRole(r.String("role")),
		Registered: r.Bool("registered"),
	}
}

// Session нормализует ответ входа: сессию и, если пришёл, профиль пользователя.
func (n *Normalizer) Session(raw any) (domain.Session, domain.User, error) {
	m, ok := n.unwrapObject(raw)
	if !ok {
		return domain.Session{}, domain.User{}, fmt.Errorf("%w: login response is not an object", ErrMalformed)
	}
	r := n.record(EntitySession, m)

	token := r.String("token")
	if token == "" {
		return domain.Session{}, domain.User{}, ErrMissingToken
	}

	var user domain.User
	if um, has := r.Object("user"); has {
		user = n.user(um)
	}

	session := domain.Session{
		Token:  token,
		UserID: r.String("user_id"),
		Role:   domain.ParseRole(r.String("role")),
	}
	if session.UserID == "" {
		session.UserID = user.ID
	}
	if user.ID == "" {
		user.ID = session.UserID
		user.Role = session.Role
	}
	if session.UserID == "" {
		return domain.Session{}, domain.User{}, fmt.Errorf("%w: session user", ErrMissingID)
	}

	return session, user, nil
}

// ContactMessages нормализует входящие обращения.
func (n *Normalizer) ContactMessages(raw any) []domain.ContactMessage {
	items := n.unwrapList(raw)
	result := make([]domain.ContactMessage, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := n.record(EntityContactMessage, m)
		msg := domain.ContactMessage{
			ID:        r.String("id"),
			Name:      r.String("name"),
			Email:     r.String("email"),
			Subject:   r.String("subject"),
			Body:      r.String("body"),
			Read:      r.Bool("read"),
			Replied:   r.Bool("replied"),
			CreatedAt: r.Time("created_at"),
		}
		if msg.ID == "" {
			continue
		}
		result = append(result, msg)
	}
	return result
}

// StockLevels нормализует остатки по размерам. Поддерживаются список
// {size, stock}, словарь размер → количество и одиночный {stock} для товара без размеров.
func (n *Normalizer) StockLevels(raw any) map[domain.Size]int {
	levels := make(map[domain.Size]int)

	if m, ok := n.unwrapObject(raw); ok {
		if _, wrapped := n.envelopeValue(m, n.table.Envelope.List); !wrapped {
			r := n.record(EntityStockLevel, m)
			if value, has := r.Value("stock"); has && scalar(value) {
				levels[domain.NormalizeSize(r.String("size"))] = nonNegative(r.Int("stock"))
				return levels
			}
			for key, value := range m {
				if stock, parsed := intOf(value); parsed {
					levels[domain.NormalizeSize(key)] = nonNegative(stock)
				}
			}
			return levels
		}
	}

	for _, item := range n.unwrapList(raw) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := n.record(EntityStockLevel, m)
		levels[domain.NormalizeSize(r.String("size"))] = nonNegative(r.Int("stock"))
	}
	return levels
}

// Amount нормализует денежную сумму: число, строку или объект {total: ...}.
func (n *Normalizer) Amount(raw any) decimal.Decimal {
	if d, ok := decimalOf(raw); ok {
		return d
	}
	m, ok := n.unwrapObject(raw)
	if !ok {
		return decimal.Zero
	}
	return n.record(EntityAmount, m).Decimal("value")
}

func nonNegative(v int64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}

func slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
