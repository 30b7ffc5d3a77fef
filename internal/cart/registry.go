package cart

import (
	"slices"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// AnonymousClient: идентификатор клиента, если X-Client-Id не передан.
const AnonymousClient = "anonymous"

// Snapshot: снимок корзины клиента для локального хранилища.
type Snapshot struct {
	ClientID string            `json:"client_id"`
	Identity string            `json:"identity"`
	Lines    []domain.CartLine `json:"lines"`
}

type holder struct {
	cart     *Cart
	identity string
}

// Registry владеет корзинами клиентов. Корзина привязана к идентичности сессии:
// смена пользователя на клиенте сбрасывает корзину.
type Registry struct {
	mu        sync.Mutex
	holders   map[string]*holder
	observers []func([]Snapshot)
	logger    *log.Entry
}

// NewRegistry создаёт пустой реестр корзин.
func NewRegistry(logger *log.Entry) *Registry {
	if logger == nil {
		logger = log.WithField("component", "cart-registry")
	}
	return &Registry{
		holders: make(map[string]*holder),
		logger:  logger,
	}
}

// Subscribe добавляет подписчика на изменения любой корзины.
func (r *Registry) Subscribe(observer func([]Snapshot)) {
	if observer == nil {
		return
	}
	r.mu.Lock()
	r.observers = append(r.observers, observer)
	r.mu.Unlock()
}

// Activate возвращает корзину клиента для сессии. Если идентичность сессии отличается
// от той, с которой корзина создавалась, корзина заменяется пустой и reset=true.
func (r *Registry) Activate(clientID string, session domain.Session) (*Cart, bool) {
	clientID = normalizeClientID(clientID)
	identity := session.Identity()

	r.mu.Lock()
	h, ok := r.holders[clientID]
	if ok && h.identity == identity {
		r.mu.Unlock()
		return h.cart, false
	}

	reset := ok
	c := New()
	c.onChange = r.notify
	h = &holder{cart: c, identity: identity}
	r.holders[clientID] = h
	r.mu.Unlock()

	if reset {
		r.logger.WithFields(log.Fields{
			"client_id": clientID,
			"identity":  identity,
		}).Info("session switched, cart reset")
		r.notify()
	}
	return h.cart, reset
}

// Get возвращает корзину клиента, если она уже есть.
func (r *Registry) Get(clientID string) (*Cart, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holders[normalizeClientID(clientID)]
	if !ok {
		return nil, false
	}
	return h.cart, true
}

// Snapshot возвращает снимки всех корзин, отсортированные по клиенту.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	holders := make(map[string]*holder, len(r.holders))
	for id, h := range r.holders {
		holders[id] = h
	}
	r.mu.Unlock()

	result := make([]Snapshot, 0, len(holders))
	for id, h := range holders {
		result = append(result, Snapshot{ClientID: id, Identity: h.identity, Lines: h.cart.Lines()})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result
}

// Restore загружает корзины из снимка без уведомления подписчиков.
func (r *Registry) Restore(snapshots []Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.holders = make(map[string]*holder, len(snapshots))
	for _, s := range snapshots {
		c := New()
		c.Replace(s.Lines)
		c.onChange = r.notify
		identity := s.Identity
		if identity == "" {
			identity = domain.AnonymousSession().Identity()
		}
		r.holders[normalizeClientID(s.ClientID)] = &holder{cart: c, identity: identity}
	}
}

func (r *Registry) notify() {
	r.mu.Lock()
	observers := slices.Clone(r.observers)
	r.mu.Unlock()
	if len(observers) == 0 {
		return
	}

	snapshot := r.Snapshot()
	for _, observer := range observers {
		observer(snapshot)
	}
}

func normalizeClientID(clientID string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return AnonymousClient
	}
	return clientID
}
