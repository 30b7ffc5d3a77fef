package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const watchBuffer = 16

// StateStore: in-memory key-value хранилище состояния с рассылкой изменений подписчикам.
type StateStore struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[int]chan domain.StateChange
	nextID   int
}

// NewStateStore создаёт пустое хранилище.
func NewStateStore() *StateStore {
	return &StateStore{
		values:   make(map[string][]byte),
		watchers: make(map[int]chan domain.StateChange),
	}
}

// Get возвращает копию значения или ErrStateKeyNotFound.
func (s *StateStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[strings.TrimSpace(key)]
	if !ok {
		return nil, domain.ErrStateKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put сохраняет значение и уведомляет подписчиков.
func (s *StateStore) Put(_ context.Context, key string, value []byte) error {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	s.values[key] = append([]byte(nil), value...)
	s.mu.Unlock()

	s.broadcast(domain.StateChange{Key: key, At: time.Now().UTC()})
	return nil
}

// Delete удаляет значение. Удаление отсутствующего ключа не уведомляет подписчиков.
func (s *StateStore) Delete(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if existed {
		s.broadcast(domain.StateChange{Key: key, Deleted: true, At: time.Now().UTC()})
	}
	return nil
}

// Watch подписывает на изменения до отмены ctx. Медленный подписчик теряет
// уведомления, а не блокирует запись.
func (s *StateStore) Watch(ctx context.Context) (<-chan domain.StateChange, error) {
	ch := make(chan domain.StateChange, watchBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

func (s *StateStore) broadcast(change domain.StateChange) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.watchers {
		select {
		case ch <- change:
		default:
		}
	}
}

var _ domain.StateStore = (*StateStore)(nil)
