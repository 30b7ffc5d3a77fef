package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// DefaultKeyPrefix: префикс ключей состояния витрины.
	DefaultKeyPrefix = "storefront:state:"
	// DefaultChangesChannel: канал pub/sub с уведомлениями об изменениях.
	DefaultChangesChannel = "storefront:state:changes"

	watchBuffer = 16
)

type stateNotification struct {
	Key     string    `json:"key"`
	Deleted bool      `json:"deleted,omitempty"`
	At      time.Time `json:"at"`
}

// StateStore хранит ключи состояния в Redis и рассылает изменения через PUBLISH.
type StateStore struct {
	client  goredis.UniversalClient
	prefix  string
	channel string
	now     func() time.Time
	logger  *log.Entry
}

// Option настраивает StateStore.
type Option func(*StateStore)

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) Option {
	return func(s *StateStore) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = prefix
		}
	}
}

// WithChannel задаёт канал уведомлений.
func WithChannel(channel string) Option {
	return func(s *StateStore) {
		if strings.TrimSpace(channel) != "" {
			s.channel = channel
		}
	}
}

// WithClock подменяет источник времени уведомлений.
func WithClock(now func() time.Time) Option {
	return func(s *StateStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *StateStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewClient создаёт клиента Redis для адреса host:port.
func NewClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: addr})
}

// NewStateStore создаёт StateStore поверх готового клиента.
func NewStateStore(client goredis.UniversalClient, opts ...Option) *StateStore {
	s := &StateStore{
		client:  client,
		prefix:  DefaultKeyPrefix,
		channel: DefaultChangesChannel,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  log.WithField("component", "redis-state"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping проверяет доступность Redis.
func (s *StateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get возвращает значение или ErrStateKeyNotFound.
func (s *StateStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrStateKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Put сохраняет значение без срока жизни и публикует уведомление.
func (s *StateStore) Put(ctx context.Context, key string, value []byte) error {
	key = strings.TrimSpace(key)
	if err := s.client.Set(ctx, s.redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return s.publish(ctx, stateNotification{Key: key, At: s.now()})
}

// Delete удаляет значение; уведомление уходит только если ключ существовал.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	removed, err := s.client.Del(ctx, s.redisKey(key)).Result()
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	if removed == 0 {
		return nil
	}
	return s.publish(ctx, stateNotification{Key: key, Deleted: true, At: s.now()})
}

// Watch подписывается на канал изменений. Канал закрывается после отмены ctx.
func (s *StateStore) Watch(ctx context.Context) (<-chan domain.StateChange, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", s.channel, err)
	}

	out := make(chan domain.StateChange, watchBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				change, err := decodeNotification(msg.Payload)
				if err != nil {
					s.logger.WithError(err).WithField("payload", msg.Payload).Warn("skip malformed state notification")
					continue
				}
				select {
				case out <- change:
				default:
					s.logger.WithField("key", change.Key).Debug("state watcher is slow, notification dropped")
				}
			}
		}
	}()

	return out, nil
}

func (s *StateStore) publish(ctx context.Context, n stateNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal state notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}

func (s *StateStore) redisKey(key string) string {
	return s.prefix + strings.TrimSpace(key)
}

func decodeNotification(payload string) (domain.StateChange, error) {
	var n stateNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return domain.StateChange{}, err
	}
	if n.Key == "" {
		return domain.StateChange{}, fmt.Errorf("state notification without key")
	}
	return domain.StateChange{Key: n.Key, Deleted: n.Deleted, At: n.At}, nil
}

var _ domain.StateStore = (*StateStore)(nil)
