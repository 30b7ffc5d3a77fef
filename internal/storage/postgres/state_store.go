package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StateChannel: канал LISTEN/NOTIFY, в который пишутся изменения state_entries.
const StateChannel = "storefront_state"

const (
	watchBuffer       = 16
	watchReconnectGap = time.Second
)

type stateNotification struct {
	Key     string    `json:"key"`
	Deleted bool      `json:"deleted,omitempty"`
	At      time.Time `json:"at"`
}

// StateStore хранит ключи состояния витрины в таблице state_entries.
// Каждая запись публикует pg_notify, поэтому изменения видят все экземпляры.
type StateStore struct {
	db     *sql.DB
	dsn    string
	logger *log.Entry
}

// NewStateStore создаёт StateStore поверх открытого Store.
func NewStateStore(store *Store) *StateStore {
	return &StateStore{
		db:     store.DB(),
		dsn:    store.dsn,
		logger: store.logger.WithField("component", "postgres-state"),
	}
}

// Get возвращает значение или ErrStateKeyNotFound.
func (s *StateStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM state_entries WHERE key = $1
	`, strings.TrimSpace(key)).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrStateKeyNotFound
		}
		return nil, fmt.Errorf("get state entry: %w", err)
	}
	return value, nil
}

// Put записывает значение и уведомление в одной транзакции:
// подписчики получают событие только после коммита.
func (s *StateStore) Put(ctx context.Context, key string, value []byte) error {
	key = strings.TrimSpace(key)
	now := time.Now().UTC()

	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO state_entries (key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value,
			    updated_at = EXCLUDED.updated_at
		`, key, value, now); err != nil {
			return fmt.Errorf("upsert state entry: %w", err)
		}
		return notify(ctx, tx, stateNotification{Key: key, At: now})
	})
}

// Delete удаляет значение. Отсутствующий ключ не порождает уведомления.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	now := time.Now().UTC()

	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM state_entries WHERE key = $1`, key)
		if err != nil {
			return fmt.Errorf("delete state entry: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("state rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}
		return notify(ctx, tx, stateNotification{Key: key, Deleted: true, At: now})
	})
}

// Watch держит отдельное соединение с LISTEN до отмены ctx.
// При обрыве соединения подписка восстанавливается; пропущенные за это время
// уведомления не доставляются.
func (s *StateStore) Watch(ctx context.Context) (<-chan domain.StateChange, error) {
	conn, err := s.listen(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.StateChange, watchBuffer)
	go s.watchLoop(ctx, conn, ch)
	return ch, nil
}

func (s *StateStore) listen(ctx context.Context) (*pgx.Conn, error) {
	connectCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	conn, err := pgx.Connect(connectCtx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect state listener: %w", err)
	}
	if _, err := conn.Exec(connectCtx, "LISTEN "+pgx.Identifier{StateChannel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", StateChannel, err)
	}
	return conn, nil
}

func (s *StateStore) watchLoop(ctx context.Context, conn *pgx.Conn, ch chan<- domain.StateChange) {
	defer close(ch)
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(watchReconnectGap):
			}
			next, err := s.listen(ctx)
			if err != nil {
				s.logger.WithError(err).Warn("state listener reconnect failed")
				continue
			}
			conn = next
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Warn("state listener lost connection")
			_ = conn.Close(context.Background())
			conn = nil
			continue
		}

		var payload stateNotification
		if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
			s.logger.WithError(err).WithField("payload", n.Payload).Warn("skip malformed state notification")
			continue
		}

		select {
		case ch <- domain.StateChange{Key: payload.Key, Deleted: payload.Deleted, At: payload.At}:
		default:
			s.logger.WithField("key", payload.Key).Debug("state watcher is slow, notification dropped")
		}
	}
}

func (s *StateStore) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state tx: %w", err)
	}
	return nil
}

func notify(ctx context.Context, tx *sql.Tx, change stateNotification) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal state notification: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, StateChannel, string(payload)); err != nil {
		return fmt.Errorf("notify state change: %w", err)
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
