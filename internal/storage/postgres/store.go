// Package postgres хранит состояние витрины, outbox и ключи идемпотентности в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

// poolConfig: параметры пула database/sql.
type poolConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

// Option настраивает Store.
type Option func(*Store)

// WithPool задаёт размер пула; неположительные значения игнорируются.
func WithPool(maxOpen, maxIdle int) Option {
	return func(s *Store) {
		if maxOpen > 0 {
			s.pool.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			s.pool.maxIdle = min(maxIdle, s.pool.maxOpen)
		}
	}
}

// WithLogger задаёт логгер хранилища.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store держит пул подключений к PostgreSQL.
type Store struct {
	db     *sql.DB
	dsn    string
	pool   poolConfig
	logger *log.Entry
}

// Open открывает пул и проверяет доступность базы.
// DSN сохраняется: StateStore.Watch поднимает по нему отдельное соединение под LISTEN.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	s := &Store{
		dsn: dsn,
		pool: poolConfig{
			maxOpen:     20,
			maxIdle:     10,
			maxLifetime: 30 * time.Minute,
			maxIdleTime: 5 * time.Minute,
		},
		logger: log.WithField("component", "postgres-store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(s.pool.maxOpen)
	db.SetMaxIdleConns(s.pool.maxIdle)
	db.SetConnMaxLifetime(s.pool.maxLifetime)
	db.SetConnMaxIdleTime(s.pool.maxIdleTime)
	s.db = db

	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s.logger.WithField("max_open_conns", s.pool.maxOpen).Debug("postgres pool opened")
	return s, nil
}

// DB возвращает пул для низкоуровневого доступа.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет соединение; используется как health check.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает пул. Повторный вызов и nil-получатель безопасны.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
