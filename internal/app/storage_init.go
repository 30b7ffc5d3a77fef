package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
	"github.com/vladislavdragonenkov/storefront/internal/storage/sqlite"
)

// storage: хранилища, выбранные по конфигурации.
type storage struct {
	postgres    *postgres.Store
	states      domain.StateStore
	outbox      domain.OutboxRepository
	idempotency domain.IdempotencyRepository
	journal     domain.CheckoutJournal

	// pingers попадают в health checks под своими именами.
	pingers map[string]health.Pinger
	checks  map[string]health.Checker
	closers []func() error
}

// initStorage открывает хранилища. При ошибке уже открытые соединения закрываются.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (_ *storage, err error) {
	st := &storage{pingers: make(map[string]health.Pinger), checks: make(map[string]health.Checker)}
	defer func() {
		if err != nil {
			_ = closeAll(st.closers)
		}
	}()

	if cfg.usesPostgres() {
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithLogger(logger.WithField("component", "postgres-store")))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		st.closers = append(st.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		st.postgres = store
		st.pingers["postgres"] = store
		st.checks["postgres-schema"] = health.NewSoftCheck("postgres-schema", store.CheckSchema)
		st.outbox = postgres.NewOutboxRepository(store)
		st.idempotency = postgres.NewIdempotencyRepository(store)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("postgres storage initialized")
	} else {
		st.outbox = memory.NewOutboxRepository()
		st.idempotency = memory.NewIdempotencyRepository()
	}

	switch cfg.StateDriver {
	case StateDriverMemory:
		st.states = memory.NewStateStore()
	case StateDriverRedis:
		client := redisstore.NewClient(cfg.RedisAddr)
		st.closers = append(st.closers, client.Close)
		states := redisstore.NewStateStore(client, redisstore.WithLogger(logger.WithField("component", "redis-state")))
		if err := states.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		st.states = states
		st.pingers["redis"] = states
		logger.WithField("addr", cfg.RedisAddr).Info("redis state store initialized")
	case StateDriverPostgres:
		st.states = postgres.NewStateStore(st.postgres)
	default:
		return nil, fmt.Errorf("%w: unknown state driver %q", ErrInvalidConfig, cfg.StateDriver)
	}

	if cfg.JournalPath != "" {
		journal, err := sqlite.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open checkout journal: %w", err)
		}
		st.closers = append(st.closers, journal.Close)
		st.journal = journal
		st.pingers["journal"] = journal
		logger.WithField("path", cfg.JournalPath).Info("sqlite checkout journal initialized")
	} else {
		st.journal = memory.NewJournal()
	}

	return st, nil
}
