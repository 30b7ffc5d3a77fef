package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/backend"
	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/state"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Dependencies содержит все компоненты витрины, собранные по Config.
type Dependencies struct {
	Config Config
	Logger *log.Entry

	Catalog *backend.CatalogClient
	Orders  *backend.OrdersClient
	Users   *backend.UsersClient
	Support *backend.SupportClient

	Stock          *stock.Map
	Carts          *cart.Registry
	CatalogService *catalog.Service
	Mirror         *state.Mirror
	Checkout       *checkout.Workflow
	Guard          *idempotency.Guard
	Cleanup        *idempotency.CleanupWorker
	OutboxWorker   *outbox.Worker
	Statuses       *memory.OrderStatusCache
	// StatusConsumer есть только при настроенной Kafka.
	StatusConsumer *kafka.Consumer
	Health         *health.Handler

	storage   *storage
	messaging *messaging
}

// NewDependencies собирает витрину. Хранилища открываются сразу,
// фоновые воркеры запускает Run.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (_ *Dependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := checkout.ParseCompensationPolicy(cfg.CheckoutCompensation)
	if err != nil {
		return nil, err
	}

	normalizer, err := loadNormalizer(cfg)
	if err != nil {
		return nil, err
	}

	d := &Dependencies{Config: cfg, Logger: logger}
	d.storage, err = initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	backendMetrics := metrics.NewBackendMetrics()
	if err := d.initBackends(cfg, normalizer, backendMetrics); err != nil {
		return nil, err
	}

	d.Statuses = memory.NewOrderStatusCache()
	d.messaging = initMessaging(ctx, cfg, d.Statuses, logger)
	d.StatusConsumer = d.messaging.statuses

	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
	}
	if d.messaging.dlq != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(d.messaging.dlq))
	}
	d.OutboxWorker = outbox.NewWorker(d.storage.outbox, d.messaging.publisher, workerOpts...)

	d.Stock = stock.New(
		stock.WithDefaultQuantity(cfg.DefaultStock),
		stock.WithLogger(logger.WithField("component", "stock")),
		stock.WithClampObserver(checkout.NewClampRecorder(
			d.storage.outbox,
			backendMetrics,
			d.OutboxWorker.Notify,
			logger.WithField("component", "stock-clamp"),
		)),
	)
	d.Carts = cart.NewRegistry(logger.WithField("component", "cart"))
	d.CatalogService = catalog.New(d.Catalog, d.Stock,
		catalog.WithTTL(cfg.CatalogCacheTTL),
		catalog.WithStateStore(d.storage.states),
		catalog.WithLogger(logger.WithField("component", "catalog")),
	)
	d.Mirror = state.NewMirror(d.storage.states, d.Stock, d.Carts, logger.WithField("component", "state-mirror"))
	d.Mirror.Attach()

	d.Checkout = checkout.New(d.Catalog, d.Orders, d.Stock,
		checkout.WithOutbox(d.storage.outbox, d.OutboxWorker.Notify),
		checkout.WithJournal(d.storage.journal),
		checkout.WithMetrics(metrics.NewCheckoutMetrics()),
		checkout.WithCompensationPolicy(policy),
		checkout.WithLogger(logger.WithField("component", "checkout")),
	)
	d.Guard = idempotency.NewGuard(d.storage.idempotency,
		idempotency.WithTTL(cfg.IdempotencyTTL),
		idempotency.WithGuardLogger(logger.WithField("component", "idempotency")),
	)

	cleanupOpts := []idempotency.CleanupOption{
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithCleanupMetrics(metrics.NewCleanupMetrics()),
	}
	if purger, ok := d.storage.outbox.(idempotency.OutboxPurger); ok {
		cleanupOpts = append(cleanupOpts, idempotency.WithOutboxRetention(purger, cfg.OutboxRetention))
	}
	d.Cleanup = idempotency.NewCleanupWorker(d.storage.idempotency, cleanupOpts...)

	d.Health = health.NewHandler(version.GetVersion())
	d.Health.RegisterChecker("state-store", health.StateStoreCheck(d.storage.states))
	d.Health.RegisterChecker("outbox", health.OutboxBacklogCheck(d.storage.outbox, cfg.OutboxMaxLag, nil))
	for name, check := range d.storage.checks {
		d.Health.RegisterChecker(name, check)
	}
	for name, pinger := range d.storage.pingers {
		d.Health.RegisterChecker(name, health.PingCheck(name, pinger))
	}

	return d, nil
}

func (d *Dependencies) initBackends(cfg Config, normalizer *normalize.Normalizer, m *metrics.BackendMetrics) error {
	newClient := func(service, baseURL string) (*backend.Client, error) {
		return backend.NewClient(service, baseURL,
			backend.WithTimeout(cfg.BackendTimeout),
			backend.WithMetrics(m),
			backend.WithLogger(d.Logger.WithField("component", service+"-client")),
		)
	}

	catalogClient, err := newClient("catalog", cfg.CatalogURL)
	if err != nil {
		return err
	}
	ordersClient, err := newClient("orders", cfg.OrdersURL)
	if err != nil {
		return err
	}
	usersClient, err := newClient("users", cfg.UsersURL)
	if err != nil {
		return err
	}
	supportClient, err := newClient("support", cfg.SupportURL)
	if err != nil {
		return err
	}

	d.Catalog = backend.NewCatalogClient(catalogClient, normalizer)
	d.Orders = backend.NewOrdersClient(ordersClient, normalizer)
	d.Users = backend.NewUsersClient(usersClient, normalizer)
	d.Support = backend.NewSupportClient(supportClient, normalizer)
	return nil
}

// loadNormalizer читает таблицу соответствия полей из MappingPath или берёт встроенную.
func loadNormalizer(cfg Config) (*normalize.Normalizer, error) {
	table := normalize.Default()
	if cfg.MappingPath != "" {
		data, err := os.ReadFile(cfg.MappingPath)
		if err != nil {
			return nil, fmt.Errorf("read mapping %s: %w", cfg.MappingPath, err)
		}
		if table, err = normalize.Parse(data); err != nil {
			return nil, fmt.Errorf("parse mapping %s: %w", cfg.MappingPath, err)
		}
		if err := table.Validate(); err != nil {
			return nil, fmt.Errorf("validate mapping %s: %w", cfg.MappingPath, err)
		}
	}
	return normalize.New(table, normalize.WithFallbackStock(cfg.FallbackStock)), nil
}

// HTTPHandler собирает маршрутизатор публичного API.
func (d *Dependencies) HTTPHandler() http.Handler {
	handler := httpapi.NewHandler(httpapi.Dependencies{
		Catalog:  d.CatalogService,
		Stock:    d.Stock,
		Carts:    d.Carts,
		Checkout: d.Checkout,
		Guard:    d.Guard,
		Orders:   d.Orders,
		Users:    d.Users,
		Support:  d.Support,
		Statuses: d.Statuses,
		Feed:     d.Mirror,
		Logger:   d.Logger.WithField("layer", "http"),
	})
	return httpapi.NewRouter(handler, d.Logger.WithField("layer", "http"))
}

// Close закрывает брокеры и хранилища в порядке, обратном открытию.
func (d *Dependencies) Close() error {
	var closers []func() error
	if d.storage != nil {
		closers = append(closers, d.storage.closers...)
	}
	if d.messaging != nil {
		closers = append(closers, d.messaging.closers...)
	}
	return closeAll(closers)
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
