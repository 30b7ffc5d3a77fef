package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/backend"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
)

// Драйверы хранилища локального состояния.
const (
	StateDriverMemory   = "memory"
	StateDriverRedis    = "redis"
	StateDriverPostgres = "postgres"
)

// ErrInvalidConfig оборачивает все ошибки проверки конфигурации.
var ErrInvalidConfig = errors.New("invalid config")

// Config описывает настройки запуска витрины.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	GRPCAddr    string

	CatalogURL     string
	OrdersURL      string
	UsersURL       string
	SupportURL     string
	BackendTimeout time.Duration
	// MappingPath: YAML с таблицей нормализации; пусто = встроенная таблица.
	MappingPath string

	StateDriver         string
	RedisAddr           string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// JournalPath: файл SQLite журнала оформления; пусто = журнал в памяти.
	JournalPath string

	KafkaBrokers     []string
	KafkaOrderTopic  string
	KafkaStatusTopic string
	// KafkaStockTopic получает события резерва и обнуления остатков.
	KafkaStockTopic string
	KafkaGroupID    string
	AMQPURL         string
	AMQPExchange    string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxRetention    time.Duration
	OutboxMaxLag       time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	CatalogCacheTTL      time.Duration
	FallbackStock        int
	DefaultStock         int
	CheckoutCompensation string
}

// DefaultConfig возвращает настройки для локального запуска: всё в памяти, без брокеров.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		GRPCAddr:    ":50051",

		CatalogURL:     "http://localhost:8081",
		OrdersURL:      "http://localhost:8082",
		UsersURL:       "http://localhost:8083",
		SupportURL:     "http://localhost:8084",
		BackendTimeout: backend.DefaultTimeout,

		StateDriver: StateDriverMemory,
		RedisAddr:   "localhost:6379",

		KafkaOrderTopic:  kafka.TopicOrderEvents,
		KafkaStatusTopic: kafka.TopicOrderStatus,
		KafkaStockTopic:  kafka.TopicStockEvents,
		KafkaGroupID:     "storefront-bff",
		AMQPExchange:     rabbitmq.DefaultExchange,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxRetention:    24 * time.Hour,
		OutboxMaxLag:       5 * time.Minute,

		IdempotencyTTL:              domain.DefaultIdempotencyTTL,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		CatalogCacheTTL:      time.Minute,
		FallbackStock:        normalize.DefaultFallbackStock,
		DefaultStock:         stock.DefaultQuantity,
		CheckoutCompensation: string(checkout.CompensationNone),
	}
}

// Validate проверяет согласованность настроек и возвращает все найденные проблемы разом.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	for name, addr := range map[string]string{"http addr": c.HTTPAddr, "metrics addr": c.MetricsAddr} {
		if strings.TrimSpace(addr) == "" {
			add("%s is empty", name)
		}
	}
	for name, raw := range map[string]string{
		"catalog url": c.CatalogURL,
		"orders url":  c.OrdersURL,
		"users url":   c.UsersURL,
		"support url": c.SupportURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add("%s %q is not an absolute url", name, raw)
		}
	}

	switch c.StateDriver {
	case StateDriverMemory:
	case StateDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			add("redis addr is required for state driver %s", c.StateDriver)
		}
	case StateDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			add("postgres dsn is required for state driver %s", c.StateDriver)
		}
	default:
		add("unknown state driver %q", c.StateDriver)
	}

	if _, err := checkout.ParseCompensationPolicy(c.CheckoutCompensation); err != nil {
		add("%v", err)
	}
	if c.FallbackStock < 0 || c.DefaultStock < 0 {
		add("stock defaults must be non-negative")
	}
	if c.BackendTimeout < 0 {
		add("backend timeout must be non-negative")
	}

	return errors.Join(errs...)
}

// usesPostgres сообщает, нужно ли подключение к PostgreSQL.
func (c Config) usesPostgres() bool {
	return c.StateDriver == StateDriverPostgres || strings.TrimSpace(c.PostgresDSN) != ""
}
