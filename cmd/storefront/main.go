package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	envHTTPAddr                    = "STOREFRONT_HTTP_ADDR"
	envMetricsAddr                 = "STOREFRONT_METRICS_ADDR"
	envGRPCAddr                    = "STOREFRONT_GRPC_ADDR"
	envCatalogURL                  = "STOREFRONT_CATALOG_URL"
	envOrdersURL                   = "STOREFRONT_ORDERS_URL"
	envUsersURL                    = "STOREFRONT_USERS_URL"
	envSupportURL                  = "STOREFRONT_SUPPORT_URL"
	envBackendTimeout              = "STOREFRONT_BACKEND_TIMEOUT"
	envMappingPath                 = "STOREFRONT_MAPPING_PATH"
	envStateDriver                 = "STOREFRONT_STATE_DRIVER"
	envRedisAddr                   = "STOREFRONT_REDIS_ADDR"
	envPostgresDSN                 = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate         = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envJournalPath                 = "STOREFRONT_JOURNAL_PATH"
	envKafkaBrokers                = "STOREFRONT_KAFKA_BROKERS"
	envKafkaOrderTopic             = "STOREFRONT_KAFKA_ORDER_TOPIC"
	envKafkaStatusTopic            = "STOREFRONT_KAFKA_STATUS_TOPIC"
	envKafkaStockTopic             = "STOREFRONT_KAFKA_STOCK_TOPIC"
	envKafkaGroupID                = "STOREFRONT_KAFKA_GROUP_ID"
	envAMQPURL                     = "STOREFRONT_AMQP_URL"
	envAMQPExchange                = "STOREFRONT_AMQP_EXCHANGE"
	envOutboxPollInterval          = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envOutboxRetention             = "STOREFRONT_OUTBOX_RETENTION"
	envOutboxMaxLag                = "STOREFRONT_OUTBOX_MAX_LAG"
	envIdempotencyTTL              = "STOREFRONT_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envCatalogCacheTTL             = "STOREFRONT_CATALOG_CACHE_TTL"
	envFallbackStock               = "STOREFRONT_FALLBACK_STOCK"
	envDefaultStock                = "STOREFRONT_DEFAULT_STOCK"
	envCheckoutCompensation        = "STOREFRONT_CHECKOUT_COMPENSATION"
	envLogLevel                    = "STOREFRONT_LOG_LEVEL"
	envLogFormat                   = "STOREFRONT_LOG_FORMAT"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	var warnings []string
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if format, ok := lookupTrimmed(lookup, envLogFormat); ok && strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}

	log.SetLevel(log.InfoLevel)
	if raw, ok := lookupTrimmed(lookup, envLogLevel); ok {
		level, err := log.ParseLevel(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envLogLevel, err))
		} else {
			log.SetLevel(level)
		}
	}
	return warnings
}

// readConfigFromEnv собирает конфигурацию из окружения. Некорректные значения
// не прерывают старт: остаётся значение по умолчанию, а причина попадает в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}

	for key, target := range map[string]*string{
		envHTTPAddr:         &cfg.HTTPAddr,
		envMetricsAddr:      &cfg.MetricsAddr,
		envGRPCAddr:         &cfg.GRPCAddr,
		envCatalogURL:       &cfg.CatalogURL,
		envOrdersURL:        &cfg.OrdersURL,
		envUsersURL:         &cfg.UsersURL,
		envSupportURL:       &cfg.SupportURL,
		envMappingPath:      &cfg.MappingPath,
		envRedisAddr:        &cfg.RedisAddr,
		envPostgresDSN:      &cfg.PostgresDSN,
		envJournalPath:      &cfg.JournalPath,
		envKafkaOrderTopic:  &cfg.KafkaOrderTopic,
		envKafkaStatusTopic: &cfg.KafkaStatusTopic,
		envKafkaStockTopic:  &cfg.KafkaStockTopic,
		envKafkaGroupID:     &cfg.KafkaGroupID,
		envAMQPURL:          &cfg.AMQPURL,
		envAMQPExchange:     &cfg.AMQPExchange,
	} {
		if v, ok := lookupTrimmed(lookup, key); ok {
			*target = v
		}
	}

	if v, ok := lookupTrimmed(lookup, envStateDriver); ok {
		cfg.StateDriver = strings.ToLower(v)
	}
	if v, ok := lookupTrimmed(lookup, envCheckoutCompensation); ok {
		cfg.CheckoutCompensation = strings.ToLower(v)
	}
	if v, ok := lookupTrimmed(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}

	if v, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	for key, spec := range map[string]struct {
		target *int
		valid  func(int) bool
		reason string
	}{
		envOutboxBatchSize:             {&cfg.OutboxBatchSize, positive, "must be > 0"},
		envOutboxMaxAttempts:           {&cfg.OutboxMaxAttempts, positive, "must be > 0"},
		envIdempotencyCleanupBatchSize: {&cfg.IdempotencyCleanupBatchSize, positive, "must be > 0"},
		envFallbackStock:               {&cfg.FallbackStock, nonNegative, "must be >= 0"},
		envDefaultStock:                {&cfg.DefaultStock, nonNegative, "must be >= 0"},
	} {
		v, ok := lookupTrimmed(lookup, key)
		if !ok {
			continue
		}
		parsed, err := parseInt(v, spec.valid, spec.reason)
		if err != nil {
			warn(key, err)
			continue
		}
		*spec.target = parsed
	}

	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }
	for key, spec := range map[string]struct {
		target *time.Duration
		valid  func(time.Duration) bool
		reason string
	}{
		envBackendTimeout:             {&cfg.BackendTimeout, nonNegativeDuration, "must be >= 0"},
		envOutboxPollInterval:         {&cfg.OutboxPollInterval, positiveDuration, "must be > 0"},
		envOutboxRetryDelay:           {&cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0"},
		envOutboxRetention:            {&cfg.OutboxRetention, positiveDuration, "must be > 0"},
		envOutboxMaxLag:               {&cfg.OutboxMaxLag, positiveDuration, "must be > 0"},
		envIdempotencyTTL:             {&cfg.IdempotencyTTL, positiveDuration, "must be > 0"},
		envIdempotencyCleanupInterval: {&cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0"},
		envCatalogCacheTTL:            {&cfg.CatalogCacheTTL, nonNegativeDuration, "must be >= 0"},
	} {
		v, ok := lookupTrimmed(lookup, key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(v, spec.valid, spec.reason)
		if err != nil {
			warn(key, err)
			continue
		}
		*spec.target = parsed
	}

	return cfg, warnings
}

// lookupTrimmed возвращает непустое значение переменной без пробелов по краям.
func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, reason string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, reason)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, reason string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, reason)
	}
	return value, nil
}

func main() {
	logWarnings := setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range append(logWarnings, warnings...) {
		log.Warnf("ignored invalid setting, using default: %s", warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      version.String(),
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"state_driver": cfg.StateDriver,
	}).Info("запускаем витрину")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("витрина остановлена")
}
