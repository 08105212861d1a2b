package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/app"
)

const (
	envGRPCAddr                    = "CANTEEN_GRPC_ADDR"
	envHTTPAddr                    = "CANTEEN_HTTP_ADDR"
	envStorageDriver               = "CANTEEN_STORAGE_DRIVER"
	envCatalogDriver               = "CANTEEN_CATALOG_DRIVER"
	envPostgresDSN                 = "CANTEEN_POSTGRES_DSN"
	envPostgresAutoMigrate         = "CANTEEN_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "CANTEEN_REDIS_ADDR"
	envRedisPassword               = "CANTEEN_REDIS_PASSWORD"
	envRedisDB                     = "CANTEEN_REDIS_DB"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envKafkaGroup                  = "CANTEEN_KAFKA_GROUP"
	envOutboxPollInterval          = "CANTEEN_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "CANTEEN_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "CANTEEN_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "CANTEEN_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "CANTEEN_OUTBOX_MAX_PENDING"
	envIdempotencyTTL              = "CANTEEN_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "CANTEEN_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "CANTEEN_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envProjectionRefresh           = "CANTEEN_PROJECTION_REFRESH"
	envAdminUser                   = "CANTEEN_ADMIN_USER"
	envAdminPassword               = "CANTEEN_ADMIN_PASSWORD"
	envAdminPasswordHash           = "CANTEEN_ADMIN_PASSWORD_HASH"
	envSeedCatalog                 = "CANTEEN_SEED_CATALOG"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение оставляет значение по умолчанию и добавляет предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	lower := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.ToLower(strings.TrimSpace(v))
		}
	}
	boolean := func(key string, target *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*target = parsed
	}
	integer := func(key string, target *int, validate func(int) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, validate, msg)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*target = parsed
	}
	duration := func(key string, target *time.Duration, validate func(time.Duration) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, validate, msg)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*target = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envHTTPAddr, &cfg.HTTPAddr)
	lower(envStorageDriver, &cfg.StorageDriver)
	lower(envCatalogDriver, &cfg.CatalogDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envRedisAddr, &cfg.RedisAddr)
	if v, ok := lookup(envRedisPassword); ok {
		cfg.RedisPassword = v
	}
	integer(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaGroup, &cfg.KafkaConsumerGroup)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")
	duration(envProjectionRefresh, &cfg.ProjectionRefreshInterval, positiveDuration, "must be > 0")

	str(envAdminUser, &cfg.AdminUser)
	if v, ok := lookup(envAdminPassword); ok {
		cfg.AdminPassword = v
	}
	str(envAdminPasswordHash, &cfg.AdminPasswordHash)

	// Без явной настройки стартовый каталог засевается только в память.
	cfg.SeedCatalog = cfg.StorageDriver == app.StorageDriverMemory
	boolean(envSeedCatalog, &cfg.SeedCatalog)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, validate func(int) bool, msg string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if validate != nil && !validate(value) {
		return 0, fmt.Errorf("invalid int value %q: %s", raw, msg)
	}
	return value, nil
}

func parseDuration(raw string, validate func(time.Duration) bool, msg string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if validate != nil && !validate(value) {
		return 0, fmt.Errorf("invalid duration value %q: %s", raw, msg)
	}
	return value, nil
}
