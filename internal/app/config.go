package app

import (
	"fmt"
	"strings"
	"time"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	CatalogDriverRedis    = "redis"

	defaultAdminUser     = "admin"
	defaultAdminPassword = "1234"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr string
	HTTPAddr string

	StorageDriver       string
	CatalogDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	RedisAddr           string
	RedisPassword       string
	RedisDB             int

	KafkaBrokers       string
	KafkaConsumerGroup string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	ProjectionRefreshInterval time.Duration

	AdminUser         string
	AdminPassword     string
	AdminPasswordHash string

	SeedCatalog bool
}

// DefaultConfig возвращает настройки для локального запуска в памяти.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		HTTPAddr:                    ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		RedisAddr:                   "localhost:6379",
		KafkaConsumerGroup:          "canteen-projections",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           10,
		OutboxRetryDelay:            500 * time.Millisecond,
		OutboxMaxPending:            10000,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		ProjectionRefreshInterval:   5 * time.Second,
		AdminUser:                   defaultAdminUser,
		AdminPassword:               defaultAdminPassword,
		SeedCatalog:                 true,
	}
}

// Validate проверяет сочетание драйверов хранилищ.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres storage driver requires dsn")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.CatalogDriver {
	case "":
	case CatalogDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("redis catalog driver requires address")
		}
	default:
		return fmt.Errorf("unsupported catalog driver %q", c.CatalogDriver)
	}
	return nil
}

// KafkaBrokerList разбирает список брокеров через запятую.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
