package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/canteen/internal/health"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
	"github.com/vladislavdragonenkov/canteen/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/canteen/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные конфигурацией.
// tx == nil означает, что каталог живёт отдельно и оформление идёт компенсациями.
type runtimeDependencies struct {
	products    domain.ProductRepository
	orders      domain.OrderRepository
	outbox      domain.OutboxRepository
	settings    domain.SettingsRepository
	idempotency domain.CheckoutKeyRepository
	tx          domain.Transactor

	storageChecker healthcheck.Checker
	catalogChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) transactional() bool {
	return d.tx != nil
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies открывает хранилища. При ошибке уже открытые закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		deps *runtimeDependencies
		err  error
	)
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		deps, err = initPostgres(ctx, cfg, logger)
	default:
		deps = initMemory()
	}
	if err != nil {
		return nil, err
	}

	if cfg.CatalogDriver == CatalogDriverRedis {
		if err := attachRedisCatalog(ctx, cfg, deps, logger); err != nil {
			_ = deps.close()
			return nil, err
		}
	}
	return deps, nil
}

func initMemory() *runtimeDependencies {
	store := memory.NewStore()
	return &runtimeDependencies{
		products:    store.Products(),
		orders:      store.Orders(),
		outbox:      store.Outbox(),
		settings:    memory.NewSettingsRepository(),
		idempotency: memory.NewCheckoutKeyRepository(),
		tx:          store,
	}
}

func initPostgres(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres storage: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres schema is up to date")
	}

	return &runtimeDependencies{
		products:       store.Products(),
		orders:         store.Orders(),
		outbox:         store.Outbox(),
		settings:       store.Settings(),
		idempotency:    store.CheckoutKeys(),
		tx:             store,
		storageChecker: healthcheck.NewChecker("postgres", store.Ping),
		closeFn:        store.Close,
	}, nil
}

// attachRedisCatalog подменяет каталог на Redis. Заказы остаются в основном хранилище,
// поэтому общей транзакции больше нет.
func attachRedisCatalog(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	catalogRepo := redisstore.NewProductRepository(client, redisstore.DefaultKeyPrefix)
	if err := catalogRepo.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis catalog: %w", err)
	}

	deps.products = catalogRepo
	deps.tx = nil
	deps.catalogChecker = healthcheck.NewChecker("redis", catalogRepo.Ping)

	previous := deps.closeFn
	deps.closeFn = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		if previous != nil {
			if err := previous(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("redis catalog attached, checkout runs in compensating mode")
	return nil
}
