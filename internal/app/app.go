package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
	healthcheck "github.com/vladislavdragonenkov/canteen/internal/health"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
	"github.com/vladislavdragonenkov/canteen/internal/service/auth"
	"github.com/vladislavdragonenkov/canteen/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/canteen/internal/service/grpc"
	httpapi "github.com/vladislavdragonenkov/canteen/internal/service/http"
	"github.com/vladislavdragonenkov/canteen/internal/service/idempotency"
	"github.com/vladislavdragonenkov/canteen/internal/service/outbox"
	"github.com/vladislavdragonenkov/canteen/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает хранилища, доменные сервисы, gRPC и HTTP и блокируется до отмены ctx.
// При отмене возвращает ctx.Err() после остановки всех фоновых задач.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	checkoutMetrics := metrics.NewCheckoutMetrics()
	core := newCoreServices(cfg, deps, checkoutMetrics, logger)

	if cfg.SeedCatalog {
		if err := seedCatalog(ctx, core.catalog, logger); err != nil {
			return err
		}
	}

	authenticator, err := auth.New(cfg.AdminUser, cfg.AdminPassword, cfg.AdminPasswordHash)
	if err != nil {
		return fmt.Errorf("init admin credentials: %w", err)
	}
	if cfg.AdminPasswordHash == "" && cfg.AdminPassword == defaultAdminPassword {
		logger.Warn("admin password is the built-in default, set CANTEEN_ADMIN_PASSWORD or CANTEEN_ADMIN_PASSWORD_HASH")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := core.hub.Start(runCtx); err != nil {
		return fmt.Errorf("start projection hub: %w", err)
	}
	defer core.hub.Stop()

	producer, err := initKafkaProducer(cfg.KafkaBrokerList(), logger)
	if err != nil {
		producer = nil
	}
	defer closeKafkaProducer(producer, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if deps.catalogChecker != nil {
		healthHandler.RegisterChecker("catalog", deps.catalogChecker)
	}

	var workers sync.WaitGroup
	defer func() {
		cancel()
		workers.Wait()
	}()

	publisher, dlq := outboxPublishers(producer, logger)
	outboxOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		outbox.WithMaxPending(cfg.OutboxMaxPending),
	}
	if dlq != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(dlq))
	}
	outboxWorker := outbox.NewWorker(deps.outbox, publisher, outboxOpts...)
	healthHandler.RegisterChecker("outbox", healthcheck.NewDegradedChecker("outbox", outboxWorker.Check))
	startWorker(runCtx, &workers, outboxWorker.Run)

	keySweeper := idempotency.NewSweeper(deps.idempotency, idempotency.Config{
		Scope:     canteenv1.StorefrontService_Checkout_FullMethodName,
		Interval:  cfg.IdempotencyCleanupInterval,
		BatchSize: cfg.IdempotencyCleanupBatchSize,
		Logger:    logger.WithField("component", "checkout-key-sweeper"),
	})
	healthHandler.RegisterChecker("checkout_keys", healthcheck.NewDegradedChecker("checkout_keys", keySweeper.Check))
	startWorker(runCtx, &workers, keySweeper.Run)

	consumer, err := startProjectionConsumer(runCtx, cfg, producer, core.hub, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka projection consumer is disabled")
	}
	defer stopKafkaConsumer(consumer, logger)

	grpcServer, grpcHealth := newGRPCServer(cfg, deps, core, authenticator, logger)

	httpServer := httpapi.NewServer(httpapi.Config{
		Catalog: core.catalog,
		Views:   core.views,
		Hub:     core.hub,
		Health:  healthHandler,
		Auth:    authenticator,
		Logger:  logger.WithField("component", "http"),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s (metrics, healthz, api/v1)", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(httpSrv, logger)
	cancel()
	core.hub.Stop()
	waitStreams(httpServer, logger)
	return runErr
}

func seedCatalog(ctx context.Context, svc *catalog.Service, logger *log.Entry) error {
	created, err := svc.Seed(ctx, catalog.DefaultCatalog())
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	if created > 0 {
		logger.WithField("products", created).Info("default catalog seeded")
	}
	return nil
}

func startWorker(ctx context.Context, wg *sync.WaitGroup, run func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(ctx)
	}()
}

// newGRPCServer регистрирует витрину и админку, метрики, reflection и gRPC health.
func newGRPCServer(
	cfg Config,
	deps *runtimeDependencies,
	core *coreServices,
	verifier grpcsvc.CredentialVerifier,
	logger *log.Entry,
) (*grpc.Server, *health.Server) {
	grpcMetrics := registerGRPCMetrics(logger)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcsvc.AdminAuthInterceptor(verifier, logger.WithField("component", "grpc-auth")),
	))

	canteenv1.RegisterStorefrontServiceServer(grpcServer, grpcsvc.NewStorefrontService(
		core.catalog,
		core.checkout,
		deps.orders,
		deps.idempotency,
		cfg.IdempotencyTTL,
		logger.WithField("layer", "grpc").WithField("service", "storefront"),
	))
	canteenv1.RegisterAdminServiceServer(grpcServer, grpcsvc.NewAdminService(
		core.catalog,
		core.lifecycle,
		core.views,
		logger.WithField("layer", "grpc").WithField("service", "admin"),
	))
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return grpcServer, healthServer
}

// registerGRPCMetrics переиспользует уже зарегистрированный коллектор при повторном запуске.
func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// waitStreams ждёт закрытия websocket-потоков после остановки Hub.
func waitStreams(srv *httpapi.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Wait(ctx); err != nil {
		logger.WithError(err).Warn("projection streams did not finish in time")
	}
}
