package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/metrics"
	"github.com/vladislavdragonenkov/canteen/internal/service/catalog"
	"github.com/vladislavdragonenkov/canteen/internal/service/checkout"
	"github.com/vladislavdragonenkov/canteen/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/canteen/internal/service/projection"
)

// coreServices — доменные сервисы поверх выбранных хранилищ.
type coreServices struct {
	catalog   *catalog.Service
	checkout  *checkout.Coordinator
	lifecycle *lifecycle.Service
	views     *projection.Views
	hub       *projection.Hub
}

// newCoreServices выбирает транзакционный или компенсирующий режим по наличию Transactor.
func newCoreServices(cfg Config, deps *runtimeDependencies, m *metrics.CheckoutMetrics, logger *log.Entry) *coreServices {
	views := projection.NewViews(deps.products, deps.orders)
	hub := projection.NewHub(views,
		projection.WithRefreshInterval(cfg.ProjectionRefreshInterval),
		projection.WithLogger(logger.WithField("component", "projection-hub")),
	)

	catalogOpts := []catalog.Option{
		catalog.WithLogger(logger.WithField("component", "catalog")),
		catalog.WithOutbox(deps.outbox),
		catalog.WithNotifier(hub),
	}
	checkoutOpts := []checkout.Option{
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(m),
		checkout.WithNotifier(hub),
	}
	lifecycleOpts := []lifecycle.Option{
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(m),
		lifecycle.WithNotifier(hub),
	}

	services := &coreServices{views: views, hub: hub}
	if deps.transactional() {
		catalogOpts = append(catalogOpts, catalog.WithTransactor(deps.tx))
		services.checkout = checkout.NewTransactional(deps.tx, checkoutOpts...)
		services.lifecycle = lifecycle.NewTransactional(deps.tx, lifecycleOpts...)
	} else {
		services.checkout = checkout.NewCompensating(deps.products, deps.orders, deps.outbox, checkoutOpts...)
		services.lifecycle = lifecycle.NewCompensating(deps.products, deps.orders, deps.outbox, lifecycleOpts...)
	}
	services.catalog = catalog.NewService(deps.products, deps.settings, catalogOpts...)
	return services
}
