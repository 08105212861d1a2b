// Package grpcsvc реализует gRPC-сервисы витрины и администратора поверх доменных сервисов.
package grpcsvc

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/service/catalog"
	"github.com/vladislavdragonenkov/canteen/internal/service/checkout"
)

// StorefrontService реализует операции покупателя.
type StorefrontService struct {
	canteenv1.UnimplementedStorefrontServiceServer

	catalog  *catalog.Service
	checkout *checkout.Coordinator
	orders   domain.OrderRepository
	guard    *checkoutGuard
	logger   *log.Entry
}

// NewStorefrontService конструирует сервис с зависимостями.
// checkoutKeys == nil отключает идемпотентность Checkout.
func NewStorefrontService(
	catalogSvc *catalog.Service,
	coordinator *checkout.Coordinator,
	orders domain.OrderRepository,
	checkoutKeys domain.CheckoutKeyRepository,
	keyTTL time.Duration,
	logger *log.Entry,
) *StorefrontService {
	if logger == nil {
		logger = log.New().WithField("component", "storefront-service")
	}
	return &StorefrontService{
		catalog:  catalogSvc,
		checkout: coordinator,
		orders:   orders,
		guard:    newCheckoutGuard(checkoutKeys, orders, keyTTL, logger),
		logger:   logger,
	}
}

// ListProducts возвращает каталог с фильтром по названию.
func (s *StorefrontService) ListProducts(ctx context.Context, req *canteenv1.ListProductsRequest) (*canteenv1.ListProductsResponse, error) {
	var query string
	if req != nil {
		query = req.Query
	}
	products, err := s.catalog.ListProducts(ctx, query)
	if err != nil {
		return nil, toStatus(s.logger, "list products", err)
	}

	result := make([]*canteenv1.Product, 0, len(products))
	for _, p := range products {
		result = append(result, toWireProduct(p))
	}
	return &canteenv1.ListProductsResponse{Products: result}, nil
}

// Checkout оформляет заказ. Повтор с тем же idempotency-key возвращает заказ,
// созданный первым вызовом, в его текущем состоянии.
func (s *StorefrontService) Checkout(ctx context.Context, req *canteenv1.CheckoutRequest) (*canteenv1.CheckoutResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return s.guard.place(ctx, req, func(ctx context.Context) (*canteenv1.CheckoutResponse, error) {
		return s.checkoutInternal(ctx, req)
	})
}

func (s *StorefrontService) checkoutInternal(ctx context.Context, req *canteenv1.CheckoutRequest) (*canteenv1.CheckoutResponse, error) {
	order, err := s.checkout.Checkout(ctx, checkout.Request{
		Buyer: fromWireBuyer(req.Buyer),
		Lines: fromWireLines(req.Lines),
	})
	if err != nil {
		s.logger.WithError(err).WithField("lines", len(req.Lines)).Info("checkout rejected")
		return nil, toStatus(s.logger, "checkout", err)
	}
	return &canteenv1.CheckoutResponse{Order: toWireOrder(order)}, nil
}

// GetOrder возвращает заказ по идентификатору. Провизорные заказы не видны.
func (s *StorefrontService) GetOrder(ctx context.Context, req *canteenv1.GetOrderRequest) (*canteenv1.GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(s.logger, "get order", err)
	}
	if !order.Status.Visible() {
		return nil, status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
	}
	return &canteenv1.GetOrderResponse{Order: toWireOrder(order)}, nil
}

// GetSettings возвращает настройки витрины.
func (s *StorefrontService) GetSettings(ctx context.Context, _ *canteenv1.GetSettingsRequest) (*canteenv1.SettingsResponse, error) {
	settings, err := s.catalog.GetSettings(ctx)
	if err != nil {
		return nil, toStatus(s.logger, "get settings", err)
	}
	return &canteenv1.SettingsResponse{Settings: toWireSettings(settings)}, nil
}
