package grpcsvc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/service/catalog"
	"github.com/vladislavdragonenkov/canteen/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/canteen/internal/service/projection"
)

const (
	defaultListOrdersLimit = 100
	maxListOrdersLimit     = 1000
)

// AdminService реализует операции администратора. Аутентификация — в AdminAuthInterceptor.
type AdminService struct {
	canteenv1.UnimplementedAdminServiceServer

	catalog   *catalog.Service
	lifecycle *lifecycle.Service
	views     *projection.Views
	logger    *log.Entry
}

// NewAdminService конструирует сервис с зависимостями.
func NewAdminService(
	catalogSvc *catalog.Service,
	lifecycleSvc *lifecycle.Service,
	views *projection.Views,
	logger *log.Entry,
) *AdminService {
	if logger == nil {
		logger = log.New().WithField("component", "admin-service")
	}
	return &AdminService{
		catalog:   catalogSvc,
		lifecycle: lifecycleSvc,
		views:     views,
		logger:    logger,
	}
}

// UpsertProduct создаёт товар или правит существующий.
func (s *AdminService) UpsertProduct(ctx context.Context, req *canteenv1.UpsertProductRequest) (*canteenv1.UpsertProductResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	product, created, err := s.catalog.UpsertProduct(ctx, domain.ProductUpdate{
		ID:          req.ID,
		Name:        req.Name,
		PriceMinor:  req.PriceMinor,
		Description: req.Description,
		Image:       req.Image,
		Stock:       req.Stock,
	})
	if err != nil {
		return nil, toStatus(s.logger, "upsert product", err)
	}
	return &canteenv1.UpsertProductResponse{ID: product.ID, Created: created, Product: toWireProduct(product)}, nil
}

// DeleteProduct удаляет товар из каталога.
func (s *AdminService) DeleteProduct(ctx context.Context, req *canteenv1.DeleteProductRequest) (*canteenv1.DeleteProductResponse, error) {
	if req == nil || strings.TrimSpace(req.ProductID) == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	if err := s.catalog.DeleteProduct(ctx, req.ProductID); err != nil {
		return nil, toStatus(s.logger, "delete product", err)
	}
	return &canteenv1.DeleteProductResponse{}, nil
}

// AdjustStock меняет остаток на delta через атомарную дельту хранилища.
func (s *AdminService) AdjustStock(ctx context.Context, req *canteenv1.AdjustStockRequest) (*canteenv1.AdjustStockResponse, error) {
	if req == nil || strings.TrimSpace(req.ProductID) == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	stock, err := s.catalog.AdjustStock(ctx, req.ProductID, req.Delta)
	if err != nil {
		return nil, toStatus(s.logger, "adjust stock", err)
	}
	return &canteenv1.AdjustStockResponse{ProductID: req.ProductID, Stock: stock}, nil
}

// ListOrders возвращает заказы по статусу, новые первыми.
func (s *AdminService) ListOrders(ctx context.Context, req *canteenv1.ListOrdersRequest) (*canteenv1.ListOrdersResponse, error) {
	var (
		st    domain.OrderStatus
		limit = defaultListOrdersLimit
	)
	if req != nil {
		st = domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		if req.Limit > 0 {
			limit = min(req.Limit, maxListOrdersLimit)
		}
	}
	if st != "" && (!st.Valid() || !st.Visible()) {
		return nil, status.Errorf(codes.InvalidArgument, "unknown order status %q", req.Status)
	}

	orders, err := s.views.Orders(ctx, st)
	if err != nil {
		return nil, toStatus(s.logger, "list orders", err)
	}
	if len(orders) > limit {
		orders = orders[:limit]
	}

	result := make([]*canteenv1.Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, toWireOrder(o))
	}
	return &canteenv1.ListOrdersResponse{Orders: result}, nil
}

// MarkCompleted переводит заказ pending → completed.
func (s *AdminService) MarkCompleted(ctx context.Context, req *canteenv1.OrderActionRequest) (*canteenv1.OrderActionResponse, error) {
	if err := requireOrderID(req); err != nil {
		return nil, err
	}
	order, err := s.lifecycle.MarkCompleted(ctx, req.OrderID)
	if err != nil {
		return nil, s.logTransition(req.OrderID, "mark completed", err)
	}
	return &canteenv1.OrderActionResponse{Order: toWireOrder(order)}, nil
}

// CancelOrder переводит заказ pending → canceled и возвращает остатки.
func (s *AdminService) CancelOrder(ctx context.Context, req *canteenv1.OrderActionRequest) (*canteenv1.OrderActionResponse, error) {
	if err := requireOrderID(req); err != nil {
		return nil, err
	}
	order, err := s.lifecycle.Cancel(ctx, req.OrderID)
	if err != nil {
		return nil, s.logTransition(req.OrderID, "cancel order", err)
	}
	return &canteenv1.OrderActionResponse{Order: toWireOrder(order)}, nil
}

// DeleteOrder удаляет заказ без возврата остатков.
func (s *AdminService) DeleteOrder(ctx context.Context, req *canteenv1.OrderActionRequest) (*canteenv1.OrderActionResponse, error) {
	if err := requireOrderID(req); err != nil {
		return nil, err
	}
	if err := s.lifecycle.Delete(ctx, req.OrderID); err != nil {
		return nil, toStatus(s.logger, "delete order", err)
	}
	return &canteenv1.OrderActionResponse{}, nil
}

// GetStats возвращает выручку, суммы и остатки одним снимком.
func (s *AdminService) GetStats(ctx context.Context, _ *canteenv1.GetStatsRequest) (*canteenv1.Stats, error) {
	snap, err := s.views.Snapshot(ctx)
	if err != nil {
		return nil, toStatus(s.logger, "get stats", err)
	}
	return toWireStats(snap), nil
}

// UpdateSettings сохраняет настройки витрины.
func (s *AdminService) UpdateSettings(ctx context.Context, req *canteenv1.UpdateSettingsRequest) (*canteenv1.SettingsResponse, error) {
	if req == nil || req.Settings == nil {
		return nil, status.Error(codes.InvalidArgument, "settings are required")
	}
	saved, err := s.catalog.UpdateSettings(ctx, domain.Settings{
		StoreName:          req.Settings.StoreName,
		Currency:           req.Settings.Currency,
		PaymentDestination: req.Settings.PaymentDestination,
	})
	if err != nil {
		return nil, toStatus(s.logger, "update settings", err)
	}
	return &canteenv1.SettingsResponse{Settings: toWireSettings(saved)}, nil
}

func (s *AdminService) logTransition(orderID, operation string, err error) error {
	s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"order_id":  orderID,
	}).Warn("order transition rejected")
	return toStatus(s.logger, operation, err)
}

func requireOrderID(req *canteenv1.OrderActionRequest) error {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return status.Error(codes.InvalidArgument, "order_id is required")
	}
	return nil
}
