// Package lifecycle ведёт заказ после оформления: выдача, отмена с возвратом
// остатков и удаление администратором.
//
// Возврат остатков при отмене выполняется ровно один раз. В транзакционном
// режиме статус, возврат и событие outbox фиксируются одной транзакцией.
// Без транзакций право на возврат получает только тот, чья запись статуса
// прошла проверку версии.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
	"github.com/vladislavdragonenkov/canteen/internal/service/retry"
)

const maxSaveAttempts = 5

// Notifier получает сигнал, что каталог или журнал заказов изменились.
type Notifier interface {
	Invalidate()
}

// Service управляет статусами заказов.
type Service struct {
	tx       domain.Transactor
	products domain.ProductRepository
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository

	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
	notifier Notifier
	retry    retry.Config
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNotifier задаёт получателя сигналов об изменениях.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithRetryConfig задаёт повторы возврата остатков без транзакций.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTransactional создаёт сервис, выполняющий каждый переход в одной транзакции.
func NewTransactional(tx domain.Transactor, opts ...Option) *Service {
	s := newService(opts)
	s.tx = tx
	return s
}

// NewCompensating создаёт сервис для хранилищ без общих транзакций. outbox может быть nil.
func NewCompensating(products domain.ProductRepository, orders domain.OrderRepository, outbox domain.OutboxRepository, opts ...Option) *Service {
	s := newService(opts)
	s.products = products
	s.orders = orders
	s.outbox = outbox
	return s
}

func newService(opts []Option) *Service {
	s := &Service{
		logger: log.New().WithField("component", "order-lifecycle"),
		retry:  retry.DefaultConfig(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkCompleted переводит pending-заказ в completed. Остатки не меняются.
func (s *Service) MarkCompleted(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.transition(ctx, orderID, domain.OrderStatusCompleted, domain.EventOrderCompleted)
	if err != nil {
		return domain.Order{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordOrderCompleted()
	}
	s.logger.WithField("order_id", orderID).Info("order completed")
	s.notify()
	return order, nil
}

// Cancel переводит pending-заказ в canceled и возвращает остатки по всем позициям.
// Повторная отмена возвращает *TransitionError и остатки не трогает.
func (s *Service) Cancel(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.transition(ctx, orderID, domain.OrderStatusCanceled, domain.EventOrderCanceled)
	if err != nil {
		return domain.Order{}, err
	}
	if s.metrics != nil {
		var units int64
		for _, item := range order.Items {
			units += item.Quantity
		}
		s.metrics.RecordOrderCanceled(units)
	}
	s.logger.WithField("order_id", orderID).Info("order canceled, stock restored")
	s.notify()
	return order, nil
}

// Delete удаляет заказ из журнала. Остатки не меняются ни для какого статуса.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	var err error
	if s.tx != nil {
		err = s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
			return s.deleteWith(ctx, uow.Orders(), uow.Outbox(), orderID)
		})
	} else {
		err = s.deleteWith(ctx, s.orders, s.outbox, orderID)
	}
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderDeleted()
	}
	s.logger.WithField("order_id", orderID).Info("order deleted")
	s.notify()
	return nil
}

func (s *Service) deleteWith(ctx context.Context, orders domain.OrderRepository, outbox domain.OutboxRepository, orderID string) error {
	order, err := orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := orders.Delete(ctx, orderID); err != nil {
		return err
	}
	return s.enqueue(ctx, outbox, domain.EventOrderDeleted, order, 0)
}

func (s *Service) transition(ctx context.Context, orderID string, next domain.OrderStatus, eventType string) (domain.Order, error) {
	if s.tx != nil {
		return s.transitionInTx(ctx, orderID, next, eventType)
	}
	return s.transitionCompensating(ctx, orderID, next, eventType)
}

func (s *Service) transitionInTx(ctx context.Context, orderID string, next domain.OrderStatus, eventType string) (domain.Order, error) {
	var result domain.Order

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		order, err := uow.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Transition(next, s.now()); err != nil {
			return err
		}
		if err := uow.Orders().Save(ctx, order); err != nil {
			return err
		}
		order.Version++

		if next == domain.OrderStatusCanceled {
			ids := make([]string, len(order.Items))
			for i, item := range order.Items {
				ids[i] = item.ProductID
			}
			for _, i := range domain.StockLockOrder(ids) {
				if err := s.restoreItem(ctx, uow.Products(), order.ID, order.Items[i]); err != nil {
					return err
				}
			}
		}

		result = order
		return s.enqueue(ctx, uow.Outbox(), eventType, order, restoreSign(next))
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

func (s *Service) transitionCompensating(ctx context.Context, orderID string, next domain.OrderStatus, eventType string) (domain.Order, error) {
	var (
		order domain.Order
		err   error
	)
	for attempt := 1; ; attempt++ {
		order, err = s.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if err = order.Transition(next, s.now()); err != nil {
			return domain.Order{}, err
		}
		err = s.orders.Save(ctx, order)
		if err == nil {
			order.Version++
			break
		}
		if !domain.IsVersionConflict(err) || attempt >= maxSaveAttempts {
			return domain.Order{}, fmt.Errorf("save order %s: %w", orderID, err)
		}
		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
		}).Debug("order version conflict, retrying")
	}

	// Статус уже зафиксирован: возврат доводится до конца независимо от отмены запроса.
	commitCtx := context.WithoutCancel(ctx)
	if next == domain.OrderStatusCanceled {
		for _, item := range order.Items {
			fields := log.Fields{"order_id": order.ID, "product_id": item.ProductID, "quantity": item.Quantity}
			err := retry.Do(commitCtx, s.retry, s.logger, "restore_stock", fields, func(ctx context.Context) error {
				return s.restoreItem(ctx, s.products, order.ID, item)
			})
			if err != nil {
				if s.metrics != nil {
					s.metrics.RecordCompensation(false)
				}
				s.logger.WithFields(fields).WithError(err).Error("failed to restore stock for canceled order")
			}
		}
	}

	if s.outbox != nil {
		if err := s.enqueue(commitCtx, s.outbox, eventType, order, restoreSign(next)); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to enqueue order event")
		}
	}
	return order, nil
}

// restoreItem возвращает позицию на склад. Удалённый товар пропускается.
func (s *Service) restoreItem(ctx context.Context, products domain.ProductRepository, orderID string, item domain.OrderItem) error {
	opKey := domain.StockOperationKey(domain.StockOpRestore, orderID, item.ProductID)
	_, err := domain.ApplyStockDeltaOnce(ctx, products, opKey, item.ProductID, item.Quantity)
	if errors.Is(err, domain.ErrProductNotFound) {
		s.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
		}).Warn("product no longer exists, stock not restored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore stock for %s: %w", item.ProductID, err)
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, outbox domain.OutboxRepository, eventType string, order domain.Order, sign int64) error {
	if outbox == nil {
		return nil
	}
	msg, err := domain.NewOrderEvent(eventType, order, sign, s.now())
	if err != nil {
		return err
	}
	if _, err := outbox.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
	return nil
}

func (s *Service) notify() {
	if s.notifier != nil {
		s.notifier.Invalidate()
	}
}

func restoreSign(next domain.OrderStatus) int64 {
	if next == domain.OrderStatusCanceled {
		return 1
	}
	return 0
}
