// Package checkout превращает корзину в заказ: проверяет предусловия,
// списывает остатки, фиксирует цены и создаёт заказ в статусе pending.
//
// Coordinator работает в одном из двух режимов. Транзакционный выполняет всё
// внутри Transactor.WithinTx. Компенсирующий нужен хранилищам без транзакций
// между ключами (Redis): заказ создаётся провизорным, остатки списываются
// по одной позиции, при отказе списанное возвращается, а заказ становится
// видимым только последним шагом.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/cart"
	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
	"github.com/vladislavdragonenkov/canteen/internal/service/retry"
)

// Notifier получает сигнал, что каталог или журнал заказов изменились.
type Notifier interface {
	Invalidate()
}

// Request — данные для оформления заказа.
type Request struct {
	Buyer domain.Buyer
	Lines []domain.CartLine
}

// Coordinator оформляет заказы.
type Coordinator struct {
	tx       domain.Transactor
	products domain.ProductRepository
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository

	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
	notifier Notifier
	retry    retry.Config
	now      func() time.Time
	newID    func() string
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics включает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithNotifier задаёт получателя сигналов об изменениях.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithRetryConfig задаёт повторы отката в компенсирующем режиме.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Coordinator) {
		c.retry = cfg
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// NewTransactional создаёт координатор, выполняющий оформление в одной транзакции.
func NewTransactional(tx domain.Transactor, opts ...Option) *Coordinator {
	c := newCoordinator(opts)
	c.tx = tx
	return c
}

// NewCompensating создаёт координатор для хранилищ без общих транзакций.
// outbox может быть nil.
func NewCompensating(products domain.ProductRepository, orders domain.OrderRepository, outbox domain.OutboxRepository, opts ...Option) *Coordinator {
	c := newCoordinator(opts)
	c.products = products
	c.orders = orders
	c.outbox = outbox
	return c
}

func newCoordinator(opts []Option) *Coordinator {
	c := &Coordinator{
		logger: log.New().WithField("component", "checkout"),
		retry:  retry.DefaultConfig(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transactional сообщает режим работы координатора.
func (c *Coordinator) Transactional() bool {
	return c.tx != nil
}

// Checkout оформляет заказ. Предусловия проверяются в порядке:
// данные покупателя, непустая корзина, достаточность остатков по каждой позиции.
// При любой ошибке остатки и журнал заказов остаются без изменений.
func (c *Coordinator) Checkout(ctx context.Context, req Request) (domain.Order, error) {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.RecordCheckoutStarted()
	}

	order, err := c.checkout(ctx, req)

	if c.metrics != nil {
		c.metrics.RecordCheckoutFinished(checkoutResult(err), time.Since(start))
	}
	if err != nil {
		return domain.Order{}, err
	}

	c.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"items":       len(order.Items),
		"total_minor": order.TotalMinor,
	}).Info("order placed")
	if c.notifier != nil {
		c.notifier.Invalidate()
	}
	return order, nil
}

// CheckoutCart оформляет содержимое корзины и очищает её только при успехе.
func (c *Coordinator) CheckoutCart(ctx context.Context, buyer domain.Buyer, shoppingCart *cart.Cart) (domain.Order, error) {
	order, err := c.Checkout(ctx, Request{Buyer: buyer, Lines: shoppingCart.Lines()})
	if err != nil {
		return domain.Order{}, err
	}
	shoppingCart.Clear()
	return order, nil
}

func (c *Coordinator) checkout(ctx context.Context, req Request) (domain.Order, error) {
	buyer := req.Buyer.Normalize()
	if err := buyer.Validate(); err != nil {
		return domain.Order{}, err
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, domain.ErrEmptyCart
	}
	lines, err := domain.MergeLines(req.Lines)
	if err != nil {
		return domain.Order{}, err
	}

	if c.tx != nil {
		return c.checkoutInTx(ctx, buyer, lines)
	}
	return c.checkoutCompensating(ctx, buyer, lines)
}

func (c *Coordinator) checkoutInTx(ctx context.Context, buyer domain.Buyer, lines []domain.CartLine) (domain.Order, error) {
	var placed domain.Order

	err := c.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		stepStart := time.Now()
		ids := make([]string, len(lines))
		for i, line := range lines {
			ids[i] = line.ProductID
		}
		// Позиции заказа остаются в порядке корзины, списания идут в порядке блокировок.
		items := make([]domain.OrderItem, len(lines))
		for _, i := range domain.StockLockOrder(ids) {
			line := lines[i]
			// Списание раньше чтения: после условного UPDATE строка товара заблокирована,
			// и снимок цены не может разойтись с остатком.
			if _, err := uow.Products().ApplyStockDelta(ctx, line.ProductID, -line.Quantity); err != nil {
				return err
			}
			product, err := uow.Products().Get(ctx, line.ProductID)
			if err != nil {
				return err
			}
			items[i] = snapshotItem(product, line.Quantity)
		}
		c.recordStep("reserve_stock", stepStart)

		order := c.newOrder(buyer, items, domain.OrderStatusPending)
		if err := uow.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if err := c.enqueue(ctx, uow.Outbox(), order, -1); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return placed, nil
}

func (c *Coordinator) checkoutCompensating(ctx context.Context, buyer domain.Buyer, lines []domain.CartLine) (domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, err := c.products.Get(ctx, line.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		items = append(items, snapshotItem(product, line.Quantity))
	}

	// Провизорный заказ скрыт из списков; он остаётся следом, если процесс упадёт посреди списаний.
	order := c.newOrder(buyer, items, domain.OrderStatusProvisional)
	if err := c.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create provisional order: %w", err)
	}

	// Дальше отмена запроса клиентом не должна оставлять половину списаний.
	commitCtx := context.WithoutCancel(ctx)

	stepStart := time.Now()
	applied := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if _, err := c.products.ApplyStockDelta(commitCtx, line.ProductID, -line.Quantity); err != nil {
			c.abort(commitCtx, order, applied)
			return domain.Order{}, err
		}
		applied = append(applied, line)
	}
	c.recordStep("reserve_stock", stepStart)

	if err := order.Transition(domain.OrderStatusPending, c.now()); err != nil {
		c.abort(commitCtx, order, applied)
		return domain.Order{}, err
	}
	if err := c.orders.Save(commitCtx, order); err != nil {
		c.abort(commitCtx, order, applied)
		return domain.Order{}, fmt.Errorf("publish order: %w", err)
	}
	order.Version++

	if c.outbox != nil {
		if err := c.enqueue(commitCtx, c.outbox, order, -1); err != nil {
			c.logger.WithError(err).WithField("order_id", order.ID).Error("failed to enqueue order event")
		}
	}
	return order, nil
}

// abort возвращает списанные остатки и удаляет провизорный заказ.
func (c *Coordinator) abort(ctx context.Context, order domain.Order, applied []domain.CartLine) {
	ok := true
	for _, line := range applied {
		fields := log.Fields{"order_id": order.ID, "product_id": line.ProductID, "quantity": line.Quantity}
		opKey := domain.StockOperationKey(domain.StockOpCompensate, order.ID, line.ProductID)
		err := retry.Do(ctx, c.retry, c.logger, "compensate_stock", fields, func(ctx context.Context) error {
			_, err := domain.ApplyStockDeltaOnce(ctx, c.products, opKey, line.ProductID, line.Quantity)
			return err
		})
		if err != nil {
			ok = false
			c.logger.WithFields(fields).WithError(err).Error("failed to compensate stock")
		}
	}
	if len(applied) > 0 && c.metrics != nil {
		c.metrics.RecordCompensation(ok)
	}

	if err := c.orders.Delete(ctx, order.ID); err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to drop provisional order")
	}
}

func (c *Coordinator) newOrder(buyer domain.Buyer, items []domain.OrderItem, status domain.OrderStatus) domain.Order {
	now := c.now()
	return domain.Order{
		ID:         c.newID(),
		Buyer:      buyer,
		Items:      items,
		TotalMinor: domain.ItemsTotal(items),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (c *Coordinator) enqueue(ctx context.Context, outbox domain.OutboxRepository, order domain.Order, sign int64) error {
	msg, err := domain.NewOrderEvent(domain.EventOrderPlaced, order, sign, c.now())
	if err != nil {
		return err
	}
	if _, err := outbox.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.EventType, err)
	}
	if c.metrics != nil {
		c.metrics.RecordOutboxEvent()
	}
	return nil
}

func (c *Coordinator) recordStep(step string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordStepDuration(step, time.Since(start))
	}
}

func snapshotItem(product domain.Product, quantity int64) domain.OrderItem {
	return domain.OrderItem{
		ProductID:      product.ID,
		Name:           product.Name,
		UnitPriceMinor: product.PriceMinor,
		Quantity:       quantity,
	}
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return metrics.CheckoutResultSuccess
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.CheckoutResultInsufficientStock
	case errors.Is(err, domain.ErrMissingBuyerInfo),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrQuantityInvalid),
		errors.Is(err, domain.ErrQuantityTooLarge),
		errors.Is(err, domain.ErrProductNotFound):
		return metrics.CheckoutResultRejected
	default:
		return metrics.CheckoutResultError
	}
}
