// Package catalog — операции администратора над каталогом и настройками витрины.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// Notifier получает сигнал, что каталог изменился.
type Notifier interface {
	Invalidate()
}

// Service обслуживает каталог и настройки.
type Service struct {
	products domain.ProductRepository
	settings domain.SettingsRepository
	tx       domain.Transactor
	outbox   domain.OutboxRepository
	logger   *log.Entry
	notifier Notifier
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

// WithTransactor включает запись события об изменении остатка в одной транзакции с ним.
func WithTransactor(tx domain.Transactor) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithOutbox задаёт outbox для событий без транзакции.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithNotifier задаёт получателя сигналов об изменениях.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
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

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, settings domain.SettingsRepository, opts ...Option) *Service {
	s := &Service{
		products: products,
		settings: settings,
		logger:   log.New().WithField("component", "catalog"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListProducts возвращает товары, название которых содержит query.
func (s *Service) ListProducts(ctx context.Context, query string) ([]domain.Product, error) {
	return s.products.List(ctx, query)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.products.Get(ctx, id)
}

// UpsertProduct создаёт товар или правит существующий и возвращает итоговую запись.
// Пустой ID означает новый товар. Абсолютный остаток, если задан, пишется атомарно
// внутри хранилища; для нового товара отсутствие остатка означает ноль.
func (s *Service) UpsertProduct(ctx context.Context, update domain.ProductUpdate) (domain.Product, bool, error) {
	update.Name = strings.TrimSpace(update.Name)
	if err := update.Validate(); err != nil {
		return domain.Product{}, false, err
	}

	update.ID = strings.TrimSpace(update.ID)
	if update.ID != "" {
		product, err := s.products.Update(ctx, update)
		if err == nil {
			s.logger.WithField("product_id", product.ID).Info("product updated")
			s.notify()
			return product, false, nil
		}
		if !errors.Is(err, domain.ErrProductNotFound) {
			return domain.Product{}, false, err
		}
	} else {
		update.ID = uuid.NewString()
	}

	product := update.Apply(domain.Product{ID: update.ID, CreatedAt: s.now()}, s.now())
	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, false, err
	}
	s.logger.WithField("product_id", product.ID).Info("product created")
	s.notify()
	return product, true, nil
}

// DeleteProduct удаляет товар. Заказы с ним сохраняют снимок названия и цены.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	s.notify()
	return nil
}

// AdjustStock меняет остаток на delta тем же атомарным путём, что и оформление заказа.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int64) (int64, error) {
	if delta == 0 {
		product, err := s.products.Get(ctx, id)
		return product.Stock, err
	}

	var stock int64
	if s.tx != nil {
		err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
			var err error
			stock, err = uow.Products().ApplyStockDelta(ctx, id, delta)
			if err != nil {
				return err
			}
			return s.enqueueStockChanged(ctx, uow.Outbox(), id, delta, stock)
		})
		if err != nil {
			return 0, err
		}
	} else {
		var err error
		stock, err = s.products.ApplyStockDelta(ctx, id, delta)
		if err != nil {
			return stock, err
		}
		if s.outbox != nil {
			if err := s.enqueueStockChanged(ctx, s.outbox, id, delta, stock); err != nil {
				s.logger.WithError(err).WithField("product_id", id).Error("failed to enqueue stock event")
			}
		}
	}

	s.logger.WithFields(log.Fields{
		"product_id": id,
		"delta":      delta,
		"stock":      stock,
	}).Info("stock adjusted")
	s.notify()
	return stock, nil
}

// GetSettings возвращает настройки витрины.
func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.settings.Get(ctx)
}

// UpdateSettings проверяет и сохраняет настройки витрины.
func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, err
	}
	settings.UpdatedAt = s.now()
	if err := s.settings.Save(ctx, settings); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

// Seed добавляет товары, которых ещё нет в каталоге, и возвращает число добавленных.
func (s *Service) Seed(ctx context.Context, products []domain.Product) (int, error) {
	created := 0
	for _, p := range products {
		err := s.products.Create(ctx, p)
		if errors.Is(err, domain.ErrProductAlreadyExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed product %s: %w", p.ID, err)
		}
		created++
	}
	if created > 0 {
		s.logger.WithField("created", created).Info("catalog seeded")
		s.notify()
	}
	return created, nil
}

// DefaultCatalog — стартовый ассортимент витрины, цены в сентаво.
func DefaultCatalog() []domain.Product {
	return []domain.Product{
		{ID: "p1", Name: "Pandesal (3pcs)", PriceMinor: 1500, Stock: 30, Description: "Freshly baked bread rolls"},
		{ID: "p2", Name: "Iced Tea (12 oz)", PriceMinor: 2500, Stock: 20, Description: "House-brewed, lightly sweetened"},
		{ID: "p3", Name: "Beef Burger", PriceMinor: 6500, Stock: 10, Description: "Grilled beef patty with cheese"},
		{ID: "p4", Name: "Siopao", PriceMinor: 3000, Stock: 15, Description: "Steamed bun with asado filling"},
	}
}

func (s *Service) enqueueStockChanged(ctx context.Context, outbox domain.OutboxRepository, id string, delta, stock int64) error {
	msg, err := domain.NewStockChangedEvent(id, delta, stock, s.now())
	if err != nil {
		return err
	}
	if _, err := outbox.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.EventType, err)
	}
	return nil
}

func (s *Service) notify() {
	if s.notifier != nil {
		s.notifier.Invalidate()
	}
}
