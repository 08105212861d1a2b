package domain

import (
	"context"
	"time"
)

// ProductRepository — хранилище каталога.
type ProductRepository interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// List возвращает товары, название которых содержит query (без учёта регистра).
	List(ctx context.Context, query string) ([]Product, error)
	// Create добавляет товар; ErrProductAlreadyExists при совпадении ID.
	Create(ctx context.Context, product Product) error
	// Update применяет правку администратора и возвращает итоговую запись.
	Update(ctx context.Context, update ProductUpdate) (Product, error)
	// Delete удаляет товар или возвращает ErrProductNotFound.
	Delete(ctx context.Context, id string) error
	// ApplyStockDelta атомарно меняет остаток на delta и возвращает новое значение.
	// Если остаток ушёл бы в минус, возвращает *InsufficientStockError и ничего не меняет.
	ApplyStockDelta(ctx context.Context, id string, delta int64) (int64, error)
}

// OrderRepository — журнал заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ; ErrOrderAlreadyExists при совпадении ID.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы по фильтру, новые первыми.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Save сохраняет статус заказа с учётом optimistic locking по Version.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ без влияния на остатки.
	Delete(ctx context.Context, id string) error
}

// SettingsRepository хранит настройки витрины.
type SettingsRepository interface {
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, settings Settings) error
}

// UnitOfWork даёт доступ к репозиториям внутри одной транзакции.
type UnitOfWork interface {
	Products() ProductRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
}

// Transactor выполняет fn как одну неделимую единицу работы:
// либо применяются все изменения, либо ни одно.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// CheckoutKeyRepository хранит ключи идемпотентности оформления заказа.
type CheckoutKeyRepository interface {
	// Claim занимает ключ в статусе pending. Если ключ уже занят, возвращает
	// существующую запись и ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	Claim(ctx context.Context, claim CheckoutKey) (CheckoutKey, error)
	Get(ctx context.Context, key string) (CheckoutKey, error)
	MarkPlaced(ctx context.Context, key, orderID string) error
	MarkRejected(ctx context.Context, key string, code int, reason string) error
	// Release удаляет ключ в статусе pending после временного сбоя.
	Release(ctx context.Context, key string) error
	// DeleteExpired удаляет до limit просроченных ключей области scope; пустая scope — все.
	DeleteExpired(ctx context.Context, scope string, before time.Time, limit int) (int, error)
}
