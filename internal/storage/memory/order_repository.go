package memory

import (
	"context"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// orderRepositoryInMemory — журнал заказов поверх Store.
type orderRepositoryInMemory struct {
	store *Store
	state state
	inTx  bool
}

// NewOrderRepository возвращает журнал с собственным хранилищем (для тестов и демо).
func NewOrderRepository() domain.OrderRepository {
	return NewStore().Orders()
}

func (r *orderRepositoryInMemory) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *orderRepositoryInMemory) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	defer r.lock()()

	if _, exists := r.state.order(order.ID); exists {
		return domain.ErrOrderAlreadyExists
	}
	order.Version = 0
	r.state.putOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	defer r.rlock()()

	order, ok := r.state.order(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// List возвращает заказы по фильтру, ограничивая выборку filter.Limit (если >0).
func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	defer r.rlock()()

	all := r.state.allOrders()
	result := make([]domain.Order, 0, len(all))
	for _, order := range all {
		if filter.Matches(order) {
			result = append(result, order)
		}
	}
	sortOrdersNewestFirst(result)

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Save перезаписывает статус заказа, проверяя версию (optimistic locking).
// Позиции и итог после создания не меняются.
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	defer r.lock()()

	current, ok := r.state.order(order.ID)
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	current.Status = order.Status
	current.UpdatedAt = order.UpdatedAt
	current.Version++
	r.state.putOrder(current)
	return nil
}

// Delete удаляет заказ.
func (r *orderRepositoryInMemory) Delete(_ context.Context, id string) error {
	defer r.lock()()

	if _, ok := r.state.order(id); !ok {
		return domain.ErrOrderNotFound
	}
	r.state.dropOrder(id)
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
