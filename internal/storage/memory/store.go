package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// Store — in-memory каталог и журнал заказов под одним мьютексом.
// WithinTx держит мьютекс на всё время fn и применяет изменения только при успехе,
// поэтому оформление и отмена заказа видны другим только целиком.
type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	outbox   *outboxRepositoryInMemory
	now      func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		outbox:   NewOutboxRepository(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Products возвращает репозиторий каталога вне транзакции.
func (s *Store) Products() domain.ProductRepository {
	return &productRepositoryInMemory{store: s, state: s}
}

// Orders возвращает журнал заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepositoryInMemory{store: s, state: s}
}

// Outbox возвращает outbox хранилища.
func (s *Store) Outbox() domain.OutboxRepository {
	return s.outbox
}

// WithinTx выполняет fn атомарно относительно всех остальных операций хранилища.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTxState(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit(ctx)
	return nil
}

// state — доступ к данным без блокировок; вызывающий держит s.mu или работает в транзакции.
type state interface {
	product(id string) (domain.Product, bool)
	putProduct(p domain.Product)
	dropProduct(id string)
	allProducts() []domain.Product
	order(id string) (domain.Order, bool)
	putOrder(o domain.Order)
	dropOrder(id string)
	allOrders() []domain.Order
}

func (s *Store) product(id string) (domain.Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) putProduct(p domain.Product) { s.products[p.ID] = p }

func (s *Store) dropProduct(id string) { delete(s.products, id) }

func (s *Store) allProducts() []domain.Product {
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	return result
}

func (s *Store) order(id string) (domain.Order, bool) {
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return o.Clone(), true
}

func (s *Store) putOrder(o domain.Order) { s.orders[o.ID] = o.Clone() }

func (s *Store) dropOrder(id string) { delete(s.orders, id) }

func (s *Store) allOrders() []domain.Order {
	result := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		result = append(result, o.Clone())
	}
	return result
}

// txState накапливает изменения транзакции поверх базового состояния.
// Значение nil в картах означает удаление записи.
type txState struct {
	base     *Store
	products map[string]*domain.Product
	orders   map[string]*domain.Order
	events   []domain.OutboxMessage
}

func newTxState(base *Store) *txState {
	return &txState{
		base:     base,
		products: make(map[string]*domain.Product),
		orders:   make(map[string]*domain.Order),
	}
}

func (t *txState) Products() domain.ProductRepository {
	return &productRepositoryInMemory{store: t.base, state: t, inTx: true}
}

func (t *txState) Orders() domain.OrderRepository {
	return &orderRepositoryInMemory{store: t.base, state: t, inTx: true}
}

func (t *txState) Outbox() domain.OutboxRepository {
	return &txOutbox{tx: t}
}

func (t *txState) product(id string) (domain.Product, bool) {
	if p, staged := t.products[id]; staged {
		if p == nil {
			return domain.Product{}, false
		}
		return *p, true
	}
	return t.base.product(id)
}

func (t *txState) putProduct(p domain.Product) { t.products[p.ID] = &p }

func (t *txState) dropProduct(id string) { t.products[id] = nil }

func (t *txState) allProducts() []domain.Product {
	seen := make(map[string]struct{}, len(t.products))
	var result []domain.Product
	for id, p := range t.products {
		seen[id] = struct{}{}
		if p != nil {
			result = append(result, *p)
		}
	}
	for _, p := range t.base.allProducts() {
		if _, ok := seen[p.ID]; !ok {
			result = append(result, p)
		}
	}
	return result
}

func (t *txState) order(id string) (domain.Order, bool) {
	if o, staged := t.orders[id]; staged {
		if o == nil {
			return domain.Order{}, false
		}
		return o.Clone(), true
	}
	return t.base.order(id)
}

func (t *txState) putOrder(o domain.Order) {
	clone := o.Clone()
	t.orders[o.ID] = &clone
}

func (t *txState) dropOrder(id string) { t.orders[id] = nil }

func (t *txState) allOrders() []domain.Order {
	seen := make(map[string]struct{}, len(t.orders))
	var result []domain.Order
	for id, o := range t.orders {
		seen[id] = struct{}{}
		if o != nil {
			result = append(result, o.Clone())
		}
	}
	for _, o := range t.base.allOrders() {
		if _, ok := seen[o.ID]; !ok {
			result = append(result, o)
		}
	}
	return result
}

func (t *txState) commit(ctx context.Context) {
	for id, p := range t.products {
		if p == nil {
			t.base.dropProduct(id)
			continue
		}
		t.base.putProduct(*p)
	}
	for id, o := range t.orders {
		if o == nil {
			t.base.dropOrder(id)
			continue
		}
		t.base.putOrder(*o)
	}
	for _, msg := range t.events {
		_, _ = t.base.outbox.Enqueue(ctx, msg)
	}
}

// txOutbox откладывает события до фиксации транзакции.
type txOutbox struct {
	tx *txState
}

func (o *txOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = newOutboxID()
	}
	o.tx.events = append(o.tx.events, msg)
	return msg, nil
}

func (o *txOutbox) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	return o.tx.base.outbox.PullPending(ctx, limit)
}

func (o *txOutbox) Stats(ctx context.Context) (domain.OutboxStats, error) {
	return o.tx.base.outbox.Stats(ctx)
}

func (o *txOutbox) MarkSent(ctx context.Context, id string) error {
	return o.tx.base.outbox.MarkSent(ctx, id)
}

func (o *txOutbox) MarkFailed(ctx context.Context, id string) error {
	return o.tx.base.outbox.MarkFailed(ctx, id)
}

// sortOrdersNewestFirst упорядочивает заказы: новые первыми, при равенстве — по ID.
func sortOrdersNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

var (
	_ domain.Transactor       = (*Store)(nil)
	_ domain.UnitOfWork       = (*Store)(nil)
	_ domain.UnitOfWork       = (*txState)(nil)
	_ domain.OutboxRepository = (*txOutbox)(nil)
)
