package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// productRepositoryInMemory — каталог поверх Store.
type productRepositoryInMemory struct {
	store *Store
	state state
	inTx  bool
}

// NewProductRepository возвращает каталог с собственным хранилищем (для тестов и демо).
func NewProductRepository() domain.ProductRepository {
	return NewStore().Products()
}

func (r *productRepositoryInMemory) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *productRepositoryInMemory) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	defer r.rlock()()

	product, ok := r.state.product(id)
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// List фильтрует по подстроке названия и сортирует по названию.
func (r *productRepositoryInMemory) List(_ context.Context, query string) ([]domain.Product, error) {
	defer r.rlock()()

	all := r.state.allProducts()
	result := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if p.MatchesQuery(query) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Create добавляет товар, если ID ещё не занят.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	defer r.lock()()

	if _, exists := r.state.product(product.ID); exists {
		return domain.ErrProductAlreadyExists
	}
	now := r.store.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	r.state.putProduct(product)
	return nil
}

// Update применяет правку администратора под тем же мьютексом, что и ApplyStockDelta.
func (r *productRepositoryInMemory) Update(_ context.Context, update domain.ProductUpdate) (domain.Product, error) {
	if err := update.Validate(); err != nil {
		return domain.Product{}, err
	}
	defer r.lock()()

	current, ok := r.state.product(update.ID)
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	updated := update.Apply(current, r.store.now())
	r.state.putProduct(updated)
	return updated, nil
}

// Delete удаляет товар.
func (r *productRepositoryInMemory) Delete(_ context.Context, id string) error {
	defer r.lock()()

	if _, ok := r.state.product(id); !ok {
		return domain.ErrProductNotFound
	}
	r.state.dropProduct(id)
	return nil
}

// ApplyStockDelta читает, проверяет и записывает остаток под одной блокировкой.
func (r *productRepositoryInMemory) ApplyStockDelta(_ context.Context, id string, delta int64) (int64, error) {
	defer r.lock()()

	product, ok := r.state.product(id)
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if err := domain.CheckStockDelta(id, product.Stock, delta); err != nil {
		return product.Stock, err
	}
	product.Stock += delta
	product.UpdatedAt = r.store.now()
	r.state.putProduct(product)
	return product.Stock, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
