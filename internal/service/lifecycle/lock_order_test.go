package lifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/service/checkout"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

type restoreLog struct {
	mu  sync.Mutex
	ids []string
}

type restoreLoggingProducts struct {
	domain.ProductRepository
	log *restoreLog
}

func (p restoreLoggingProducts) ApplyStockDelta(ctx context.Context, id string, delta int64) (int64, error) {
	p.log.mu.Lock()
	p.log.ids = append(p.log.ids, id)
	p.log.mu.Unlock()
	return p.ProductRepository.ApplyStockDelta(ctx, id, delta)
}

type restoreLoggingUnit struct {
	domain.UnitOfWork
	log *restoreLog
}

func (u restoreLoggingUnit) Products() domain.ProductRepository {
	return restoreLoggingProducts{ProductRepository: u.UnitOfWork.Products(), log: u.log}
}

type restoreLoggingTransactor struct {
	store *memory.Store
	log   *restoreLog
}

func (t restoreLoggingTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	return t.store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return fn(ctx, restoreLoggingUnit{UnitOfWork: uow, log: t.log})
	})
}

func TestCancelInTx_RestoresInProductOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, p := range []domain.Product{
		{ID: "p1", Name: "Pandesal", PriceMinor: 1500, Stock: 10},
		{ID: "p2", Name: "Iced Tea", PriceMinor: 2500, Stock: 10},
		{ID: "p3", Name: "Siopao", PriceMinor: 3000, Stock: 10},
	} {
		require.NoError(t, store.Products().Create(ctx, p))
	}

	order, err := checkout.NewTransactional(store, checkout.WithLogger(testLogger())).
		Checkout(ctx, checkout.Request{Buyer: buyer, Lines: []domain.CartLine{
			{ProductID: "p3", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
			{ProductID: "p1", Quantity: 3},
		}})
	require.NoError(t, err)

	restored := &restoreLog{}
	svc := NewTransactional(restoreLoggingTransactor{store: store, log: restored}, WithLogger(testLogger()))
	_, err = svc.Cancel(ctx, order.ID)
	require.NoError(t, err)

	require.Equal(t, []string{"p1", "p2", "p3"}, restored.ids)
	for _, id := range []string{"p1", "p2", "p3"} {
		p, err := store.Products().Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(10), p.Stock)
	}
}
