package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

// deltaLog запоминает, в каком порядке транзакция меняла остатки.
type deltaLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *deltaLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *deltaLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

type loggingProducts struct {
	domain.ProductRepository
	log *deltaLog
}

func (p loggingProducts) ApplyStockDelta(ctx context.Context, id string, delta int64) (int64, error) {
	p.log.add(id)
	return p.ProductRepository.ApplyStockDelta(ctx, id, delta)
}

type loggingUnit struct {
	domain.UnitOfWork
	log *deltaLog
}

func (u loggingUnit) Products() domain.ProductRepository {
	return loggingProducts{ProductRepository: u.UnitOfWork.Products(), log: u.log}
}

type loggingTransactor struct {
	store *memory.Store
	log   *deltaLog
}

func (t loggingTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	return t.store.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return fn(ctx, loggingUnit{UnitOfWork: uow, log: t.log})
	})
}

func TestCheckoutInTx_AppliesDeltasInProductOrder(t *testing.T) {
	store := memory.NewStore()
	seed(t, store.Products(), []domain.Product{
		{ID: "p1", Name: "Pandesal", PriceMinor: 1500, Stock: 10},
		{ID: "p2", Name: "Iced Tea", PriceMinor: 2500, Stock: 10},
		{ID: "p3", Name: "Beef Burger", PriceMinor: 6500, Stock: 10},
	})
	deltas := &deltaLog{}
	coord := NewTransactional(loggingTransactor{store: store, log: deltas}, WithLogger(testLogger()))

	order, err := coord.Checkout(context.Background(), Request{Buyer: buyer, Lines: []domain.CartLine{
		{ProductID: "p3", Quantity: 1},
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	}})
	require.NoError(t, err)

	require.Equal(t, []string{"p1", "p2", "p3"}, deltas.snapshot())
	require.Len(t, order.Items, 3)
	require.Equal(t, "p3", order.Items[0].ProductID, "items keep cart order")
	require.Equal(t, "p1", order.Items[1].ProductID)
	require.Equal(t, int64(2), order.Items[1].Quantity)
	require.Equal(t, "p2", order.Items[2].ProductID)
	require.Equal(t, int64(6500+2*1500+3*2500), order.TotalMinor)
}

func TestCheckoutInTx_OppositeCartsAllCommit(t *testing.T) {
	store := memory.NewStore()
	seed(t, store.Products(), []domain.Product{
		{ID: "p1", Name: "Pandesal", PriceMinor: 1500, Stock: 40},
		{ID: "p2", Name: "Iced Tea", PriceMinor: 2500, Stock: 40},
	})
	deltas := &deltaLog{}
	coord := NewTransactional(loggingTransactor{store: store, log: deltas}, WithLogger(testLogger()))

	const buyers = 20
	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		lines := []domain.CartLine{{ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 1}}
		if i%2 == 1 {
			lines[0], lines[1] = lines[1], lines[0]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Checkout(context.Background(), Request{Buyer: buyer, Lines: lines})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int64(20), stockOf(t, store.Products(), "p1"))
	require.Equal(t, int64(20), stockOf(t, store.Products(), "p2"))

	recorded := deltas.snapshot()
	require.Len(t, recorded, 2*buyers)
	for i := 0; i < len(recorded); i += 2 {
		require.Equal(t, []string{"p1", "p2"}, recorded[i:i+2], "every checkout locks p1 before p2")
	}
}
