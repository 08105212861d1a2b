package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

func TestProductRepository_PostgresCRUD(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.Product{ID: "p1", Name: "Pandesal (3pcs)", PriceMinor: 1500, Stock: 30}))
	require.NoError(t, repo.Create(ctx, domain.Product{ID: "p2", Name: "Iced Tea (12 oz)", PriceMinor: 2500, Stock: 20}))
	require.ErrorIs(t, repo.Create(ctx, domain.Product{ID: "p1", Name: "dup", PriceMinor: 1}), domain.ErrProductAlreadyExists)

	found, err := repo.List(ctx, "  TEA ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "p2", found[0].ID)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	updated, err := repo.Update(ctx, domain.ProductUpdate{ID: "p1", Name: "Pandesal", PriceMinor: 1600})
	require.NoError(t, err)
	require.Equal(t, int64(1600), updated.PriceMinor)
	require.Equal(t, int64(30), updated.Stock, "stock must stay when not provided")

	stock := int64(7)
	updated, err = repo.Update(ctx, domain.ProductUpdate{ID: "p1", Name: "Pandesal", PriceMinor: 1600, Stock: &stock})
	require.NoError(t, err)
	require.Equal(t, int64(7), updated.Stock)

	_, err = repo.Update(ctx, domain.ProductUpdate{ID: "missing", Name: "x"})
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	require.NoError(t, repo.Delete(ctx, "p2"))
	require.ErrorIs(t, repo.Delete(ctx, "p2"), domain.ErrProductNotFound)
	_, err = repo.Get(ctx, "p2")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestProductRepository_PostgresApplyStockDelta(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()
	seedProductForIntegrationTest(t, store, "p1", 1000, 5)

	stock, err := repo.ApplyStockDelta(ctx, "p1", -2)
	require.NoError(t, err)
	require.Equal(t, int64(3), stock)

	stock, err = repo.ApplyStockDelta(ctx, "p1", -4)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "p1", insufficient.ProductID)
	require.Equal(t, int64(3), insufficient.Available)
	require.Equal(t, int64(3), stock)

	_, err = repo.ApplyStockDelta(ctx, "missing", -1)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestProductRepository_PostgresConcurrentDeltasNeverOversell(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()
	seedProductForIntegrationTest(t, store, "p1", 1000, 3)

	const workers = 10
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ApplyStockDelta(ctx, "p1", -1)
			if err == nil {
				succeeded.Add(1)
				return
			}
			if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(3), succeeded.Load())
	product, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(0), product.Stock)
}

func TestSettingsRepository_PostgresDefaultsAndUpsert(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewSettingsRepository(store)
	ctx := context.Background()

	settings, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultSettings(), settings)

	settings.StoreName = "School Canteen"
	settings.PaymentDestination = "GCash 0917-000-0000"
	require.NoError(t, repo.Save(ctx, settings))
	settings.Currency = "USD"
	require.NoError(t, repo.Save(ctx, settings))

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "School Canteen", got.StoreName)
	require.Equal(t, "USD", got.Currency)
	require.Equal(t, "GCash 0917-000-0000", got.PaymentDestination)
}
