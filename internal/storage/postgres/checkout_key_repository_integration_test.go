package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

const checkoutKeyTestScope = "/canteen.v1.StorefrontService/Checkout"

func TestCheckoutKeyRepository_PostgresClaimAndMarkPlaced(t *testing.T) {
	store := openPostgresStoreForCheckoutKeyTest(t)
	repo := store.CheckoutKeys()
	ctx := context.Background()

	expires := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)
	claim := domain.CheckoutKey{Key: "ck-placed", Scope: checkoutKeyTestScope, RequestHash: "req-hash-1", ExpiresAt: expires}

	claimed, err := repo.Claim(ctx, claim)
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutKeyPending, claimed.Status)

	require.NoError(t, repo.MarkPlaced(ctx, "ck-placed", "order-1"))
	require.ErrorIs(t, repo.MarkRejected(ctx, "ck-placed", 9, "late"), domain.ErrIdempotencyKeyNotFound)

	got, err := repo.Get(ctx, "ck-placed")
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutKeyPlaced, got.Status)
	require.Equal(t, "order-1", got.OrderID)
	require.Equal(t, checkoutKeyTestScope, got.Scope)
	require.True(t, got.ExpiresAt.Equal(expires), "expiry mismatch: expected %s, got %s", expires, got.ExpiresAt)
}

func TestCheckoutKeyRepository_PostgresConflictRejectAndRelease(t *testing.T) {
	store := openPostgresStoreForCheckoutKeyTest(t)
	repo := store.CheckoutKeys()
	ctx := context.Background()

	expires := time.Now().UTC().Add(time.Hour)
	claim := domain.CheckoutKey{Key: "ck-conflict", Scope: checkoutKeyTestScope, RequestHash: "req-hash-a", ExpiresAt: expires}
	_, err := repo.Claim(ctx, claim)
	require.NoError(t, err)

	existing, err := repo.Claim(ctx, claim)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, domain.CheckoutKeyPending, existing.Status)

	claim.RequestHash = "req-hash-b"
	_, err = repo.Claim(ctx, claim)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkRejected(ctx, "ck-conflict", 9, "insufficient stock"))
	got, err := repo.Get(ctx, "ck-conflict")
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutKeyRejected, got.Status)
	require.Equal(t, 9, got.RejectCode)
	require.Equal(t, "insufficient stock", got.RejectReason)
	require.ErrorIs(t, repo.Release(ctx, "ck-conflict"), domain.ErrIdempotencyKeyNotFound)

	_, err = repo.Claim(ctx, domain.CheckoutKey{Key: "ck-transient", Scope: checkoutKeyTestScope, RequestHash: "h", ExpiresAt: expires})
	require.NoError(t, err)
	require.NoError(t, repo.Release(ctx, "ck-transient"))
	_, err = repo.Get(ctx, "ck-transient")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestCheckoutKeyRepository_PostgresReclaimExpired(t *testing.T) {
	store := openPostgresStoreForCheckoutKeyTest(t)
	repo := store.CheckoutKeys()
	ctx := context.Background()

	_, err := repo.Claim(ctx, domain.CheckoutKey{Key: "ck-stale", Scope: checkoutKeyTestScope, RequestHash: "old", ExpiresAt: time.Now().UTC().Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, repo.MarkPlaced(ctx, "ck-stale", "order-old"))

	claimed, err := repo.Claim(ctx, domain.CheckoutKey{Key: "ck-stale", Scope: checkoutKeyTestScope, RequestHash: "new", ExpiresAt: time.Now().UTC().Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutKeyPending, claimed.Status)
	require.Equal(t, "new", claimed.RequestHash)
	require.Empty(t, claimed.OrderID)
}

func TestCheckoutKeyRepository_PostgresDeleteExpiredByScope(t *testing.T) {
	store := openPostgresStoreForCheckoutKeyTest(t)
	repo := store.CheckoutKeys()
	ctx := context.Background()

	now := time.Now().UTC()
	for i, key := range []string{"ck-expired-1", "ck-expired-2", "ck-expired-3"} {
		_, err := repo.Claim(ctx, domain.CheckoutKey{
			Key: key, Scope: checkoutKeyTestScope, RequestHash: "h",
			ExpiresAt: now.Add(-time.Duration(5-i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := repo.Claim(ctx, domain.CheckoutKey{Key: "ck-other-scope", Scope: "/other", RequestHash: "h", ExpiresAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = repo.Claim(ctx, domain.CheckoutKey{Key: "ck-active", Scope: checkoutKeyTestScope, RequestHash: "h", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, checkoutKeyTestScope, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	_, err = repo.Get(ctx, "ck-expired-3")
	require.NoError(t, err, "latest expiry survives a limited batch")

	removed, err = repo.DeleteExpired(ctx, checkoutKeyTestScope, now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "ck-other-scope")
	require.NoError(t, err)
	_, err = repo.Get(ctx, "ck-active")
	require.NoError(t, err)
}

func openPostgresStoreForCheckoutKeyTest(t *testing.T) *Store {
	t.Helper()

	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE checkout_keys`)
	require.NoError(t, err)

	return store
}
