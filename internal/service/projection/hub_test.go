package projection

import (
	"context"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "projection-test")
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func stockOf(snap Snapshot, id string) int64 {
	for _, p := range snap.Products {
		if p.ID == id {
			return p.Stock
		}
	}
	return -1
}

func TestHub_InvalidatePublishesFreshSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := seedStore(t)
	hub := NewHub(NewViews(store.Products(), store.Orders()),
		WithRefreshInterval(time.Hour),
		WithLogger(testLogger()),
	)
	require.NoError(t, hub.Start(context.Background()))
	defer hub.Stop()

	updates, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	first := receive(t, updates)
	require.Len(t, first.Products, 2)

	_, err := store.Products().ApplyStockDelta(context.Background(), "p1", -5)
	require.NoError(t, err)
	hub.Invalidate()

	require.Eventually(t, func() bool {
		latest, ok := hub.Latest()
		return ok && stockOf(latest, "p1") == 25
	}, 2*time.Second, 5*time.Millisecond)

	snap := receive(t, updates)
	require.EqualValues(t, 25, stockOf(snap, "p1"))
}

func TestHub_LateSubscriberGetsLatest(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := seedStore(t)
	addOrder(t, store, "o1", domain.OrderStatusCompleted, 6500, time.Now().UTC())
	hub := NewHub(NewViews(store.Products(), store.Orders()), WithLogger(testLogger()))
	require.NoError(t, hub.Start(context.Background()))
	defer hub.Stop()

	require.Eventually(t, func() bool {
		_, ok := hub.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	updates, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	require.EqualValues(t, 6500, receive(t, updates).RevenueMinor)
}

func TestHub_StopClosesSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := seedStore(t)
	hub := NewHub(NewViews(store.Products(), store.Orders()), WithLogger(testLogger()))
	require.NoError(t, hub.Start(context.Background()))
	require.ErrorIs(t, hub.Start(context.Background()), ErrHubStarted)

	updates, unsubscribe := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())

	hub.Stop()
	hub.Stop()

	for range updates {
	}
	unsubscribe()
	require.Zero(t, hub.Subscribers())
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	store := seedStore(t)
	hub := NewHub(NewViews(store.Products(), store.Orders()), WithLogger(testLogger()))

	_, unsubscribe := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())
	unsubscribe()
	unsubscribe()
	require.Zero(t, hub.Subscribers())
}

func TestHub_ContextCancelStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := seedStore(t)
	hub := NewHub(NewViews(store.Products(), store.Orders()), WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, hub.Start(ctx))
	cancel()
	hub.Stop()
}
