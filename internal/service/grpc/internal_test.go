package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

func discardLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "grpc-test")
}

func mustStatusCode(t *testing.T, err error, expected codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, expected, st.Code())
}

func TestToStatus_Mapping(t *testing.T) {
	logger := discardLogger()
	cases := []struct {
		err  error
		code codes.Code
	}{
		{&domain.InsufficientStockError{ProductID: "p1", Requested: 3, Available: 1}, codes.FailedPrecondition},
		{&domain.TransitionError{OrderID: "o1", From: domain.OrderStatusCanceled, To: domain.OrderStatusCompleted}, codes.FailedPrecondition},
		{domain.ErrEmptyCart, codes.InvalidArgument},
		{domain.ErrMissingBuyerInfo, codes.InvalidArgument},
		{fmt.Errorf("merge: %w", domain.ErrQuantityInvalid), codes.InvalidArgument},
		{fmt.Errorf("merge lines for p1: %w", domain.ErrQuantityTooLarge), codes.InvalidArgument},
		{domain.ErrSettingsInvalid, codes.InvalidArgument},
		{domain.ErrProductNotFound, codes.NotFound},
		{fmt.Errorf("load: %w", domain.ErrOrderNotFound), codes.NotFound},
		{domain.ErrInvalidCredentials, codes.Unauthenticated},
		{domain.ErrProductAlreadyExists, codes.AlreadyExists},
		{domain.ErrOrderVersionConflict, codes.Aborted},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("disk on fire"), codes.Internal},
		{status.Error(codes.Unavailable, "already a status"), codes.Unavailable},
	}
	for _, tc := range cases {
		mustStatusCode(t, toStatus(logger, "op", tc.err), tc.code)
	}
	require.NoError(t, toStatus(logger, "op", nil))

	st, _ := status.FromError(toStatus(logger, "checkout", &domain.InsufficientStockError{ProductID: "p9"}))
	require.Contains(t, st.Message(), "p9")
}

func TestParseBasicAuth(t *testing.T) {
	ctx := canteenv1.WithBasicAuth(context.Background(), "admin", "pa:ss")
	header := firstMetadataValue(ctx, canteenv1.AuthorizationHeader)

	user, password, ok := ParseBasicAuth(header)
	require.True(t, ok)
	require.Equal(t, "admin", user)
	require.Equal(t, "pa:ss", password)

	for _, bad := range []string{"", "Bearer abc", "Basic !!!", "Basic YWRtaW4="} {
		_, _, ok := ParseBasicAuth(bad)
		require.False(t, ok, bad)
	}
}

func TestReadIdempotencyKey(t *testing.T) {
	_, ok := readIdempotencyKey(context.Background())
	require.False(t, ok)

	incoming := metadata.NewIncomingContext(context.Background(), metadata.Pairs(canteenv1.IdempotencyKeyHeader, "  k1 "))
	key, ok := readIdempotencyKey(incoming)
	require.True(t, ok)
	require.Equal(t, "k1", key)

	key, ok = readIdempotencyKey(canteenv1.WithIdempotencyKey(context.Background(), "k2"))
	require.True(t, ok)
	require.Equal(t, "k2", key)
}

func TestBuildIdempotencyRequestHash(t *testing.T) {
	req := &canteenv1.CheckoutRequest{Lines: []*canteenv1.CartLine{{ProductID: "p1", Quantity: 1}}}

	h1, err := buildIdempotencyRequestHash("/m", req)
	require.NoError(t, err)
	h2, err := buildIdempotencyRequestHash("/m", req)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h3, err := buildIdempotencyRequestHash("/other", req)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	_, err = buildIdempotencyRequestHash("/m", nil)
	require.Error(t, err)
}

func TestRejectionStatus(t *testing.T) {
	err := rejectionStatus(domain.CheckoutKey{RejectCode: int(codes.FailedPrecondition), RejectReason: "out of stock"})
	mustStatusCode(t, err, codes.FailedPrecondition)
	require.Contains(t, err.Error(), "out of stock")

	err = rejectionStatus(domain.CheckoutKey{RejectCode: int(codes.NotFound)})
	mustStatusCode(t, err, codes.NotFound)
	require.Contains(t, err.Error(), "rejected")

	mustStatusCode(t, rejectionStatus(domain.CheckoutKey{RejectCode: 999}), codes.Internal)
	mustStatusCode(t, rejectionStatus(domain.CheckoutKey{RejectCode: int(codes.OK)}), codes.Internal)
}

func TestFinalCheckoutRejection(t *testing.T) {
	for _, code := range []codes.Code{codes.FailedPrecondition, codes.InvalidArgument, codes.NotFound} {
		require.True(t, finalCheckoutRejection(code), code.String())
	}
	for _, code := range []codes.Code{codes.Internal, codes.Unavailable, codes.Aborted, codes.Canceled, codes.DeadlineExceeded} {
		require.False(t, finalCheckoutRejection(code), code.String())
	}
}

func placedOrder(id string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:         id,
		Buyer:      domain.Buyer{Name: "Ana", Contact: "0917"},
		Items:      []domain.OrderItem{{ProductID: "p1", Name: "Rice", UnitPriceMinor: 500, Quantity: 2}},
		TotalMinor: 1000,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCheckoutGuard_ReplayBranches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Orders().Create(ctx, placedOrder("o1")))
	g := newCheckoutGuard(memory.NewCheckoutKeyRepository(), store.Orders(), 0, discardLogger())

	_, err := g.replay(ctx, domain.ErrIdempotencyHashMismatch, domain.CheckoutKey{})
	mustStatusCode(t, err, codes.AlreadyExists)

	_, err = g.replay(ctx, domain.ErrIdempotencyKeyAlreadyExists, domain.CheckoutKey{Status: domain.CheckoutKeyPending})
	mustStatusCode(t, err, codes.Aborted)

	_, err = g.replay(ctx, domain.ErrIdempotencyKeyAlreadyExists,
		domain.CheckoutKey{Status: domain.CheckoutKeyRejected, RejectCode: int(codes.FailedPrecondition), RejectReason: "no rice"})
	mustStatusCode(t, err, codes.FailedPrecondition)

	resp, err := g.replay(ctx, domain.ErrIdempotencyKeyAlreadyExists, domain.CheckoutKey{Status: domain.CheckoutKeyPlaced, OrderID: "o1"})
	require.NoError(t, err)
	require.Equal(t, "o1", resp.Order.ID)
	require.Equal(t, int64(1000), resp.Order.TotalMinor)

	_, err = g.replay(ctx, domain.ErrIdempotencyKeyAlreadyExists, domain.CheckoutKey{Status: domain.CheckoutKeyPlaced, OrderID: "gone"})
	mustStatusCode(t, err, codes.NotFound)

	_, err = g.replay(ctx, domain.ErrIdempotencyKeyAlreadyExists, domain.CheckoutKey{Status: "weird"})
	mustStatusCode(t, err, codes.Internal)

	_, err = g.replay(ctx, errors.New("db down"), domain.CheckoutKey{})
	mustStatusCode(t, err, codes.Internal)
}

func TestCheckoutGuard_SettlesKeyByOutcome(t *testing.T) {
	keys := memory.NewCheckoutKeyRepository()
	g := newCheckoutGuard(keys, memory.NewStore().Orders(), time.Hour, discardLogger())
	req := &canteenv1.CheckoutRequest{Lines: []*canteenv1.CartLine{{ProductID: "p1", Quantity: 1}}}

	placed := canteenv1.WithIdempotencyKey(context.Background(), "k-placed")
	_, err := g.place(placed, req, func(context.Context) (*canteenv1.CheckoutResponse, error) {
		return &canteenv1.CheckoutResponse{Order: &canteenv1.Order{ID: "o7"}}, nil
	})
	require.NoError(t, err)
	got, err := keys.Get(context.Background(), "k-placed")
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutKeyPlaced, got.Status)
	require.Equal(t, "o7", got.OrderID)
	require.Equal(t, checkoutKeyScope, got.Scope)

	rejected := canteenv1.WithIdempotencyKey(context.Background(), "k-rejected")
	_, err = g.place(rejected, req, func(context.Context) (*canteenv1.CheckoutResponse, error) {
		return nil, status.Error(codes.FailedPrecondition, "insufficient stock")
	})
	mustStatusCode(t, err, codes.FailedPrecondition)
	got, err = keys.Get(context.Background(), "k-rejected")
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutKeyRejected, got.Status)
	require.Equal(t, int(codes.FailedPrecondition), got.RejectCode)

	transient := canteenv1.WithIdempotencyKey(context.Background(), "k-transient")
	calls := 0
	flaky := func(context.Context) (*canteenv1.CheckoutResponse, error) {
		calls++
		if calls == 1 {
			return nil, status.Error(codes.Unavailable, "catalog is down")
		}
		return &canteenv1.CheckoutResponse{Order: &canteenv1.Order{ID: "o8"}}, nil
	}
	_, err = g.place(transient, req, flaky)
	mustStatusCode(t, err, codes.Unavailable)
	_, err = keys.Get(context.Background(), "k-transient")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	resp, err := g.place(transient, req, flaky)
	require.NoError(t, err)
	require.Equal(t, "o8", resp.Order.ID)
	require.Equal(t, 2, calls)
}

func TestCheckoutGuard_NoRepoRunsCheckout(t *testing.T) {
	calls := 0
	ctx := canteenv1.WithIdempotencyKey(context.Background(), "k")
	resp, err := newCheckoutGuard(nil, nil, 0, discardLogger()).place(ctx, &canteenv1.CheckoutRequest{},
		func(context.Context) (*canteenv1.CheckoutResponse, error) {
			calls++
			return &canteenv1.CheckoutResponse{}, nil
		})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 1, calls)
}
