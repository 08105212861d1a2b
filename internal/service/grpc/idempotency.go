package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// checkoutKeyScope — область ключей идемпотентности оформления заказа.
const checkoutKeyScope = canteenv1.StorefrontService_Checkout_FullMethodName

// checkoutGuard связывает idempotency-key из metadata с заказом, созданным по нему.
// Без ключа или без хранилища оформление выполняется как обычно.
type checkoutGuard struct {
	keys   domain.CheckoutKeyRepository
	orders domain.OrderRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

func newCheckoutGuard(keys domain.CheckoutKeyRepository, orders domain.OrderRepository, ttl time.Duration, logger *log.Entry) *checkoutGuard {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &checkoutGuard{
		keys:   keys,
		orders: orders,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// place оформляет заказ не больше одного раза на ключ.
// Успех запоминает ID заказа, окончательный отказ — код и текст ошибки.
// Временный сбой освобождает ключ, чтобы клиент мог повторить запрос.
func (g *checkoutGuard) place(
	ctx context.Context,
	req *canteenv1.CheckoutRequest,
	checkoutFn func(context.Context) (*canteenv1.CheckoutResponse, error),
) (*canteenv1.CheckoutResponse, error) {
	if g == nil || g.keys == nil {
		return checkoutFn(ctx)
	}

	key, ok := readIdempotencyKey(ctx)
	if !ok {
		return checkoutFn(ctx)
	}

	reqHash, err := buildIdempotencyRequestHash(checkoutKeyScope, req)
	if err != nil {
		g.logger.WithError(err).Warn("failed to build checkout request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	existing, err := g.keys.Claim(ctx, domain.CheckoutKey{
		Key:         key,
		Scope:       checkoutKeyScope,
		RequestHash: reqHash,
		ExpiresAt:   g.now().Add(g.ttl),
	})
	if err != nil {
		return g.replay(ctx, err, existing)
	}

	resp, runErr := checkoutFn(ctx)
	// Исход уже определён: запись ключа не должна зависеть от отмены клиента.
	settleCtx := context.WithoutCancel(ctx)
	entry := g.logger.WithField("idempotency_key", key)

	switch {
	case runErr == nil:
		if markErr := g.keys.MarkPlaced(settleCtx, key, resp.Order.ID); markErr != nil {
			entry.WithError(markErr).WithField("order_id", resp.Order.ID).Warn("failed to bind order to checkout key")
		}
	case finalCheckoutRejection(status.Code(runErr)):
		st := status.Convert(runErr)
		if markErr := g.keys.MarkRejected(settleCtx, key, int(st.Code()), st.Message()); markErr != nil {
			entry.WithError(markErr).Warn("failed to store checkout rejection")
		}
	default:
		if releaseErr := g.keys.Release(settleCtx, key); releaseErr != nil {
			entry.WithError(releaseErr).Warn("failed to release checkout key")
		}
	}
	return resp, runErr
}

// replay отвечает на повтор по занятому ключу.
func (g *checkoutGuard) replay(ctx context.Context, claimErr error, existing domain.CheckoutKey) (*canteenv1.CheckoutResponse, error) {
	if !domain.IsIdempotencyConflict(claimErr) {
		g.logger.WithError(claimErr).Warn("failed to claim checkout key")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
	if errors.Is(claimErr, domain.ErrIdempotencyHashMismatch) {
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	}

	switch existing.Status {
	case domain.CheckoutKeyPending:
		return nil, status.Error(codes.Aborted, "checkout with the same idempotency key is already in progress")
	case domain.CheckoutKeyRejected:
		return nil, rejectionStatus(existing)
	case domain.CheckoutKeyPlaced:
		if g.orders == nil {
			return nil, status.Error(codes.Internal, "order journal is not configured")
		}
		order, err := g.orders.Get(ctx, existing.OrderID)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil, status.Errorf(codes.NotFound, "order %s placed with this idempotency key no longer exists", existing.OrderID)
			}
			return nil, toStatus(g.logger, "replay checkout", err)
		}
		return &canteenv1.CheckoutResponse{Order: toWireOrder(order)}, nil
	default:
		return nil, status.Error(codes.Internal, "unknown checkout key status")
	}
}

// finalCheckoutRejection сообщает, что повтор того же запроса даст тот же отказ.
func finalCheckoutRejection(code codes.Code) bool {
	switch code {
	case codes.FailedPrecondition, codes.InvalidArgument, codes.NotFound:
		return true
	default:
		return false
	}
}

func rejectionStatus(k domain.CheckoutKey) error {
	code, ok := grpcCodeFromInt(k.RejectCode)
	if !ok || code == codes.OK {
		code = codes.Internal
	}
	msg := k.RejectReason
	if msg == "" {
		msg = "previous checkout with the same idempotency key was rejected"
	}
	return status.Error(code, msg)
}

func grpcCodeFromInt(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func readIdempotencyKey(ctx context.Context) (string, bool) {
	if key := firstMetadataValue(ctx, canteenv1.IdempotencyKeyHeader); key != "" {
		return key, true
	}
	return "", false
}

// firstMetadataValue ищет заголовок во входящей, затем в исходящей metadata.
func firstMetadataValue(ctx context.Context, header string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(header); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0])
		}
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if values := md.Get(header); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

// buildIdempotencyRequestHash хэширует метод и JSON запроса.
// encoding/json сортирует ключи map, поэтому сериализация детерминирована.
func buildIdempotencyRequestHash(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	payload := make([]byte, 0, len(method)+1+len(data))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
