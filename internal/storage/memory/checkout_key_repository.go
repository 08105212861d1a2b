package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// checkoutKeyRepositoryInMemory хранит ключи оформления заказа до истечения срока.
type checkoutKeyRepositoryInMemory struct {
	mu   sync.RWMutex
	keys map[string]domain.CheckoutKey
	now  func() time.Time
}

// NewCheckoutKeyRepository создаёт in-memory реализацию CheckoutKeyRepository.
func NewCheckoutKeyRepository() domain.CheckoutKeyRepository {
	return &checkoutKeyRepositoryInMemory{
		keys: make(map[string]domain.CheckoutKey),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *checkoutKeyRepositoryInMemory) Claim(_ context.Context, claim domain.CheckoutKey) (domain.CheckoutKey, error) {
	claim = claim.Normalize()
	if err := claim.ValidateClaim(); err != nil {
		return domain.CheckoutKey{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.keys[claim.Key]; ok {
		// Просроченный ключ ещё не убран воркером, но уже свободен.
		if !existing.Expired(now) {
			if existing.RequestHash != claim.RequestHash {
				return existing, domain.ErrIdempotencyHashMismatch
			}
			return existing, domain.ErrIdempotencyKeyAlreadyExists
		}
	}

	claim.Status = domain.CheckoutKeyPending
	claim.OrderID = ""
	claim.RejectCode = 0
	claim.RejectReason = ""
	claim.CreatedAt = now
	claim.UpdatedAt = now
	r.keys[claim.Key] = claim

	return claim, nil
}

func (r *checkoutKeyRepositoryInMemory) Get(_ context.Context, key string) (domain.CheckoutKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.CheckoutKey{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	found, ok := r.keys[key]
	if !ok {
		return domain.CheckoutKey{}, domain.ErrIdempotencyKeyNotFound
	}
	return found, nil
}

func (r *checkoutKeyRepositoryInMemory) MarkPlaced(_ context.Context, key, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.ErrIdempotencyOrderIDRequired
	}
	return r.settle(key, func(k *domain.CheckoutKey) {
		k.Status = domain.CheckoutKeyPlaced
		k.OrderID = orderID
	})
}

func (r *checkoutKeyRepositoryInMemory) MarkRejected(_ context.Context, key string, code int, reason string) error {
	return r.settle(key, func(k *domain.CheckoutKey) {
		k.Status = domain.CheckoutKeyRejected
		k.RejectCode = code
		k.RejectReason = reason
	})
}

func (r *checkoutKeyRepositoryInMemory) Release(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	found, ok := r.keys[key]
	if !ok || found.Status != domain.CheckoutKeyPending {
		return domain.ErrIdempotencyKeyNotFound
	}
	delete(r.keys, key)
	return nil
}

func (r *checkoutKeyRepositoryInMemory) DeleteExpired(_ context.Context, scope string, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}
	scope = strings.TrimSpace(scope)

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]domain.CheckoutKey, 0)
	for _, k := range r.keys {
		if k.InScope(scope) && k.Expired(before) {
			expired = append(expired, k)
		}
	}
	// Раньше истёкшие удаляются первыми, как в PostgreSQL.
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, k := range expired {
		delete(r.keys, k.Key)
	}

	return len(expired), nil
}

// settle фиксирует исход только для ключа в статусе pending.
func (r *checkoutKeyRepositoryInMemory) settle(key string, apply func(*domain.CheckoutKey)) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	found, ok := r.keys[key]
	if !ok || found.Status != domain.CheckoutKeyPending {
		return domain.ErrIdempotencyKeyNotFound
	}
	apply(&found)
	found.UpdatedAt = r.now()
	r.keys[key] = found
	return nil
}

var _ domain.CheckoutKeyRepository = (*checkoutKeyRepositoryInMemory)(nil)
