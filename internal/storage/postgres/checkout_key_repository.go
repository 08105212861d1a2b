package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

const checkoutKeyColumns = `key, scope, request_hash, status, order_id, reject_code, reject_reason, expires_at, created_at, updated_at`

type checkoutKeyRepository struct {
	q   querier
	now func() time.Time
}

// Claim вставляет ключ в статусе pending. Просроченную запись с тем же ключом
// перезаписывает, не дожидаясь воркера очистки.
func (r *checkoutKeyRepository) Claim(ctx context.Context, claim domain.CheckoutKey) (domain.CheckoutKey, error) {
	claim = claim.Normalize()
	if err := claim.ValidateClaim(); err != nil {
		return domain.CheckoutKey{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now()
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO checkout_keys (
			key, scope, request_hash, status, order_id, reject_code, reject_reason, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NULL, 0, '', $5, $6, $6)
		ON CONFLICT (key) DO UPDATE
		SET scope = EXCLUDED.scope,
		    request_hash = EXCLUDED.request_hash,
		    status = EXCLUDED.status,
		    order_id = NULL,
		    reject_code = 0,
		    reject_reason = '',
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE checkout_keys.expires_at <= $6
		RETURNING `+checkoutKeyColumns,
		claim.Key,
		claim.Scope,
		claim.RequestHash,
		string(domain.CheckoutKeyPending),
		claim.ExpiresAt,
		now,
	)

	claimed, err := scanCheckoutKey(row)
	if err == nil {
		return claimed, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return domain.CheckoutKey{}, fmt.Errorf("claim checkout key: %w", err)
	}

	// Конфликт с живым ключом: RETURNING пуст, читаем владельца.
	existing, getErr := r.Get(ctx, claim.Key)
	if getErr != nil {
		return domain.CheckoutKey{}, fmt.Errorf("read claimed checkout key: %w", getErr)
	}
	if existing.RequestHash != claim.RequestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *checkoutKeyRepository) Get(ctx context.Context, key string) (domain.CheckoutKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.CheckoutKey{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	found, err := scanCheckoutKey(r.q.QueryRowContext(ctx,
		`SELECT `+checkoutKeyColumns+` FROM checkout_keys WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return domain.CheckoutKey{}, err
		}
		return domain.CheckoutKey{}, fmt.Errorf("get checkout key: %w", err)
	}
	return found, nil
}

func (r *checkoutKeyRepository) MarkPlaced(ctx context.Context, key, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.ErrIdempotencyOrderIDRequired
	}
	return r.settle(ctx, key, `
		UPDATE checkout_keys
		SET status = $1, order_id = $2, updated_at = $3
		WHERE key = $4 AND status = 'pending'
	`, string(domain.CheckoutKeyPlaced), orderID)
}

func (r *checkoutKeyRepository) MarkRejected(ctx context.Context, key string, code int, reason string) error {
	return r.settle(ctx, key, `
		UPDATE checkout_keys
		SET status = $1, reject_code = $2, reject_reason = $3, updated_at = $4
		WHERE key = $5 AND status = 'pending'
	`, string(domain.CheckoutKeyRejected), code, reason)
}

func (r *checkoutKeyRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM checkout_keys WHERE key = $1 AND status = 'pending'`, key)
	if err != nil {
		return fmt.Errorf("release checkout key: %w", err)
	}
	return requireAffected(res)
}

func (r *checkoutKeyRepository) DeleteExpired(ctx context.Context, scope string, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}
	scope = strings.TrimSpace(scope)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	// Пустая scope ($1 = '') снимает фильтр по области.
	if limit > 0 {
		res, err = r.q.ExecContext(ctx, `
			DELETE FROM checkout_keys
			WHERE key IN (
				SELECT key
				FROM checkout_keys
				WHERE ($1 = '' OR scope = $1) AND expires_at <= $2
				ORDER BY expires_at ASC
				LIMIT $3
			)
		`, scope, before, limit)
	} else {
		res, err = r.q.ExecContext(ctx, `
			DELETE FROM checkout_keys
			WHERE ($1 = '' OR scope = $1) AND expires_at <= $2
		`, scope, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired checkout keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checkout keys rows affected: %w", err)
	}
	return int(affected), nil
}

// settle выполняет UPDATE вида "... updated_at = $N-1 WHERE key = $N AND status = 'pending'",
// дописывая время и ключ к args.
func (r *checkoutKeyRepository) settle(ctx context.Context, key, query string, args ...any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	args = append(args, r.now(), key)
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("settle checkout key: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checkout keys rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func scanCheckoutKey(row rowScanner) (domain.CheckoutKey, error) {
	var (
		found     domain.CheckoutKey
		statusRaw string
		orderID   sql.NullString
	)
	err := row.Scan(
		&found.Key,
		&found.Scope,
		&found.RequestHash,
		&statusRaw,
		&orderID,
		&found.RejectCode,
		&found.RejectReason,
		&found.ExpiresAt,
		&found.CreatedAt,
		&found.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CheckoutKey{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.CheckoutKey{}, err
	}

	found.Status = domain.CheckoutKeyStatus(statusRaw)
	if !found.Status.Valid() {
		return domain.CheckoutKey{}, fmt.Errorf("invalid checkout key status %q for key %s", statusRaw, found.Key)
	}
	found.OrderID = orderID.String
	return found, nil
}

var _ domain.CheckoutKeyRepository = (*checkoutKeyRepository)(nil)
