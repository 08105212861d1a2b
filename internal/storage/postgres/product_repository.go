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

const productColumns = `id, name, price_minor, stock, description, image, created_at, updated_at`

type productRepository struct {
	q querier
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return store.Products()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.PriceMinor, &p.Stock, &p.Description, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *productRepository) List(ctx context.Context, query string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1 = '' OR strpos(lower(name), lower($1)) > 0
		ORDER BY name, id
	`, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		product.ID, product.Name, product.PriceMinor, product.Stock,
		product.Description, product.Image, product.CreatedAt, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// Update переписывает поля администратора; stock меняется только если задан.
func (r *productRepository) Update(ctx context.Context, update domain.ProductUpdate) (domain.Product, error) {
	if err := update.Validate(); err != nil {
		return domain.Product{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stock sql.NullInt64
	if update.Stock != nil {
		stock = sql.NullInt64{Int64: *update.Stock, Valid: true}
	}

	product, err := scanProduct(r.q.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2,
		    price_minor = $3,
		    description = $4,
		    image = $5,
		    stock = COALESCE($6, stock),
		    updated_at = $7
		WHERE id = $1
		RETURNING `+productColumns,
		update.ID, update.Name, update.PriceMinor, update.Description, update.Image,
		stock, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// ApplyStockDelta — условный UPDATE: блокировка строки сериализует дельты одного товара,
// а условие stock + delta >= 0 перепроверяется после ожидания блокировки.
func (r *productRepository) ApplyStockDelta(ctx context.Context, id string, delta int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stock int64
	err := r.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = $3
		WHERE id = $1
		  AND stock + $2 >= 0
		RETURNING stock
	`, id, delta, time.Now().UTC()).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("apply stock delta: %w", err)
	}

	var current int64
	err = r.q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read stock after rejected delta: %w", err)
	}
	return current, &domain.InsufficientStockError{ProductID: id, Requested: -delta, Available: current}
}

var _ domain.ProductRepository = (*productRepository)(nil)
