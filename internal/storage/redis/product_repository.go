// Package redis хранит каталог в Redis. Остаток меняется Lua-скриптом,
// поэтому проверка stock + delta >= 0 и запись выполняются атомарно на стороне сервера.
// Транзакций между ключами нет: оформление заказа поверх этого каталога идёт
// по компенсирующему протоколу.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// DefaultKeyPrefix — префикс ключей каталога по умолчанию.
const DefaultKeyPrefix = "canteen:"

// opMarkerTTL — срок жизни метки применённой операции с остатком.
const opMarkerTTL = 24 * time.Hour

const (
	fieldName        = "name"
	fieldPriceMinor  = "price_minor"
	fieldStock       = "stock"
	fieldDescription = "description"
	fieldImage       = "image"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
)

// applyStockDeltaScript возвращает {status, stock}: 1 — применено, 0 — не хватает остатка, -1 — нет товара.
var applyStockDeltaScript = redis.NewScript(`
local key = KEYS[1]
local delta = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return {-1, 0}
end

local current = tonumber(redis.call('HGET', key, 'stock'))
if current + delta < 0 then
	return {0, current}
end

local updated = redis.call('HINCRBY', key, 'stock', delta)
redis.call('HSET', key, 'updated_at', ARGV[2])
return {1, updated}
`)

// applyStockOperationScript — applyStockDeltaScript с меткой операции KEYS[2].
// Если метка уже стоит, возвращает {2, stock} и остаток не трогает.
var applyStockOperationScript = redis.NewScript(`
local key = KEYS[1]
local marker = KEYS[2]
local delta = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return {-1, 0}
end

local current = tonumber(redis.call('HGET', key, 'stock'))
if redis.call('EXISTS', marker) == 1 then
	return {2, current}
end
if current + delta < 0 then
	return {0, current}
end

local updated = redis.call('HINCRBY', key, 'stock', delta)
redis.call('HSET', key, 'updated_at', ARGV[2])
redis.call('SET', marker, '1', 'EX', tonumber(ARGV[3]))
return {1, updated}
`)

var createProductScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
redis.call('SADD', KEYS[2], ARGV[#ARGV])
return 1
`)

// updateProductScript меняет поля администратора; stock пишется, только если ARGV[1] == '1'.
var updateProductScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return 0
end
redis.call('HSET', key,
	'name', ARGV[3],
	'price_minor', ARGV[4],
	'description', ARGV[5],
	'image', ARGV[6],
	'updated_at', ARGV[7])
if ARGV[1] == '1' then
	redis.call('HSET', key, 'stock', ARGV[2])
end
return 1
`)

var deleteProductScript = redis.NewScript(`
local removed = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return removed
`)

// ProductRepository — каталог товаров в Redis: хэш на товар и множество идентификаторов.
type ProductRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewProductRepository создаёт каталог поверх клиента Redis.
func NewProductRepository(client redis.UniversalClient, prefix string) *ProductRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &ProductRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping проверяет доступность Redis.
func (r *ProductRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *ProductRepository) productKey(id string) string {
	return r.prefix + "product:" + id
}

func (r *ProductRepository) opMarkerKey(opKey string) string {
	return r.prefix + "stockop:" + opKey
}

func (r *ProductRepository) indexKey() string {
	return r.prefix + "products"
}

func (r *ProductRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	fields, err := r.client.HGetAll(ctx, r.productKey(id)).Result()
	if err != nil {
		return domain.Product{}, fmt.Errorf("redis hgetall product %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return decodeProduct(id, fields)
}

func (r *ProductRepository) List(ctx context.Context, query string) ([]domain.Product, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers products: %w", err)
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.productKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis load products: %w", err)
		}
	}

	products := make([]domain.Product, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		// Хэш мог быть удалён между SMEMBERS и HGETALL.
		if len(fields) == 0 {
			continue
		}
		product, err := decodeProduct(id, fields)
		if err != nil {
			return nil, err
		}
		if product.MatchesQuery(query) {
			products = append(products, product)
		}
	}

	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

func (r *ProductRepository) Create(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	now := r.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	args := []any{
		fieldName, product.Name,
		fieldPriceMinor, product.PriceMinor,
		fieldStock, product.Stock,
		fieldDescription, product.Description,
		fieldImage, product.Image,
		fieldCreatedAt, formatTime(product.CreatedAt),
		fieldUpdatedAt, formatTime(product.UpdatedAt),
		// id идёт последним: скрипт берёт его для индекса.
		"id", product.ID,
	}
	created, err := createProductScript.Run(ctx, r.client,
		[]string{r.productKey(product.ID), r.indexKey()}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis create product %s: %w", product.ID, err)
	}
	if created == 0 {
		return domain.ErrProductAlreadyExists
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, update domain.ProductUpdate) (domain.Product, error) {
	if err := update.Validate(); err != nil {
		return domain.Product{}, err
	}

	hasStock, stock := "0", int64(0)
	if update.Stock != nil {
		hasStock, stock = "1", *update.Stock
	}
	updated, err := updateProductScript.Run(ctx, r.client, []string{r.productKey(update.ID)},
		hasStock, stock, update.Name, update.PriceMinor, update.Description, update.Image, formatTime(r.now()),
	).Int()
	if err != nil {
		return domain.Product{}, fmt.Errorf("redis update product %s: %w", update.ID, err)
	}
	if updated == 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.Get(ctx, update.ID)
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	removed, err := deleteProductScript.Run(ctx, r.client,
		[]string{r.productKey(id), r.indexKey()}, id).Int()
	if err != nil {
		return fmt.Errorf("redis delete product %s: %w", id, err)
	}
	if removed == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) ApplyStockDelta(ctx context.Context, id string, delta int64) (int64, error) {
	res, err := applyStockDeltaScript.Run(ctx, r.client, []string{r.productKey(id)}, delta, formatTime(r.now())).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("redis apply stock delta %s: %w", id, err)
	}
	return stockDeltaResult(id, delta, res)
}

// ApplyStockDeltaOnce применяет delta не больше одного раза на opKey.
// Метка живёт opMarkerTTL: этого хватает на все повторы одной компенсации.
func (r *ProductRepository) ApplyStockDeltaOnce(ctx context.Context, opKey, id string, delta int64) (int64, error) {
	keys := []string{r.productKey(id), r.opMarkerKey(opKey)}
	res, err := applyStockOperationScript.Run(ctx, r.client, keys,
		delta, formatTime(r.now()), int64(opMarkerTTL/time.Second)).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("redis apply stock operation %s: %w", opKey, err)
	}
	return stockDeltaResult(id, delta, res)
}

func stockDeltaResult(id string, delta int64, res []int64) (int64, error) {
	if len(res) != 2 {
		return 0, fmt.Errorf("redis apply stock delta %s: unexpected reply %v", id, res)
	}

	switch res[0] {
	case 1, 2:
		return res[1], nil
	case 0:
		return res[1], &domain.InsufficientStockError{ProductID: id, Requested: -delta, Available: res[1]}
	default:
		return 0, domain.ErrProductNotFound
	}
}

func decodeProduct(id string, fields map[string]string) (domain.Product, error) {
	product := domain.Product{
		ID:          id,
		Name:        fields[fieldName],
		Description: fields[fieldDescription],
		Image:       fields[fieldImage],
	}

	var errs []error
	product.PriceMinor, errs = parseInt(fields, fieldPriceMinor, errs)
	product.Stock, errs = parseInt(fields, fieldStock, errs)
	product.CreatedAt, errs = parseTime(fields, fieldCreatedAt, errs)
	product.UpdatedAt, errs = parseTime(fields, fieldUpdatedAt, errs)
	if len(errs) > 0 {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", id, errors.Join(errs...))
	}
	return product, nil
}

func parseInt(fields map[string]string, name string, errs []error) (int64, []error) {
	v, err := strconv.ParseInt(strings.TrimSpace(fields[name]), 10, 64)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return v, errs
}

func parseTime(fields map[string]string, name string, errs []error) (time.Time, []error) {
	raw := fields[name]
	if raw == "" {
		return time.Time{}, errs
	}
	v, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return v, errs
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var (
	_ domain.ProductRepository     = (*ProductRepository)(nil)
	_ domain.StockOperationApplier = (*ProductRepository)(nil)
)
