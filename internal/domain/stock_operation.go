package domain

import "context"

// Виды операций с остатком, которые повторяются при сбоях.
const (
	StockOpCompensate = "compensate"
	StockOpRestore    = "restore"
)

// StockOperationApplier — каталог, который применяет изменение остатка не больше
// одного раза на ключ операции. Повтор с тем же ключом возвращает текущий остаток
// и ничего не меняет, поэтому возврат можно повторять после потерянного ответа.
type StockOperationApplier interface {
	ApplyStockDeltaOnce(ctx context.Context, opKey, id string, delta int64) (int64, error)
}

// StockOperationKey строит ключ операции для одной позиции заказа.
func StockOperationKey(kind, orderID, productID string) string {
	return kind + ":" + orderID + ":" + productID
}

// ApplyStockDeltaOnce меняет остаток через StockOperationApplier, если каталог его
// поддерживает. Транзакционные хранилища ответ не теряют, им хватает ApplyStockDelta.
func ApplyStockDeltaOnce(ctx context.Context, products ProductRepository, opKey, id string, delta int64) (int64, error) {
	if once, ok := products.(StockOperationApplier); ok {
		return once.ApplyStockDeltaOnce(ctx, opKey, id, delta)
	}
	return products.ApplyStockDelta(ctx, id, delta)
}
