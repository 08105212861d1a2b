package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStock — запрошенное количество превышает текущий остаток товара.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrEmptyCart — попытка оформить заказ из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrMissingBuyerInfo — не заполнены имя или контакт покупателя.
	ErrMissingBuyerInfo = errors.New("buyer name and contact are required")
	// ErrInvalidCredentials — неверные учётные данные администратора.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidTransition — переход статуса заказа недопустим из текущего состояния.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductAlreadyExists — товар с таким идентификатором уже существует.
	ErrProductAlreadyExists = errors.New("product already exists")
	// ErrOrderNotFound возвращается, если заказ не найден в журнале заказов.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — заказ с таким идентификатором уже существует.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrQuantityInvalid — количество в строке корзины должно быть больше нуля.
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// ErrQuantityTooLarge — суммарное количество товара в корзине не помещается в int64.
	ErrQuantityTooLarge = errors.New("quantity is too large")
	// ErrProductNameRequired — у товара должно быть название.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrPriceNegative — цена товара не может быть отрицательной.
	ErrPriceNegative = errors.New("price must be non-negative")
	// ErrStockNegative — остаток товара не может быть отрицательным.
	ErrStockNegative = errors.New("stock must be non-negative")
	// ErrItemsRequired — заказ должен содержать хотя бы одну позицию.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrTotalMismatch — итог заказа не совпадает с суммой позиций.
	ErrTotalMismatch = errors.New("order total does not match items sum")
	// ErrIdempotencyKeyAlreadyExists — ключ уже занят другим запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — не посчитан хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyExpiryRequired — у ключа должен быть срок жизни.
	ErrIdempotencyExpiryRequired = errors.New("idempotency key expiry is required")
	// ErrIdempotencyOrderIDRequired — размещённый ключ должен ссылаться на заказ.
	ErrIdempotencyOrderIDRequired = errors.New("idempotency key order id is required")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrSettingsInvalid — у настроек витрины должны быть название и код валюты.
	ErrSettingsInvalid = errors.New("store name and currency are required")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError уточняет, по какому товару не хватило остатка.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is позволяет сравнивать ошибку с ErrInsufficientStock через errors.Is.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// TransitionError описывает отклонённый переход статуса заказа.
type TransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
}

// Is позволяет сравнивать ошибку с ErrInvalidTransition через errors.Is.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound проверяет, что ошибка означает отсутствие товара или заказа.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrOrderNotFound)
}

// IsIdempotencyConflict проверяет конфликт ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
