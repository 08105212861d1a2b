package domain

import (
	"strings"
	"time"
)

// CheckoutKeyStatus — состояние ключа идемпотентности оформления заказа.
type CheckoutKeyStatus string

const (
	// CheckoutKeyPending — оформление по ключу ещё выполняется.
	CheckoutKeyPending CheckoutKeyStatus = "pending"
	// CheckoutKeyPlaced — заказ создан, OrderID заполнен.
	CheckoutKeyPlaced CheckoutKeyStatus = "placed"
	// CheckoutKeyRejected — окончательный отказ: нет остатка, неверная корзина или покупатель.
	CheckoutKeyRejected CheckoutKeyStatus = "rejected"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s CheckoutKeyStatus) Valid() bool {
	switch s {
	case CheckoutKeyPending, CheckoutKeyPlaced, CheckoutKeyRejected:
		return true
	default:
		return false
	}
}

// CheckoutKey связывает ключ клиента с исходом одного оформления заказа.
// Повтор по ключу со статусом placed возвращает тот же заказ по OrderID,
// со статусом rejected — ту же ошибку.
// Временные сбои ключ не занимают: он освобождается, и клиент может повторить запрос.
type CheckoutKey struct {
	Key          string
	Scope        string
	RequestHash  string
	Status       CheckoutKeyStatus
	OrderID      string
	RejectCode   int
	RejectReason string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Normalize обрезает пробелы в идентифицирующих полях.
func (k CheckoutKey) Normalize() CheckoutKey {
	k.Key = strings.TrimSpace(k.Key)
	k.Scope = strings.TrimSpace(k.Scope)
	k.RequestHash = strings.TrimSpace(k.RequestHash)
	return k
}

// ValidateClaim проверяет поля, обязательные для захвата ключа.
func (k CheckoutKey) ValidateClaim() error {
	switch {
	case k.Key == "":
		return ErrIdempotencyKeyRequired
	case k.RequestHash == "":
		return ErrIdempotencyRequestHashRequired
	case k.ExpiresAt.IsZero():
		return ErrIdempotencyExpiryRequired
	}
	return nil
}

// Expired сообщает, что ключ можно удалить.
func (k CheckoutKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt)
}

// Settled сообщает, что исход оформления зафиксирован и его можно повторить.
func (k CheckoutKey) Settled() bool {
	return k.Status == CheckoutKeyPlaced || k.Status == CheckoutKeyRejected
}

// InScope сообщает, попадает ли ключ в область scope; пустая область означает любую.
func (k CheckoutKey) InScope(scope string) bool {
	return scope == "" || k.Scope == scope
}
