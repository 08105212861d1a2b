package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusProvisional — черновик компенсационного оформления, снаружи не виден.
	OrderStatusProvisional OrderStatus = "provisional"
	// OrderStatusPending — заказ оформлен, остатки списаны, ждёт выдачи.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted — заказ выдан покупателю.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCanceled — заказ отменён, остатки возвращены.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusProvisional, OrderStatusPending, OrderStatusCompleted, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет исходящих переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

// Visible сообщает, показывается ли заказ в списках и отчётах.
func (s OrderStatus) Visible() bool {
	return s != OrderStatusProvisional
}

// CanTransitionTo реализует граф переходов: каждое ребро проходится не больше одного раза.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusProvisional:
		return next == OrderStatusPending
	case OrderStatusPending:
		return next == OrderStatusCompleted || next == OrderStatusCanceled
	default:
		return false
	}
}

// PaymentMethod — способ оплаты, выбранный покупателем.
type PaymentMethod string

const (
	PaymentMethodGCash PaymentMethod = "gcash"
	PaymentMethodCash  PaymentMethod = "cash"
)

// Buyer — данные покупателя, указанные при оформлении.
type Buyer struct {
	Name          string
	Contact       string
	PaymentMethod PaymentMethod
}

// Validate требует непустые имя и контакт.
func (b Buyer) Validate() error {
	if strings.TrimSpace(b.Name) == "" || strings.TrimSpace(b.Contact) == "" {
		return ErrMissingBuyerInfo
	}
	return nil
}

// Normalize обрезает пробелы и подставляет способ оплаты по умолчанию.
func (b Buyer) Normalize() Buyer {
	b.Name = strings.TrimSpace(b.Name)
	b.Contact = strings.TrimSpace(b.Contact)
	if b.PaymentMethod == "" {
		b.PaymentMethod = PaymentMethodGCash
	}
	return b
}

// CartLine — намерение купить quantity единиц товара.
type CartLine struct {
	ProductID string
	Quantity  int64
}

// MergeLines склеивает повторяющиеся товары, сохраняя порядок первого появления.
func MergeLines(lines []CartLine) ([]CartLine, error) {
	merged := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, ErrQuantityInvalid
		}
		if i, ok := index[line.ProductID]; ok {
			if merged[i].Quantity > math.MaxInt64-line.Quantity {
				return nil, fmt.Errorf("merge lines for %s: %w", line.ProductID, ErrQuantityTooLarge)
			}
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

// StockLockOrder возвращает индексы ids, упорядоченные по идентификатору товара.
// Транзакции меняют остатки в этом порядке: блокировки строк товаров берутся
// одинаково, и встречные корзины не ждут друг друга по кругу.
func StockLockOrder(ids []string) []int {
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ids[order[a]] < ids[order[b]] })
	return order
}

// OrderItem — позиция заказа со снимком названия и цены на момент оформления.
type OrderItem struct {
	ProductID      string
	Name           string
	UnitPriceMinor int64
	Quantity       int64
}

// LineTotal возвращает стоимость позиции.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPriceMinor * i.Quantity
}

// Order — запись журнала заказов. После создания меняется только Status.
type Order struct {
	ID         string
	Buyer      Buyer
	Items      []OrderItem
	TotalMinor int64
	Status     OrderStatus
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ItemsTotal считает Σ unitPrice×quantity.
func ItemsTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}

// Transition переводит заказ в статус next или возвращает *TransitionError.
func (o *Order) Transition(next OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: next}
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// Clone возвращает копию заказа с собственным срезом позиций.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if err := o.Buyer.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrPriceNegative)
		}
	}
	if ItemsTotal(o.Items) != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	// Status == "" означает все видимые статусы.
	Status OrderStatus
	Limit  int
}

// Matches проверяет заказ на соответствие фильтру.
func (f OrderFilter) Matches(o Order) bool {
	if f.Status == "" {
		return o.Status.Visible()
	}
	return o.Status == f.Status
}
