// Package projection — производные данные только для чтения: остатки, выручка, списки заказов.
package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// ProductView — товар в витрине с текущим доступным остатком.
type ProductView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Stock      int64  `json:"stock"`
}

// Snapshot — согласованный на момент чтения срез проекций.
type Snapshot struct {
	Products     []ProductView              `json:"products"`
	RevenueMinor int64                      `json:"revenue_minor"`
	PendingMinor int64                      `json:"pending_minor"`
	OrderCounts  map[domain.OrderStatus]int `json:"order_counts"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}

// Views вычисляет проекции по зафиксированному состоянию хранилищ.
type Views struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	now      func() time.Time
}

// NewViews создаёт Views.
func NewViews(products domain.ProductRepository, orders domain.OrderRepository) *Views {
	return &Views{
		products: products,
		orders:   orders,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AvailableStock — остаток по каждому товару. Резервов нет, поэтому это сам stock.
func (v *Views) AvailableStock(ctx context.Context) (map[string]int64, error) {
	products, err := v.products.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	stock := make(map[string]int64, len(products))
	for _, p := range products {
		stock[p.ID] = p.Stock
	}
	return stock, nil
}

// Revenue — сумма итогов выполненных заказов.
func (v *Views) Revenue(ctx context.Context) (int64, error) {
	completed, err := v.orders.List(ctx, domain.OrderFilter{Status: domain.OrderStatusCompleted})
	if err != nil {
		return 0, fmt.Errorf("list completed orders: %w", err)
	}
	var total int64
	for _, o := range completed {
		total += o.TotalMinor
	}
	return total, nil
}

// Orders возвращает заказы в статусе status, новые первыми. Пустой статус — все видимые.
func (v *Views) Orders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	orders, err := v.orders.List(ctx, domain.OrderFilter{Status: status})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Snapshot собирает все проекции за одно чтение каталога и одно чтение журнала.
func (v *Views) Snapshot(ctx context.Context) (Snapshot, error) {
	products, err := v.products.List(ctx, "")
	if err != nil {
		return Snapshot{}, fmt.Errorf("list products: %w", err)
	}
	orders, err := v.orders.List(ctx, domain.OrderFilter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("list orders: %w", err)
	}

	snap := Snapshot{
		Products: make([]ProductView, 0, len(products)),
		OrderCounts: map[domain.OrderStatus]int{
			domain.OrderStatusPending:   0,
			domain.OrderStatusCompleted: 0,
			domain.OrderStatusCanceled:  0,
		},
		GeneratedAt: v.now(),
	}
	for _, p := range products {
		snap.Products = append(snap.Products, ProductView{ID: p.ID, Name: p.Name, PriceMinor: p.PriceMinor, Stock: p.Stock})
	}
	for _, o := range orders {
		snap.OrderCounts[o.Status]++
		switch o.Status {
		case domain.OrderStatusCompleted:
			snap.RevenueMinor += o.TotalMinor
		case domain.OrderStatusPending:
			snap.PendingMinor += o.TotalMinor
		}
	}
	return snap, nil
}
