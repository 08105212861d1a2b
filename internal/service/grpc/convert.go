package grpcsvc

import (
	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/service/projection"
)

func toWireProduct(p domain.Product) *canteenv1.Product {
	return &canteenv1.Product{
		ID:          p.ID,
		Name:        p.Name,
		PriceMinor:  p.PriceMinor,
		Stock:       p.Stock,
		Description: p.Description,
		Image:       p.Image,
	}
}

func toWireOrder(o domain.Order) *canteenv1.Order {
	items := make([]*canteenv1.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, &canteenv1.OrderItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceMinor: item.UnitPriceMinor,
			Quantity:       item.Quantity,
		})
	}
	return &canteenv1.Order{
		ID: o.ID,
		Buyer: &canteenv1.Buyer{
			Name:          o.Buyer.Name,
			Contact:       o.Buyer.Contact,
			PaymentMethod: string(o.Buyer.PaymentMethod),
		},
		Items:      items,
		TotalMinor: o.TotalMinor,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func toWireSettings(s domain.Settings) *canteenv1.Settings {
	return &canteenv1.Settings{
		StoreName:          s.StoreName,
		Currency:           s.Currency,
		PaymentDestination: s.PaymentDestination,
	}
}

func fromWireBuyer(b *canteenv1.Buyer) domain.Buyer {
	if b == nil {
		return domain.Buyer{}
	}
	return domain.Buyer{
		Name:          b.Name,
		Contact:       b.Contact,
		PaymentMethod: domain.PaymentMethod(b.PaymentMethod),
	}
}

func fromWireLines(lines []*canteenv1.CartLine) []domain.CartLine {
	result := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if line == nil {
			continue
		}
		result = append(result, domain.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return result
}

func toWireStats(snap projection.Snapshot) *canteenv1.Stats {
	counts := make(map[string]int, len(snap.OrderCounts))
	for st, n := range snap.OrderCounts {
		counts[string(st)] = n
	}
	stock := make(map[string]int64, len(snap.Products))
	for _, p := range snap.Products {
		stock[p.ID] = p.Stock
	}
	return &canteenv1.Stats{
		RevenueMinor: snap.RevenueMinor,
		PendingMinor: snap.PendingMinor,
		OrderCounts:  counts,
		Stock:        stock,
	}
}
