package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

type productView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceMinor  int64  `json:"price_minor"`
	Stock       int64  `json:"stock"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

type buyerView struct {
	Name          string `json:"name"`
	Contact       string `json:"contact"`
	PaymentMethod string `json:"payment_method"`
}

type orderItemView struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int64  `json:"quantity"`
}

type orderView struct {
	ID         string          `json:"id"`
	Buyer      buyerView       `json:"buyer"`
	Items      []orderItemView `json:"items"`
	TotalMinor int64           `json:"total_minor"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toProductView(p domain.Product) productView {
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		PriceMinor:  p.PriceMinor,
		Stock:       p.Stock,
		Description: p.Description,
		Image:       p.Image,
	}
}

func toOrderView(o domain.Order) orderView {
	items := make([]orderItemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemView{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceMinor: item.UnitPriceMinor,
			Quantity:       item.Quantity,
		})
	}
	return orderView{
		ID: o.ID,
		Buyer: buyerView{
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
