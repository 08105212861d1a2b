package canteenv1

import "time"

// Product — позиция каталога.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceMinor  int64  `json:"price_minor"`
	Stock       int64  `json:"stock"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Buyer — данные покупателя.
type Buyer struct {
	Name          string `json:"name"`
	Contact       string `json:"contact"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// CartLine — строка корзины.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// OrderItem — позиция заказа со снимком названия и цены.
type OrderItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int64  `json:"quantity"`
}

// Order — заказ.
type Order struct {
	ID         string       `json:"id"`
	Buyer      *Buyer       `json:"buyer"`
	Items      []*OrderItem `json:"items"`
	TotalMinor int64        `json:"total_minor"`
	Status     string       `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Settings — настройки витрины.
type Settings struct {
	StoreName          string `json:"store_name"`
	Currency           string `json:"currency"`
	PaymentDestination string `json:"payment_destination,omitempty"`
}

type ListProductsRequest struct {
	Query string `json:"query,omitempty"`
}

type ListProductsResponse struct {
	Products []*Product `json:"products"`
}

type CheckoutRequest struct {
	Buyer *Buyer      `json:"buyer"`
	Lines []*CartLine `json:"lines"`
}

type CheckoutResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order *Order `json:"order"`
}

type GetSettingsRequest struct{}

type SettingsResponse struct {
	Settings *Settings `json:"settings"`
}

// UpsertProductRequest — пустой ID создаёт товар. Stock == nil не трогает остаток.
type UpsertProductRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	PriceMinor  int64  `json:"price_minor"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Stock       *int64 `json:"stock,omitempty"`
}

type UpsertProductResponse struct {
	ID      string   `json:"id"`
	Created bool     `json:"created"`
	Product *Product `json:"product"`
}

type DeleteProductRequest struct {
	ProductID string `json:"product_id"`
}

type DeleteProductResponse struct{}

type AdjustStockRequest struct {
	ProductID string `json:"product_id"`
	Delta     int64  `json:"delta"`
}

type AdjustStockResponse struct {
	ProductID string `json:"product_id"`
	Stock     int64  `json:"stock"`
}

type ListOrdersRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

// OrderActionRequest — запрос MarkCompleted, CancelOrder и DeleteOrder.
type OrderActionRequest struct {
	OrderID string `json:"order_id"`
}

type OrderActionResponse struct {
	Order *Order `json:"order,omitempty"`
}

type GetStatsRequest struct{}

// Stats — выручка, сумма ожидающих заказов, число заказов по статусам и остатки.
type Stats struct {
	RevenueMinor int64            `json:"revenue_minor"`
	PendingMinor int64            `json:"pending_minor"`
	OrderCounts  map[string]int   `json:"order_counts"`
	Stock        map[string]int64 `json:"stock"`
}

type UpdateSettingsRequest struct {
	Settings *Settings `json:"settings"`
}
