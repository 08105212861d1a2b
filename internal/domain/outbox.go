package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы агрегатов в outbox.
const (
	AggregateOrder   = "order"
	AggregateProduct = "product"
)

// Типы событий, которые пишутся в outbox вместе с изменением состояния.
const (
	EventOrderPlaced         = "order.placed"
	EventOrderCompleted      = "order.completed"
	EventOrderCanceled       = "order.canceled"
	EventOrderDeleted        = "order.deleted"
	EventProductStockChanged = "product.stock_changed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OrderEventPayload — тело событий заказа.
type OrderEventPayload struct {
	OrderID    string      `json:"order_id"`
	Status     OrderStatus `json:"status"`
	TotalMinor int64       `json:"total_minor"`
	Items      []StockLine `json:"items,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// StockLine — изменение остатка одного товара.
type StockLine struct {
	ProductID string `json:"product_id"`
	Delta     int64  `json:"delta"`
}

// ProductStockPayload — тело события изменения остатка.
type ProductStockPayload struct {
	ProductID  string    `json:"product_id"`
	Delta      int64     `json:"delta"`
	Stock      int64     `json:"stock"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewOrderEvent собирает outbox-сообщение о заказе. sign задаёт знак дельт остатков:
// -1 для оформления, +1 для отмены, 0 если остатки не менялись.
func NewOrderEvent(eventType string, order Order, sign int64, now time.Time) (OutboxMessage, error) {
	payload := OrderEventPayload{
		OrderID:    order.ID,
		Status:     order.Status,
		TotalMinor: order.TotalMinor,
		OccurredAt: now,
	}
	if sign != 0 {
		payload.Items = make([]StockLine, 0, len(order.Items))
		for _, item := range order.Items {
			payload.Items = append(payload.Items, StockLine{ProductID: item.ProductID, Delta: sign * item.Quantity})
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}

// NewStockChangedEvent собирает outbox-сообщение о ручном изменении остатка.
func NewStockChangedEvent(productID string, delta, stock int64, now time.Time) (OutboxMessage, error) {
	body, err := json.Marshal(ProductStockPayload{
		ProductID:  productID,
		Delta:      delta,
		Stock:      stock,
		OccurredAt: now,
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", EventProductStockChanged, err)
	}
	return OutboxMessage{
		AggregateType: AggregateProduct,
		AggregateID:   productID,
		EventType:     EventProductStockChanged,
		Payload:       body,
	}, nil
}
