// Package cart — корзина покупателя: намерение купить, а не резерв.
// Проверки остатков здесь только подсказка, окончательно их делает оформление заказа.
package cart

import (
	"fmt"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// PriceLookup возвращает текущую цену товара в минимальных единицах.
type PriceLookup func(productID string) (int64, bool)

// Cart принадлежит одной сессии покупателя и не синхронизирован.
type Cart struct {
	qty   map[string]int64
	order []string
}

// New создаёт пустую корзину.
func New() *Cart {
	return &Cart{qty: make(map[string]int64)}
}

// Add добавляет qty единиц. stock — известный покупателю остаток товара.
func (c *Cart) Add(productID string, qty, stock int64) error {
	if qty <= 0 {
		return domain.ErrQuantityInvalid
	}
	inCart := c.qty[productID]
	if err := domain.CheckStockDelta(productID, max(stock-inCart, 0), -qty); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	c.set(productID, inCart+qty)
	return nil
}

// SetQuantity заменяет количество; qty <= 0 убирает строку.
func (c *Cart) SetQuantity(productID string, qty, stock int64) error {
	if qty <= 0 {
		c.Remove(productID)
		return nil
	}
	if err := domain.CheckStockDelta(productID, stock, -qty); err != nil {
		return fmt.Errorf("set cart quantity: %w", err)
	}
	c.set(productID, qty)
	return nil
}

// Remove убирает товар из корзины.
func (c *Cart) Remove(productID string) {
	if _, ok := c.qty[productID]; !ok {
		return
	}
	delete(c.qty, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Quantity возвращает количество товара в корзине.
func (c *Cart) Quantity(productID string) int64 {
	return c.qty[productID]
}

// Total считает сумму по текущим ценам. Товары без цены пропускаются.
func (c *Cart) Total(prices PriceLookup) int64 {
	var total int64
	for _, id := range c.order {
		price, ok := prices(id)
		if !ok {
			continue
		}
		total += price * c.qty[id]
	}
	return total
}

// Lines возвращает строки в порядке добавления.
func (c *Cart) Lines() []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(c.order))
	for _, id := range c.order {
		lines = append(lines, domain.CartLine{ProductID: id, Quantity: c.qty[id]})
	}
	return lines
}

// Len — число различных товаров.
func (c *Cart) Len() int {
	return len(c.order)
}

// Clear очищает корзину.
func (c *Cart) Clear() {
	c.qty = make(map[string]int64)
	c.order = nil
}

func (c *Cart) set(productID string, qty int64) {
	if _, ok := c.qty[productID]; !ok {
		c.order = append(c.order, productID)
	}
	c.qty[productID] = qty
}
