package domain

import (
	"strings"
	"time"
)

// Product — позиция каталога. Stock — единственное поле, которое меняет ядро продаж.
type Product struct {
	ID          string
	Name        string
	PriceMinor  int64
	Stock       int64
	Description string
	// Image — непрозрачная ссылка на изображение, владелец — сервис загрузки.
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductUpdate описывает правку товара администратором.
// Stock == nil оставляет остаток без изменений.
type ProductUpdate struct {
	ID          string
	Name        string
	PriceMinor  int64
	Description string
	Image       string
	Stock       *int64
}

// Validate проверяет поля, которыми владеет администратор.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrProductNameRequired
	}
	if p.PriceMinor < 0 {
		return ErrPriceNegative
	}
	if p.Stock < 0 {
		return ErrStockNegative
	}
	return nil
}

// Validate проверяет правку товара перед записью.
func (u ProductUpdate) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return ErrProductNameRequired
	}
	if u.PriceMinor < 0 {
		return ErrPriceNegative
	}
	if u.Stock != nil && *u.Stock < 0 {
		return ErrStockNegative
	}
	return nil
}

// Apply переносит правку на товар и возвращает обновлённую копию.
func (u ProductUpdate) Apply(p Product, now time.Time) Product {
	p.Name = u.Name
	p.PriceMinor = u.PriceMinor
	p.Description = u.Description
	p.Image = u.Image
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	p.UpdatedAt = now
	return p
}

// MatchesQuery — регистронезависимый поиск подстроки в названии.
func (p Product) MatchesQuery(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), strings.ToLower(query))
}

// CheckStockDelta проверяет, что остаток после применения delta не уйдёт в минус.
func CheckStockDelta(productID string, current, delta int64) error {
	if current+delta < 0 {
		return &InsufficientStockError{ProductID: productID, Requested: -delta, Available: current}
	}
	return nil
}
