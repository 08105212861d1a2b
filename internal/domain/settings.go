package domain

import (
	"strings"
	"time"
)

// Settings — единственная запись с настройками витрины.
type Settings struct {
	StoreName          string
	Currency           string
	PaymentDestination string
	UpdatedAt          time.Time
}

// DefaultSettings возвращает настройки для пустого хранилища.
func DefaultSettings() Settings {
	return Settings{
		StoreName: "Canteen",
		Currency:  "PHP",
	}
}

// Normalize обрезает пробелы и приводит код валюты к верхнему регистру.
func (s Settings) Normalize() Settings {
	s.StoreName = strings.TrimSpace(s.StoreName)
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	s.PaymentDestination = strings.TrimSpace(s.PaymentDestination)
	return s
}

// Validate требует название витрины и трёхбуквенный код валюты.
func (s Settings) Validate() error {
	if s.StoreName == "" || len(s.Currency) != 3 {
		return ErrSettingsInvalid
	}
	return nil
}
