package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// settingsRepository хранит одну строку settings с id = 1.
type settingsRepository struct {
	q querier
}

// NewSettingsRepository создаёт PostgreSQL-реализацию SettingsRepository.
func NewSettingsRepository(store *Store) domain.SettingsRepository {
	return store.Settings()
}

// Get возвращает сохранённые настройки или значения по умолчанию, если строки ещё нет.
func (r *settingsRepository) Get(ctx context.Context) (domain.Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var settings domain.Settings
	err := r.q.QueryRowContext(ctx, `
		SELECT store_name, currency, payment_destination, updated_at
		FROM settings
		WHERE id = 1
	`).Scan(&settings.StoreName, &settings.Currency, &settings.PaymentDestination, &settings.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("select settings: %w", err)
	}
	return settings, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings domain.Settings) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO settings (id, store_name, currency, payment_destination, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET store_name = EXCLUDED.store_name,
		    currency = EXCLUDED.currency,
		    payment_destination = EXCLUDED.payment_destination,
		    updated_at = EXCLUDED.updated_at
	`, settings.StoreName, settings.Currency, settings.PaymentDestination, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

var _ domain.SettingsRepository = (*settingsRepository)(nil)
