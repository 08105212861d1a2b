package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

type settingsRepositoryInMemory struct {
	mu       sync.RWMutex
	settings domain.Settings
}

// NewSettingsRepository создаёт хранилище настроек со значениями по умолчанию.
func NewSettingsRepository() domain.SettingsRepository {
	return &settingsRepositoryInMemory{settings: domain.DefaultSettings()}
}

func (r *settingsRepositoryInMemory) Get(_ context.Context) (domain.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings, nil
}

func (r *settingsRepositoryInMemory) Save(_ context.Context, settings domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
	return nil
}

var _ domain.SettingsRepository = (*settingsRepositoryInMemory)(nil)
