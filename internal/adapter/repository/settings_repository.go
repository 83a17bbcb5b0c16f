package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// SettingsRepository loads the singleton global settings row
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the global settings row
func (r *SettingsRepository) Get(ctx context.Context) (*entities.TranscriptionSettings, error) {
	var settings entities.TranscriptionSettings
	if err := r.db.WithContext(ctx).First(&settings, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("global transcription settings not found")
		}
		return nil, err
	}
	return &settings, nil
}
