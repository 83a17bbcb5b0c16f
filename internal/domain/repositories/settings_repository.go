package repositories

import (
	"context"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// SettingsRepository loads the global capture/transcription defaults
type SettingsRepository interface {
	Get(ctx context.Context) (*entities.TranscriptionSettings, error)
}
