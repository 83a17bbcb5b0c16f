package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// EventLogRepository appends session history rows
type EventLogRepository interface {
	Append(ctx context.Context, sessionID uuid.UUID, level entities.LogLevel, eventType, message string) error
	FindBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*entities.SessionEventLog, error)
}
