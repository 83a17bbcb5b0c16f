package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// SessionRepository defines session data operations
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.SessionStatus) error
	SetSessionDir(ctx context.Context, id uuid.UUID, dir string) error
	UpdateCounters(ctx context.Context, id uuid.UUID, totalSegments, totalDurationSec int) error
	GetStatus(ctx context.Context, id uuid.UUID) (entities.SessionStatus, error)
}
