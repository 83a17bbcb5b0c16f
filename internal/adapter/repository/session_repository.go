package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// SessionRepository handles session data operations
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	return r.db.WithContext(ctx).Create(session).Error
}

// FindByID retrieves a session by ID
func (r *SessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Session, error) {
	var session entities.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Update updates a session
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	return r.db.WithContext(ctx).Save(session).Error
}

// UpdateStatus updates the session status
func (r *SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.SessionStatus) error {
	return r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// SetSessionDir records the workspace directory created for the session
func (r *SessionRepository) SetSessionDir(ctx context.Context, id uuid.UUID, dir string) error {
	return r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("id = ?", id).
		Update("session_dir", dir).Error
}

// UpdateCounters refreshes the aggregate segment counters on the session
func (r *SessionRepository) UpdateCounters(ctx context.Context, id uuid.UUID, totalSegments, totalDurationSec int) error {
	return r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_segments":     totalSegments,
			"total_duration_sec": totalDurationSec,
		}).Error
}

// GetStatus returns only the status column of a session
func (r *SessionRepository) GetStatus(ctx context.Context, id uuid.UUID) (entities.SessionStatus, error) {
	var session entities.Session
	if err := r.db.WithContext(ctx).
		Select("status").
		Where("id = ?", id).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return session.Status, nil
}
