package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// EventLogRepository appends and reads session history rows
type EventLogRepository struct {
	db *gorm.DB
}

// NewEventLogRepository creates a new event log repository
func NewEventLogRepository(db *gorm.DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

// Append inserts one event row for the session
func (r *EventLogRepository) Append(ctx context.Context, sessionID uuid.UUID, level entities.LogLevel, eventType, message string) error {
	entry := &entities.SessionEventLog{
		SessionID: sessionID,
		Level:     level,
		EventType: eventType,
		Message:   message,
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindBySession returns the most recent events for a session, newest first
func (r *EventLogRepository) FindBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*entities.SessionEventLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []*entities.SessionEventLog
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
