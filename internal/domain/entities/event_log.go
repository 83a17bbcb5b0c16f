package entities

import (
	"time"

	"github.com/google/uuid"
)

// LogLevel classifies a session event log entry
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// SessionEventLog is the persisted audit trail of a session. Every state
// transition and failure in the capture/transcription pipeline appends a row,
// so the history of a session can be reconstructed entirely from the store.
type SessionEventLog struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID uuid.UUID `json:"session_id" gorm:"type:uuid;not null;index"`
	Level     LogLevel  `json:"level" gorm:"type:varchar(10);not null"`
	EventType string    `json:"event_type" gorm:"type:varchar(50);not null"`
	Message   string    `json:"message" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (SessionEventLog) TableName() string {
	return "transcription_logs"
}
