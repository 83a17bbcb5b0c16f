package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionStatus represents the lifecycle state of a transcription session
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusRecording  SessionStatus = "recording"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusComplete   SessionStatus = "complete"
	SessionStatusStopped    SessionStatus = "stopped"
	SessionStatusError      SessionStatus = "error"
)

// Session represents one recording engagement against a live auction stream
type Session struct {
	ID          uuid.UUID     `json:"id" gorm:"type:uuid;primary_key"`
	AuctionName string        `json:"auction_name" gorm:"type:varchar(255);not null"`
	StreamURL   string        `json:"stream_url" gorm:"type:text;not null"`
	Status      SessionStatus `json:"status" gorm:"type:varchar(20);not null;default:'scheduled';index"`
	StopReason  *string       `json:"stop_reason,omitempty" gorm:"type:varchar(255)"`

	// Per-session overrides; nil means "use global settings"
	OverrideSegmentLength  *int `json:"override_segment_length,omitempty"`  // minutes
	OverrideSilenceTimeout *int `json:"override_silence_timeout,omitempty"` // minutes
	OverrideMaxDuration    *int `json:"override_max_duration,omitempty"`    // hours

	SessionDir       string `json:"session_dir" gorm:"type:text"`
	TotalSegments    int    `json:"total_segments" gorm:"default:0"`
	TotalDurationSec int    `json:"total_duration_sec" gorm:"default:0"`

	// Snapshot of the effective merged configuration, written at orchestration start
	ConfigSnapshot datatypes.JSON `json:"config_snapshot,omitempty" gorm:"type:jsonb"`

	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ActualStartTime *time.Time `json:"actual_start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Session) TableName() string {
	return "transcription_sessions"
}

// BeforeCreate generates the session ID application-side so tests can run
// against databases without uuid extensions.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// NewSession creates a new scheduled session
func NewSession(auctionName, streamURL string) *Session {
	return &Session{
		ID:          uuid.New(),
		AuctionName: auctionName,
		StreamURL:   streamURL,
		Status:      SessionStatusScheduled,
	}
}

// IsActive reports whether segments may still be produced or consumed.
// Workers keep polling while the session is recording or processing.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusRecording || s.Status == SessionStatusProcessing
}

// IsTerminal reports whether the session reached a final state
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case SessionStatusComplete, SessionStatusStopped, SessionStatusError:
		return true
	}
	return false
}

// MarkRecording transitions the session to recording and stamps the actual start
func (s *Session) MarkRecording() {
	s.Status = SessionStatusRecording
	now := time.Now()
	s.ActualStartTime = &now
}

// MarkProcessing transitions the session to processing (capture finished,
// transcription backlog still draining)
func (s *Session) MarkProcessing() {
	s.Status = SessionStatusProcessing
}

// MarkComplete finalizes the session with an optional stop reason
func (s *Session) MarkComplete(reason string) {
	s.Status = SessionStatusComplete
	if reason != "" {
		s.StopReason = &reason
	}
	now := time.Now()
	s.EndTime = &now
}

// MarkStopped finalizes a cancelled session
func (s *Session) MarkStopped(reason string) {
	s.Status = SessionStatusStopped
	s.StopReason = &reason
	now := time.Now()
	s.EndTime = &now
}

// MarkError finalizes a session that died to an orchestration failure
func (s *Session) MarkError(msg string) {
	s.Status = SessionStatusError
	truncated := msg
	if len(truncated) > 255 {
		truncated = truncated[:255]
	}
	s.StopReason = &truncated
	now := time.Now()
	s.EndTime = &now
}
