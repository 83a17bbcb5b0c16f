package entities

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents the capture-side state of a segment
type RecordingStatus string

const (
	RecordingStatusRecording RecordingStatus = "recording"
	RecordingStatusComplete  RecordingStatus = "complete"
	RecordingStatusError     RecordingStatus = "error"
)

// TranscriptionStatus represents the transcription-side state of a segment.
// Transitions: pending → transcribing → complete|error, or pending → skipped.
// The only backward path is the explicit reset of error/skipped → pending.
type TranscriptionStatus string

const (
	TranscriptionStatusPending      TranscriptionStatus = "pending"
	TranscriptionStatusTranscribing TranscriptionStatus = "transcribing"
	TranscriptionStatusComplete     TranscriptionStatus = "complete"
	TranscriptionStatusError        TranscriptionStatus = "error"
	TranscriptionStatusSkipped      TranscriptionStatus = "skipped"
)

// Segment represents one fixed-duration chunk of captured audio.
// A row exists only for capture attempts that survived the connection-check
// window; failed connection probes never create segments.
type Segment struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID     uuid.UUID `json:"session_id" gorm:"type:uuid;not null;index:idx_segments_session"`
	SegmentNumber int       `json:"segment_number" gorm:"not null;index:idx_segments_session"`

	FilenameAudio      string  `json:"filename_audio" gorm:"type:varchar(255)"`
	FilenameTranscript *string `json:"filename_transcript,omitempty" gorm:"type:varchar(255)"`

	RecordingStatus     RecordingStatus     `json:"recording_status" gorm:"type:varchar(20);not null;default:'recording';index"`
	TranscriptionStatus TranscriptionStatus `json:"transcription_status" gorm:"type:varchar(20);not null;default:'pending';index"`

	DurationSeconds int     `json:"duration_seconds" gorm:"default:0"`
	FileSizeBytes   int64   `json:"file_size_bytes" gorm:"default:0"`
	ErrorMessage    *string `json:"error_message,omitempty" gorm:"type:varchar(500)"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Segment) TableName() string {
	return "transcription_segments"
}

// NewSegment creates a segment row for a capture attempt that is confirmed live
func NewSegment(sessionID uuid.UUID, number int, filenameAudio string) *Segment {
	return &Segment{
		SessionID:           sessionID,
		SegmentNumber:       number,
		FilenameAudio:       filenameAudio,
		RecordingStatus:     RecordingStatusRecording,
		TranscriptionStatus: TranscriptionStatusPending,
		StartedAt:           time.Now(),
	}
}

// IsClaimable reports whether a worker may claim this segment
func (s *Segment) IsClaimable() bool {
	return s.RecordingStatus == RecordingStatusComplete &&
		s.TranscriptionStatus == TranscriptionStatusPending
}
