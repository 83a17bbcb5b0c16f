package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// SegmentRepository handles segment data operations
type SegmentRepository struct {
	db *gorm.DB
}

// NewSegmentRepository creates a new segment repository
func NewSegmentRepository(db *gorm.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// Create creates a new segment row. The capturer calls this only after the
// capture process has survived the connection-check window.
func (r *SegmentRepository) Create(ctx context.Context, segment *entities.Segment) error {
	if segment == nil {
		return errors.New("segment cannot be nil")
	}
	return r.db.WithContext(ctx).Create(segment).Error
}

// FindByID retrieves a segment by ID
func (r *SegmentRepository) FindByID(ctx context.Context, id uint) (*entities.Segment, error) {
	var segment entities.Segment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&segment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &segment, nil
}

// FindBySession retrieves all segments for a session in segment order
func (r *SegmentRepository) FindBySession(ctx context.Context, sessionID uuid.UUID) ([]*entities.Segment, error) {
	var segments []*entities.Segment
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("segment_number ASC").
		Find(&segments).Error; err != nil {
		return nil, err
	}
	return segments, nil
}

// FinalizeRecording flips the capture-side status and records realized
// duration and size, or the failure message.
func (r *SegmentRepository) FinalizeRecording(ctx context.Context, id uint, status entities.RecordingStatus, durationSec int, sizeBytes int64, errMsg string) error {
	updates := map[string]interface{}{
		"recording_status": status,
		"completed_at":     time.Now(),
	}
	if status == entities.RecordingStatusComplete {
		updates["duration_seconds"] = durationSec
		updates["file_size_bytes"] = sizeBytes
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	return r.db.WithContext(ctx).
		Model(&entities.Segment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ClaimNextPending atomically claims one pending, fully recorded segment.
//
// The claim is a compare-and-set: select the first candidate, then flip it to
// transcribing only if it is still pending, and check RowsAffected. When two
// workers race for the same row exactly one conditional update succeeds; the
// loser sees zero rows affected and reports "no segment" so its outer loop
// re-polls. Do not replace this with an unconditional update-then-read.
func (r *SegmentRepository) ClaimNextPending(ctx context.Context, sessionID *uuid.UUID) (*entities.Segment, error) {
	query := r.db.WithContext(ctx).
		Where("recording_status = ?", entities.RecordingStatusComplete).
		Where("transcription_status = ?", entities.TranscriptionStatusPending)

	if sessionID != nil {
		query = query.Where("session_id = ?", *sessionID).Order("segment_number ASC")
	} else {
		query = query.Order("session_id ASC, segment_number ASC")
	}

	var candidate entities.Segment
	if err := query.First(&candidate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	res := r.db.WithContext(ctx).
		Model(&entities.Segment{}).
		Where("id = ? AND transcription_status = ?", candidate.ID, entities.TranscriptionStatusPending).
		Updates(map[string]interface{}{
			"transcription_status": entities.TranscriptionStatusTranscribing,
			"claimed_at":           time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Another worker won the race; the caller re-polls
		return nil, nil
	}

	return r.FindByID(ctx, candidate.ID)
}

// FinalizeTranscription flips the transcription-side status of a claimed segment
func (r *SegmentRepository) FinalizeTranscription(ctx context.Context, id uint, status entities.TranscriptionStatus, transcriptFilename, errMsg string) error {
	updates := map[string]interface{}{
		"transcription_status": status,
	}
	if transcriptFilename != "" {
		updates["filename_transcript"] = transcriptFilename
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	return r.db.WithContext(ctx).
		Model(&entities.Segment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkSkipped marks a segment skipped with a diagnostic message
func (r *SegmentRepository) MarkSkipped(ctx context.Context, id uint, reason string) error {
	return r.db.WithContext(ctx).
		Model(&entities.Segment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"transcription_status": entities.TranscriptionStatusSkipped,
			"error_message":        reason,
		}).Error
}

// ResetForRetry resets error/skipped segments of a session back to pending so
// a manual worker run can pick them up again. Returns the number of rows reset.
func (r *SegmentRepository) ResetForRetry(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entities.Segment{}).
		Where("session_id = ?", sessionID).
		Where("recording_status = ?", entities.RecordingStatusComplete).
		Where("transcription_status IN ?", []entities.TranscriptionStatus{
			entities.TranscriptionStatusError,
			entities.TranscriptionStatusSkipped,
		}).
		Updates(map[string]interface{}{
			"transcription_status": entities.TranscriptionStatusPending,
			"error_message":        nil,
		})
	return res.RowsAffected, res.Error
}

// CountPending counts claimable segments, session-scoped or global
func (r *SegmentRepository) CountPending(ctx context.Context, sessionID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&entities.Segment{}).
		Where("recording_status = ?", entities.RecordingStatusComplete).
		Where("transcription_status = ?", entities.TranscriptionStatusPending)
	if sessionID != nil {
		query = query.Where("session_id = ?", *sessionID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountUnfinished counts segments that still need a transcription outcome,
// including rows a worker has already claimed. A claimed segment is invisible
// to CountPending but is very much still in flight.
func (r *SegmentRepository) CountUnfinished(ctx context.Context, sessionID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&entities.Segment{}).
		Where("recording_status = ?", entities.RecordingStatusComplete).
		Where("transcription_status IN ?", []entities.TranscriptionStatus{
			entities.TranscriptionStatusPending,
			entities.TranscriptionStatusTranscribing,
		})
	if sessionID != nil {
		query = query.Where("session_id = ?", *sessionID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SessionTotals returns the segment count and summed duration for a session
func (r *SegmentRepository) SessionTotals(ctx context.Context, sessionID uuid.UUID) (int, int, error) {
	type totals struct {
		Cnt int
		Dur int
	}
	var t totals
	err := r.db.WithContext(ctx).
		Model(&entities.Segment{}).
		Select("COUNT(*) AS cnt, COALESCE(SUM(duration_seconds), 0) AS dur").
		Where("session_id = ?", sessionID).
		Scan(&t).Error
	if err != nil {
		return 0, 0, err
	}
	return t.Cnt, t.Dur, nil
}
