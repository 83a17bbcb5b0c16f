package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// SegmentRepository defines segment data operations, including the atomic
// claim protocol shared by every transcription worker.
type SegmentRepository interface {
	Create(ctx context.Context, segment *entities.Segment) error
	FindByID(ctx context.Context, id uint) (*entities.Segment, error)
	FindBySession(ctx context.Context, sessionID uuid.UUID) ([]*entities.Segment, error)

	// FinalizeRecording flips the capture-side status of a segment and records
	// the realized duration and size (or an error message).
	FinalizeRecording(ctx context.Context, id uint, status entities.RecordingStatus, durationSec int, sizeBytes int64, errMsg string) error

	// ClaimNextPending atomically claims one pending segment whose recording
	// is complete. sessionID scopes the claim to one session; nil claims from
	// the global pool ordered by (session, segment number). Returns nil when
	// no segment is claimable or the conditional update lost a race.
	ClaimNextPending(ctx context.Context, sessionID *uuid.UUID) (*entities.Segment, error)

	// FinalizeTranscription flips the transcription-side status of a claimed segment
	FinalizeTranscription(ctx context.Context, id uint, status entities.TranscriptionStatus, transcriptFilename, errMsg string) error

	// MarkSkipped marks a segment skipped with a diagnostic. Skipped segments
	// are not retried automatically.
	MarkSkipped(ctx context.Context, id uint, reason string) error

	// ResetForRetry is the explicit external reset path: error/skipped → pending
	ResetForRetry(ctx context.Context, sessionID uuid.UUID) (int64, error)

	CountPending(ctx context.Context, sessionID *uuid.UUID) (int64, error)

	// CountUnfinished counts segments still owed a transcription outcome:
	// pending rows plus rows a worker has claimed but not finalized. The drain
	// loop uses this so an in-flight segment counts as backlog.
	CountUnfinished(ctx context.Context, sessionID *uuid.UUID) (int64, error)

	SessionTotals(ctx context.Context, sessionID uuid.UUID) (count int, durationSec int, err error)
}
