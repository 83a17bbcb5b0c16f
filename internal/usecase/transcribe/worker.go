package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/auction-scribe/errors"
	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
	"github.com/johnquangdev/auction-scribe/internal/domain/repositories"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
)

// Phase is the worker loop's coarse state, reported over the control surface
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseLoading      Phase = "loading"
	PhaseTranscribing Phase = "transcribing"
	PhaseStopping     Phase = "stopping"
)

// Status is a point-in-time snapshot of the worker loop
type Status struct {
	Phase          Phase      `json:"phase"`
	Model          string     `json:"model"`
	SessionID      *uuid.UUID `json:"session_id,omitempty"`
	CurrentSegment int        `json:"current_segment,omitempty"`
	Completed      int        `json:"completed"`
	Errors         int        `json:"errors"`
	TotalPending   int64      `json:"total_pending"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
}

// WorkerOptions tunes one worker run
type WorkerOptions struct {
	// SessionID scopes claims to one session; nil drains the global pool
	SessionID *uuid.UUID
	// Limit bounds how many segments this run will transcribe; 0 is unbounded
	Limit int
	// ResetFailed resets error/skipped segments back to pending before the loop starts
	ResetFailed bool

	PollInterval time.Duration
	MaxIdlePolls int
	PathMapper   PathMapper
}

func (o *WorkerOptions) applyDefaults() {
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.MaxIdlePolls == 0 {
		o.MaxIdlePolls = 60
	}
}

// Worker drains the segment backlog: claim one pending segment at a time via
// the conditional-update protocol, transcribe it, finalize it, repeat. Any
// number of workers may run against the same backlog; the claim protocol
// guarantees each segment is processed exactly once.
type Worker struct {
	opts     WorkerOptions
	engine   Engine
	segments repositories.SegmentRepository
	sessions repositories.SessionRepository
	events   repositories.EventLogRepository
	signals  signal.Source
	logger   *zap.Logger

	mu          sync.Mutex
	status      Status
	stopRequest bool

	// sessionDirs caches session directories so pool-mode claims across many
	// sessions do not refetch the session row per segment
	sessionDirs map[uuid.UUID]string
}

// NewWorker creates a worker for one run of the backlog
func NewWorker(
	opts WorkerOptions,
	engine Engine,
	segments repositories.SegmentRepository,
	sessions repositories.SessionRepository,
	events repositories.EventLogRepository,
	signals signal.Source,
	logger *zap.Logger,
) *Worker {
	opts.applyDefaults()
	return &Worker{
		opts:        opts,
		engine:      engine,
		segments:    segments,
		sessions:    sessions,
		events:      events,
		signals:     signals,
		logger:      logger.With(zap.String("component", "transcription_worker")),
		status:      Status{Phase: PhaseIdle, Model: engine.Model(), SessionID: opts.SessionID},
		sessionDirs: make(map[uuid.UUID]string),
	}
}

// RequestStop asks the loop to finish the in-flight segment and exit
func (w *Worker) RequestStop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopRequest = true
	if w.status.Phase == PhaseIdle {
		w.status.Phase = PhaseStopping
	}
}

// Snapshot returns a copy of the current status
func (w *Worker) Snapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run drives the claim/transcribe loop until the backlog drains, the idle
// ceiling is reached, or a stop/cancel arrives. Segment-level failures are
// recorded and the loop continues; only infrastructure failures return an error.
func (w *Worker) Run(ctx context.Context) error {
	now := time.Now()
	w.setStatus(func(s *Status) {
		s.Phase = PhaseLoading
		s.StartedAt = &now
	})

	if w.opts.ResetFailed && w.opts.SessionID != nil {
		reset, err := w.segments.ResetForRetry(ctx, *w.opts.SessionID)
		if err != nil {
			return fmt.Errorf("reset failed segments: %w", err)
		}
		if reset > 0 {
			w.logger.Info("reset failed segments for retry", zap.Int64("count", reset))
		}
	}

	w.setStatus(func(s *Status) { s.Phase = PhaseIdle })
	w.logger.Info("worker started", zap.String("model", w.engine.Model()))

	idlePolls := 0
	completed := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if w.stopRequested(ctx) {
			w.setStatus(func(s *Status) { s.Phase = PhaseStopping })
			w.logger.Info("worker stopping on request",
				zap.Int("completed", w.Snapshot().Completed),
			)
			return nil
		}
		if w.opts.Limit > 0 && completed >= w.opts.Limit {
			w.logger.Info("worker reached segment limit", zap.Int("limit", w.opts.Limit))
			return nil
		}

		w.refreshPendingCount(ctx)

		seg, err := w.segments.ClaimNextPending(ctx, w.opts.SessionID)
		if err != nil {
			return fmt.Errorf("claim segment: %w", err)
		}
		if seg == nil {
			done, err := w.idleExit(ctx, &idlePolls)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.opts.PollInterval):
			}
			continue
		}

		idlePolls = 0
		w.setStatus(func(s *Status) {
			s.Phase = PhaseTranscribing
			s.CurrentSegment = seg.SegmentNumber
		})

		if err := w.processSegment(ctx, seg); err != nil {
			w.setStatus(func(s *Status) { s.Errors++ })
		} else {
			completed++
			w.setStatus(func(s *Status) { s.Completed++ })
		}
		w.setStatus(func(s *Status) {
			s.Phase = PhaseIdle
			s.CurrentSegment = 0
		})
	}
}

// processSegment transcribes one claimed segment and finalizes its status.
// A returned error means the segment was marked error or skipped; the caller
// keeps looping either way.
func (w *Worker) processSegment(ctx context.Context, seg *entities.Segment) error {
	dir, err := w.sessionDir(ctx, seg.SessionID)
	if err != nil {
		msg := apperrors.Truncate(fmt.Sprintf("session lookup failed: %v", err), 500)
		_ = w.segments.FinalizeTranscription(ctx, seg.ID, entities.TranscriptionStatusError, "", msg)
		return err
	}

	// A row with no audio filename can never be transcribed; joining "" below
	// would resolve to the audio directory itself and Stat would pass.
	if seg.FilenameAudio == "" {
		w.logger.Warn("segment has no audio filename, skipping",
			zap.Int("segment_number", seg.SegmentNumber),
		)
		if err := w.segments.MarkSkipped(ctx, seg.ID, "no audio filename recorded"); err != nil {
			w.logger.Error("failed to mark segment skipped", zap.Error(err))
		}
		w.logEvent(ctx, seg.SessionID, entities.LogLevelWarning, "segment_skipped",
			fmt.Sprintf("Segment %d skipped: no audio filename recorded", seg.SegmentNumber))
		return apperrors.ErrMissingAudio("(none)")
	}

	audioPath := w.opts.PathMapper.Resolve(filepath.Join(dir, "audio", seg.FilenameAudio))
	if _, err := os.Stat(audioPath); err != nil {
		appErr := apperrors.ErrMissingAudio(seg.FilenameAudio)
		w.logger.Warn("audio file missing, skipping segment",
			zap.Int("segment_number", seg.SegmentNumber),
			zap.String("path", audioPath),
		)
		if err := w.segments.MarkSkipped(ctx, seg.ID, appErr.Message); err != nil {
			w.logger.Error("failed to mark segment skipped", zap.Error(err))
		}
		w.logEvent(ctx, seg.SessionID, entities.LogLevelWarning, "segment_skipped",
			fmt.Sprintf("Segment %d skipped: %s", seg.SegmentNumber, appErr.Message))
		return appErr
	}

	w.logger.Info("transcribing segment",
		zap.Int("segment_number", seg.SegmentNumber),
		zap.String("file", seg.FilenameAudio),
	)

	text, err := w.engine.Transcribe(ctx, audioPath)
	if err != nil {
		msg := apperrors.Truncate(err.Error(), 500)
		if ferr := w.segments.FinalizeTranscription(ctx, seg.ID, entities.TranscriptionStatusError, "", msg); ferr != nil {
			w.logger.Error("failed to finalize errored segment", zap.Error(ferr))
		}
		w.logEvent(ctx, seg.SessionID, entities.LogLevelError, "transcription_error",
			fmt.Sprintf("Segment %d failed: %s", seg.SegmentNumber, msg))
		return apperrors.ErrTranscription(seg.SegmentNumber, err)
	}

	base := strings.TrimSuffix(seg.FilenameAudio, filepath.Ext(seg.FilenameAudio))
	transcriptName := base + ".txt"
	transcriptPath := w.opts.PathMapper.Resolve(filepath.Join(dir, "transcripts", transcriptName))
	if err := os.MkdirAll(filepath.Dir(transcriptPath), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	if err := os.WriteFile(transcriptPath, []byte(text), 0o644); err != nil {
		msg := apperrors.Truncate(fmt.Sprintf("write transcript: %v", err), 500)
		_ = w.segments.FinalizeTranscription(ctx, seg.ID, entities.TranscriptionStatusError, "", msg)
		return err
	}

	if err := w.segments.FinalizeTranscription(ctx, seg.ID, entities.TranscriptionStatusComplete, transcriptName, ""); err != nil {
		return fmt.Errorf("finalize segment %d: %w", seg.SegmentNumber, err)
	}

	w.logger.Info("segment transcribed",
		zap.Int("segment_number", seg.SegmentNumber),
		zap.String("transcript", transcriptName),
	)
	w.logEvent(ctx, seg.SessionID, entities.LogLevelInfo, "segment_transcribed",
		fmt.Sprintf("Segment %d transcribed: %s", seg.SegmentNumber, transcriptName))
	return nil
}

// idleExit decides whether an empty claim means the run is over. In session
// mode the worker exits once the session left its active states and nothing is
// pending; in either mode it gives up after the idle ceiling.
func (w *Worker) idleExit(ctx context.Context, idlePolls *int) (bool, error) {
	if w.opts.SessionID != nil {
		status, err := w.sessions.GetStatus(ctx, *w.opts.SessionID)
		if err != nil {
			return false, fmt.Errorf("read session status: %w", err)
		}
		if status != entities.SessionStatusRecording && status != entities.SessionStatusProcessing {
			pending, err := w.segments.CountPending(ctx, w.opts.SessionID)
			if err != nil {
				return false, fmt.Errorf("count pending: %w", err)
			}
			if pending == 0 {
				w.logger.Info("backlog drained, session inactive — worker done")
				return true, nil
			}
		}
	}

	*idlePolls++
	if *idlePolls >= w.opts.MaxIdlePolls {
		w.logger.Info("idle ceiling reached, exiting", zap.Int("idle_polls", *idlePolls))
		return true, nil
	}
	return false, nil
}

func (w *Worker) sessionDir(ctx context.Context, sessionID uuid.UUID) (string, error) {
	if dir, ok := w.sessionDirs[sessionID]; ok {
		return dir, nil
	}
	session, err := w.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", fmt.Errorf("session %s not found", sessionID)
	}
	if session.SessionDir == "" {
		return "", fmt.Errorf("session %s has no directory", sessionID)
	}
	w.sessionDirs[sessionID] = session.SessionDir
	return session.SessionDir, nil
}

func (w *Worker) stopRequested(ctx context.Context) bool {
	w.mu.Lock()
	stop := w.stopRequest
	w.mu.Unlock()
	if stop {
		return true
	}
	if w.opts.SessionID != nil {
		if cancel, err := w.signals.CancelRequested(ctx, *w.opts.SessionID); err == nil && cancel {
			return true
		}
	}
	return false
}

func (w *Worker) refreshPendingCount(ctx context.Context) {
	pending, err := w.segments.CountPending(ctx, w.opts.SessionID)
	if err != nil {
		w.logger.Warn("failed to count pending segments", zap.Error(err))
		return
	}
	w.setStatus(func(s *Status) { s.TotalPending = pending })
}

func (w *Worker) setStatus(fn func(*Status)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.status)
}

func (w *Worker) logEvent(ctx context.Context, sessionID uuid.UUID, level entities.LogLevel, eventType, message string) {
	if err := w.events.Append(ctx, sessionID, level, eventType, message); err != nil {
		w.logger.Warn("failed to persist event log", zap.Error(err))
	}
}
