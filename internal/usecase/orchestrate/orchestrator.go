package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	apperrors "github.com/johnquangdev/auction-scribe/errors"
	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
	"github.com/johnquangdev/auction-scribe/internal/domain/repositories"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
)

// TranscriptArchiver pushes the master transcript to long-term storage.
// Nil archiver means archiving is disabled.
type TranscriptArchiver interface {
	UploadTranscript(ctx context.Context, sessionID, localPath string) (string, error)
}

// Options tunes the supervision loop
type Options struct {
	MonitorInterval time.Duration
	CounterRefresh  time.Duration
	TerminateGrace  time.Duration
	// DrainTimeout bounds how long the orchestrator waits for the worker to
	// clear the backlog after capture ends
	DrainTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.MonitorInterval == 0 {
		o.MonitorInterval = time.Second
	}
	if o.CounterRefresh == 0 {
		o.CounterRefresh = 30 * time.Second
	}
	if o.TerminateGrace == 0 {
		o.TerminateGrace = 5 * time.Second
	}
	if o.DrainTimeout == 0 {
		o.DrainTimeout = 30 * time.Minute
	}
}

// Orchestrator supervises one session end to end: it prepares the session
// workspace, launches the capturer and worker children, watches for terminal
// conditions, drains the transcription backlog, merges the master transcript,
// and finalizes the session row. Every exit path leaves the session in a
// terminal status.
type Orchestrator struct {
	opts     Options
	sessions repositories.SessionRepository
	segments repositories.SegmentRepository
	settings repositories.SettingsRepository
	events   repositories.EventLogRepository
	signals  signal.Source
	launcher Launcher
	archiver TranscriptArchiver
	logger   *zap.Logger
}

// NewOrchestrator wires a session supervisor
func NewOrchestrator(
	opts Options,
	sessions repositories.SessionRepository,
	segments repositories.SegmentRepository,
	settings repositories.SettingsRepository,
	events repositories.EventLogRepository,
	signals signal.Source,
	launcher Launcher,
	archiver TranscriptArchiver,
	logger *zap.Logger,
) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		opts:     opts,
		sessions: sessions,
		segments: segments,
		settings: settings,
		events:   events,
		signals:  signals,
		launcher: launcher,
		archiver: archiver,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// Run supervises one session to completion
func (o *Orchestrator) Run(ctx context.Context, sessionID uuid.UUID) error {
	logger := o.logger.With(zap.String("session_id", sessionID.String()))

	session, cfg, err := o.prepare(ctx, sessionID)
	if err != nil {
		o.failSession(ctx, sessionID, err)
		return apperrors.ErrOrchestrationFatal(err)
	}

	if err := o.supervise(ctx, session, cfg, logger); err != nil {
		o.failSession(ctx, sessionID, err)
		return apperrors.ErrOrchestrationFatal(err)
	}
	return nil
}

// prepare loads the session, merges configuration, builds the workspace, and
// moves the session to recording.
func (o *Orchestrator) prepare(ctx context.Context, sessionID uuid.UUID) (*entities.Session, entities.EffectiveConfig, error) {
	var cfg entities.EffectiveConfig

	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, cfg, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, cfg, fmt.Errorf("session %s not found", sessionID)
	}
	if session.IsTerminal() {
		return nil, cfg, fmt.Errorf("session %s already terminal (%s)", sessionID, session.Status)
	}

	settings, err := o.settings.Get(ctx)
	if err != nil {
		return nil, cfg, fmt.Errorf("load settings: %w", err)
	}
	cfg = entities.MergeConfig(session, settings)

	// A stale signal from a previous run must not stop this one
	if err := o.signals.Clear(ctx, sessionID); err != nil {
		return nil, cfg, fmt.Errorf("clear stale signals: %w", err)
	}

	session.MarkRecording()
	start := *session.ActualStartTime

	session.SessionDir = BuildSessionDir(cfg.BaseArchiveDir, cfg.FolderStructure, start, session.AuctionName)
	if err := PrepareWorkspace(session.SessionDir, cfg); err != nil {
		return nil, cfg, err
	}

	if snapshot, err := json.Marshal(cfg); err == nil {
		session.ConfigSnapshot = datatypes.JSON(snapshot)
	}
	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, cfg, fmt.Errorf("update session: %w", err)
	}

	o.logEvent(ctx, sessionID, entities.LogLevelInfo, "session_started",
		fmt.Sprintf("Session started: %s", session.SessionDir))
	return session, cfg, nil
}

// supervise runs the monitor loop over the two children. Terminal conditions
// are checked in strict priority order each tick: cancel beats stop beats the
// duration ceiling beats natural capturer exit.
func (o *Orchestrator) supervise(ctx context.Context, session *entities.Session, cfg entities.EffectiveConfig, logger *zap.Logger) error {
	capturer, err := o.launcher.StartCapturer(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("start capturer: %w", err)
	}
	worker, err := o.launcher.StartWorker(ctx, session.ID)
	if err != nil {
		_ = capturer.Terminate(o.opts.TerminateGrace)
		return fmt.Errorf("start worker: %w", err)
	}
	logger.Info("children launched")

	maxDuration := time.Duration(cfg.MaxSessionHours) * time.Hour
	started := time.Now()
	lastRefresh := started

	for {
		select {
		case <-ctx.Done():
			_ = capturer.Kill()
			_ = worker.Kill()
			return ctx.Err()
		case <-time.After(o.opts.MonitorInterval):
		}

		if time.Since(lastRefresh) >= o.opts.CounterRefresh {
			o.refreshCounters(ctx, session.ID)
			lastRefresh = time.Now()
		}

		// Priority 1: cancel discards the session immediately
		if cancelled, err := o.signals.CancelRequested(ctx, session.ID); err == nil && cancelled {
			logger.Info("cancel requested, killing children")
			_ = capturer.Terminate(o.opts.TerminateGrace)
			_ = worker.Terminate(o.opts.TerminateGrace)
			return o.finalizeStopped(ctx, session.ID, "Cancelled by user")
		}

		// Priority 2: stop ends capture but drains the backlog
		if stop, err := o.signals.StopRequested(ctx, session.ID); err == nil && stop {
			logger.Info("stop requested, ending capture")
			_ = capturer.Terminate(o.opts.TerminateGrace)
			return o.drainAndComplete(ctx, session.ID, worker, cfg, "Stopped by user")
		}

		// Priority 3: session duration ceiling
		if maxDuration > 0 && time.Since(started) >= maxDuration {
			logger.Info("maximum session duration reached")
			o.logEvent(ctx, session.ID, entities.LogLevelWarning, "max_duration",
				fmt.Sprintf("Maximum duration of %dh reached", cfg.MaxSessionHours))
			_ = capturer.Terminate(o.opts.TerminateGrace)
			return o.drainAndComplete(ctx, session.ID, worker, cfg, "Maximum duration reached")
		}

		// Priority 4: capturer finished on its own (stream ended, disk guard,
		// or the retry ceiling). Either way the recording phase is over.
		if capturer.Exited() {
			reason := "Recording finished"
			if err := capturer.Wait(); err != nil {
				reason = "Recording ended with error"
				o.logEvent(ctx, session.ID, entities.LogLevelWarning, "capturer_exit",
					fmt.Sprintf("Capturer exited with error: %v", err))
			}
			logger.Info("capturer exited", zap.String("reason", reason))
			return o.drainAndComplete(ctx, session.ID, worker, cfg, reason)
		}

		// The worker dying mid-session is recoverable: segments keep queueing
		// and a fresh worker picks the backlog up.
		if worker.Exited() {
			logger.Warn("worker exited early, relaunching")
			worker, err = o.launcher.StartWorker(ctx, session.ID)
			if err != nil {
				return fmt.Errorf("relaunch worker: %w", err)
			}
		}
	}
}

// drainAndComplete moves the session to processing, waits for the backlog to
// clear, merges the master transcript, and finalizes the session.
func (o *Orchestrator) drainAndComplete(ctx context.Context, sessionID uuid.UUID, worker Child, cfg entities.EffectiveConfig, reason string) error {
	if err := o.sessions.UpdateStatus(ctx, sessionID, entities.SessionStatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	o.logEvent(ctx, sessionID, entities.LogLevelInfo, "processing",
		"Capture ended, draining transcription backlog")

	deadline := time.Now().Add(o.opts.DrainTimeout)
	for {
		// A claimed segment is still backlog: terminating the worker while it
		// holds a transcribing row would discard a result mid-computation and
		// strand the row. Only an empty unfinished count (or the drain
		// deadline) releases the worker.
		unfinished, err := o.segments.CountUnfinished(ctx, &sessionID)
		if err != nil {
			return fmt.Errorf("count unfinished: %w", err)
		}
		if unfinished == 0 {
			if !worker.Exited() {
				// Worker is idle; let it take its own exit path
				_ = worker.Terminate(o.opts.TerminateGrace)
			}
			break
		}
		if time.Now().After(deadline) {
			o.logEvent(ctx, sessionID, entities.LogLevelWarning, "drain_timeout",
				fmt.Sprintf("Backlog drain timed out with %d segments unfinished", unfinished))
			_ = worker.Terminate(o.opts.TerminateGrace)
			break
		}
		if worker.Exited() {
			var err error
			worker, err = o.launcher.StartWorker(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("relaunch worker for drain: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			_ = worker.Kill()
			return ctx.Err()
		case <-time.After(o.opts.MonitorInterval):
		}
	}

	return o.finalizeComplete(ctx, sessionID, cfg, reason)
}

// finalizeComplete refreshes counters, merges the master transcript, archives
// it, and marks the session complete.
func (o *Orchestrator) finalizeComplete(ctx context.Context, sessionID uuid.UUID, cfg entities.EffectiveConfig, reason string) error {
	o.refreshCounters(ctx, sessionID)

	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s disappeared", sessionID)
	}
	segments, err := o.segments.FindBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load segments: %w", err)
	}

	if len(segments) > 0 {
		masterPath, err := MergeTranscripts(session, segments, cfg.WhisperModel)
		if err != nil {
			o.logEvent(ctx, sessionID, entities.LogLevelError, "merge_error",
				fmt.Sprintf("Master transcript merge failed: %v", err))
		} else {
			o.logEvent(ctx, sessionID, entities.LogLevelInfo, "transcript_merged",
				fmt.Sprintf("Master transcript: %s", masterPath))
			if o.archiver != nil {
				objectName, err := o.archiver.UploadTranscript(ctx, sessionID.String(), masterPath)
				if err != nil {
					o.logEvent(ctx, sessionID, entities.LogLevelWarning, "archive_error",
						fmt.Sprintf("Archive upload failed: %v", err))
				} else {
					o.logEvent(ctx, sessionID, entities.LogLevelInfo, "transcript_archived",
						fmt.Sprintf("Master transcript archived: %s", objectName))
				}
			}
		}
	}

	session.MarkComplete(reason)
	if err := o.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if err := o.signals.Clear(ctx, sessionID); err != nil {
		o.logger.Warn("failed to clear signals", zap.Error(err))
	}
	o.logEvent(ctx, sessionID, entities.LogLevelInfo, "session_complete",
		fmt.Sprintf("Session complete: %s", reason))
	return nil
}

func (o *Orchestrator) finalizeStopped(ctx context.Context, sessionID uuid.UUID, reason string) error {
	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s disappeared", sessionID)
	}
	session.MarkStopped(reason)
	if err := o.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if err := o.signals.Clear(ctx, sessionID); err != nil {
		o.logger.Warn("failed to clear signals", zap.Error(err))
	}
	o.logEvent(ctx, sessionID, entities.LogLevelInfo, "session_stopped", reason)
	return nil
}

// failSession is the fatal path: record the failure and leave the session in
// error. Children hold their own kill switches via context, so the only job
// here is the session row.
func (o *Orchestrator) failSession(ctx context.Context, sessionID uuid.UUID, cause error) {
	o.logger.Error("orchestration failed", zap.String("session_id", sessionID.String()), zap.Error(cause))
	o.logEvent(ctx, sessionID, entities.LogLevelError, "orchestration_error",
		apperrors.Truncate(cause.Error(), 500))

	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil || session == nil {
		o.logger.Error("failed to load session for error finalization", zap.Error(err))
		return
	}
	if session.IsTerminal() {
		return
	}
	session.MarkError(cause.Error())
	if err := o.sessions.Update(ctx, session); err != nil {
		o.logger.Error("failed to mark session error", zap.Error(err))
	}
	_ = o.signals.Clear(ctx, sessionID)
}

func (o *Orchestrator) refreshCounters(ctx context.Context, sessionID uuid.UUID) {
	count, duration, err := o.segments.SessionTotals(ctx, sessionID)
	if err != nil {
		o.logger.Warn("failed to read session totals", zap.Error(err))
		return
	}
	if err := o.sessions.UpdateCounters(ctx, sessionID, count, duration); err != nil {
		o.logger.Warn("failed to update session counters", zap.Error(err))
	}
}

func (o *Orchestrator) logEvent(ctx context.Context, sessionID uuid.UUID, level entities.LogLevel, eventType, message string) {
	if err := o.events.Append(ctx, sessionID, level, eventType, message); err != nil {
		o.logger.Warn("failed to persist event log", zap.Error(err))
	}
}
