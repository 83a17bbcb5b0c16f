package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/johnquangdev/auction-scribe/errors"
	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
	"github.com/johnquangdev/auction-scribe/internal/domain/repositories"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
	"github.com/johnquangdev/auction-scribe/pkg/diskguard"
)

// DiskCheckFunc reports whether a path has at least minFreeGB free space
type DiskCheckFunc func(path string, minFreeGB int) (bool, float64, error)

// Options configures one Capturer run
type Options struct {
	SessionID uuid.UUID
	StreamURL string
	AudioDir  string
	Config    entities.EffectiveConfig

	// ConnectCheck is how long a freshly launched capture process must stay
	// alive before the attempt counts as a connected segment. A process that
	// dies inside this window is a failed connection, not a segment.
	ConnectCheck      time.Duration
	MaxConnectRetries int
	TerminateGrace    time.Duration
	PollInterval      time.Duration

	ConnectBackoffBase time.Duration
	ConnectBackoffCap  time.Duration
	DropBackoffBase    time.Duration
	DropBackoffCap     time.Duration

	// DiskCheck is injectable for tests; defaults to diskguard.Check
	DiskCheck DiskCheckFunc
}

func (o *Options) applyDefaults() {
	if o.ConnectCheck == 0 {
		o.ConnectCheck = 5 * time.Second
	}
	if o.MaxConnectRetries == 0 {
		o.MaxConnectRetries = 10
	}
	if o.TerminateGrace == 0 {
		o.TerminateGrace = 5 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.ConnectBackoffBase == 0 {
		o.ConnectBackoffBase = 10 * time.Second
	}
	if o.ConnectBackoffCap == 0 {
		o.ConnectBackoffCap = 60 * time.Second
	}
	if o.DropBackoffBase == 0 {
		o.DropBackoffBase = 5 * time.Second
	}
	if o.DropBackoffCap == 0 {
		o.DropBackoffCap = 30 * time.Second
	}
	if o.DiskCheck == nil {
		o.DiskCheck = diskguard.Check
	}
}

// Capturer owns the connection/segment state machine for one session. It
// launches one capture process per segment and only materializes a segment
// row once the process has survived the connection check.
type Capturer struct {
	opts     Options
	runner   Runner
	segments repositories.SegmentRepository
	sessions repositories.SessionRepository
	events   repositories.EventLogRepository
	signals  signal.Source
	logger   *zap.Logger
}

// NewCapturer creates a capturer for one session
func NewCapturer(
	opts Options,
	runner Runner,
	segments repositories.SegmentRepository,
	sessions repositories.SessionRepository,
	events repositories.EventLogRepository,
	signals signal.Source,
	logger *zap.Logger,
) *Capturer {
	opts.applyDefaults()
	return &Capturer{
		opts:     opts,
		runner:   runner,
		segments: segments,
		sessions: sessions,
		events:   events,
		signals:  signals,
		logger:   logger.With(zap.String("component", "capturer"), zap.String("session_id", opts.SessionID.String())),
	}
}

// Run drives the capture loop until stopped, disk-exhausted, or the retry
// ceiling is exceeded. Stop and disk exhaustion are clean exits (nil error);
// an exhausted retry ceiling is fatal to the capture side only.
func (c *Capturer) Run(ctx context.Context) error {
	cfg := c.opts.Config
	segmentSeconds := cfg.SegmentLengthMinutes * 60
	dateStr := time.Now().Format("20060102")
	shortID := c.opts.SessionID.String()[:8]

	segmentNumber := 0
	consecutiveFailures := 0

	c.logEvent(ctx, entities.LogLevelInfo, "recorder_started",
		fmt.Sprintf("Recording from: %s", c.opts.StreamURL))

	defer func() {
		c.logEvent(ctx, entities.LogLevelInfo, "recorder_stopped",
			fmt.Sprintf("Recorder finished after %d segments", segmentNumber))
	}()

	for {
		if c.stopRequested(ctx) {
			return nil
		}

		ok, freeGB, err := c.opts.DiskCheck(c.opts.AudioDir, cfg.MinFreeDiskGB)
		if err != nil {
			c.logger.Warn("disk check failed", zap.Error(err))
		} else if !ok {
			c.logEvent(ctx, entities.LogLevelWarning, "low_disk",
				fmt.Sprintf("Low disk space: %.1f GB free (min %d GB)", freeGB, cfg.MinFreeDiskGB))
			return nil
		}

		nextSeg := segmentNumber + 1
		segFilename := fmt.Sprintf("%s_Session%s_SEG%03d.%s", dateStr, shortID, nextSeg, cfg.AudioFormat)
		segPath := filepath.Join(c.opts.AudioDir, segFilename)

		segStart := time.Now()
		proc, err := c.runner.Start(ctx, SegmentSpec{
			StreamURL:   c.opts.StreamURL,
			OutputPath:  segPath,
			DurationSec: segmentSeconds,
			SampleRate:  cfg.SampleRate,
			Channels:    cfg.ChannelCount(),
			AudioFormat: cfg.AudioFormat,
		})
		if err != nil {
			consecutiveFailures++
			c.logEvent(ctx, entities.LogLevelError, "launch_error",
				fmt.Sprintf("Failed to launch capture process: %v", err))
			if consecutiveFailures >= c.opts.MaxConnectRetries {
				c.logEvent(ctx, entities.LogLevelError, "connect_failed",
					fmt.Sprintf("Failed to connect after %d attempts", c.opts.MaxConnectRetries))
				return apperrors.ErrConnectFailed(consecutiveFailures, err)
			}
			if !c.sleepWithStopCheck(ctx, backoffDelay(c.opts.DropBackoffBase, c.opts.DropBackoffCap, consecutiveFailures)) {
				return nil
			}
			continue
		}

		// Connection check: give the process a window to prove the stream is
		// actually reachable before any segment row exists.
		c.waitWindow(ctx, proc, c.opts.ConnectCheck)
		if proc.Exited() {
			consecutiveFailures++
			if err := os.Remove(segPath); err != nil && !os.IsNotExist(err) {
				c.logger.Warn("failed to remove partial segment file", zap.String("path", segPath), zap.Error(err))
			}

			if consecutiveFailures >= c.opts.MaxConnectRetries {
				c.logEvent(ctx, entities.LogLevelError, "connect_failed",
					fmt.Sprintf("Stream connection failed %d times — giving up", c.opts.MaxConnectRetries))
				return apperrors.ErrConnectFailed(consecutiveFailures, nil)
			}

			delay := backoffDelay(c.opts.ConnectBackoffBase, c.opts.ConnectBackoffCap, consecutiveFailures)
			c.logEvent(ctx, entities.LogLevelWarning, "connect_retry",
				fmt.Sprintf("Stream connect failed (attempt %d/%d), retrying in %s",
					consecutiveFailures, c.opts.MaxConnectRetries, delay))
			if !c.sleepWithStopCheck(ctx, delay) {
				return nil
			}
			continue
		}

		// The process survived the check window: the stream is live. Only now
		// does the segment become real.
		consecutiveFailures = 0
		segmentNumber = nextSeg

		seg := entities.NewSegment(c.opts.SessionID, segmentNumber, segFilename)
		if err := c.segments.Create(ctx, seg); err != nil {
			_ = proc.Terminate(c.opts.TerminateGrace)
			return fmt.Errorf("create segment record: %w", err)
		}
		c.logEvent(ctx, entities.LogLevelInfo, "segment_started",
			fmt.Sprintf("Recording segment %d: %s", segmentNumber, segFilename))

		stopped, timedOut := c.waitForSegment(ctx, proc, segStart, segmentSeconds)

		if timedOut {
			c.logEvent(ctx, entities.LogLevelWarning, "capture_timeout",
				fmt.Sprintf("Segment %d capture process timed out", segmentNumber))
			if err := c.segments.FinalizeRecording(ctx, seg.ID, entities.RecordingStatusError, 0, 0, "Timeout"); err != nil {
				c.logger.Error("failed to finalize timed out segment", zap.Error(err))
			}
			if stopped || c.stopRequested(ctx) {
				return nil
			}
			continue
		}

		segDuration := int(time.Since(segStart).Seconds())
		var segSize int64
		if info, err := os.Stat(segPath); err == nil {
			segSize = info.Size()
		}

		if err := c.segments.FinalizeRecording(ctx, seg.ID, entities.RecordingStatusComplete, segDuration, segSize, ""); err != nil {
			c.logger.Error("failed to finalize segment", zap.Error(err))
		}
		c.logEvent(ctx, entities.LogLevelInfo, "segment_complete",
			fmt.Sprintf("Segment %d complete: %ds, %d bytes", segmentNumber, segDuration, segSize))

		c.refreshCounters(ctx)

		// A materially short segment with a nonzero exit means the stream
		// dropped mid-segment. A segment cut short because stop was requested
		// is the session's intentional final segment and never counts as a drop.
		if !stopped && segDuration < segmentSeconds/2 && proc.ExitCode() != 0 {
			consecutiveFailures++
			if consecutiveFailures >= c.opts.MaxConnectRetries {
				c.logEvent(ctx, entities.LogLevelWarning, "stream_dropped",
					"Stream dropped too many times — stopping")
				return apperrors.ErrStreamDropped(consecutiveFailures)
			}
			delay := backoffDelay(c.opts.DropBackoffBase, c.opts.DropBackoffCap, consecutiveFailures)
			c.logEvent(ctx, entities.LogLevelWarning, "stream_interrupted",
				fmt.Sprintf("Segment ended early (%ds vs %ds expected), retrying in %s",
					segDuration, segmentSeconds, delay))
			if !c.sleepWithStopCheck(ctx, delay) {
				return nil
			}
		}

		if stopped {
			return nil
		}
	}
}

// waitWindow blocks for the connection-check window or until the process exits
func (c *Capturer) waitWindow(ctx context.Context, proc Process, window time.Duration) {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) && !proc.Exited() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.PollInterval):
		}
	}
}

// waitForSegment blocks until the capture process finishes, terminating it
// early on a stop/cancel signal and killing it if it overruns its slot.
func (c *Capturer) waitForSegment(ctx context.Context, proc Process, segStart time.Time, segmentSeconds int) (stopped, timedOut bool) {
	// The process bounds its own runtime via the duration argument; the hard
	// deadline only catches a hung process.
	hardDeadline := segStart.Add(time.Duration(segmentSeconds)*time.Second + 2*c.opts.ConnectCheck + c.opts.TerminateGrace)

	for !proc.Exited() {
		if c.stopRequested(ctx) {
			if err := proc.Terminate(c.opts.TerminateGrace); err != nil {
				c.logger.Warn("failed to terminate capture process", zap.Error(err))
			}
			stopped = true
			break
		}
		if time.Now().After(hardDeadline) {
			_ = proc.Terminate(0)
			return false, true
		}
		select {
		case <-ctx.Done():
			_ = proc.Terminate(c.opts.TerminateGrace)
			stopped = true
		case <-time.After(c.opts.PollInterval):
		}
		if stopped {
			break
		}
	}
	_ = proc.Wait()
	return stopped, false
}

// stopRequested polls the external stop/cancel condition and the context
func (c *Capturer) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if stop, err := c.signals.StopRequested(ctx, c.opts.SessionID); err == nil && stop {
		return true
	}
	if cancel, err := c.signals.CancelRequested(ctx, c.opts.SessionID); err == nil && cancel {
		return true
	}
	return false
}

// sleepWithStopCheck waits out a backoff delay in poll-sized steps so a stop
// request cuts the wait short. Returns false if the loop should exit.
func (c *Capturer) sleepWithStopCheck(ctx context.Context, delay time.Duration) bool {
	deadline := time.Now().Add(delay)
	for time.Now().Before(deadline) {
		if c.stopRequested(ctx) {
			return false
		}
		step := c.opts.PollInterval
		if remaining := time.Until(deadline); remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
		}
	}
	return true
}

func (c *Capturer) refreshCounters(ctx context.Context) {
	count, duration, err := c.segments.SessionTotals(ctx, c.opts.SessionID)
	if err != nil {
		c.logger.Warn("failed to read session totals", zap.Error(err))
		return
	}
	if err := c.sessions.UpdateCounters(ctx, c.opts.SessionID, count, duration); err != nil {
		c.logger.Warn("failed to update session counters", zap.Error(err))
	}
}

// logEvent writes to both the structured log and the persisted session history
func (c *Capturer) logEvent(ctx context.Context, level entities.LogLevel, eventType, message string) {
	switch level {
	case entities.LogLevelError:
		c.logger.Error(message, zap.String("event_type", eventType))
	case entities.LogLevelWarning:
		c.logger.Warn(message, zap.String("event_type", eventType))
	default:
		c.logger.Info(message, zap.String("event_type", eventType))
	}
	if err := c.events.Append(ctx, c.opts.SessionID, level, eventType, message); err != nil {
		c.logger.Warn("failed to persist event log", zap.Error(err))
	}
}

// backoffDelay computes the bounded linear backoff used for reconnect attempts
func backoffDelay(base, cap time.Duration, failures int) time.Duration {
	d := base * time.Duration(failures)
	if d > cap {
		return cap
	}
	return d
}
