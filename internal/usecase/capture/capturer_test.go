package capture

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/johnquangdev/auction-scribe/errors"
	"github.com/johnquangdev/auction-scribe/internal/adapter/repository"
	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
)

type fakeProcess struct {
	exitCode int

	once sync.Once
	done chan struct{}
}

func newFakeProcess(liveFor time.Duration, exitCode int) *fakeProcess {
	p := &fakeProcess{exitCode: exitCode, done: make(chan struct{})}
	time.AfterFunc(liveFor, p.finish)
	return p
}

func (p *fakeProcess) finish() {
	p.once.Do(func() { close(p.done) })
}

func (p *fakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) Wait() error {
	<-p.done
	return nil
}

func (p *fakeProcess) ExitCode() int {
	<-p.done
	return p.exitCode
}

func (p *fakeProcess) Terminate(time.Duration) error {
	p.finish()
	return nil
}

type procStep struct {
	liveFor  time.Duration
	exitCode int
}

// fakeRunner plays back a script of process behaviors; attempts past the end
// of the script get a long-lived process that only a terminate can end.
type fakeRunner struct {
	mu      sync.Mutex
	steps   []procStep
	started int
	onStart func(attempt int)
}

func (r *fakeRunner) Start(_ context.Context, spec SegmentSpec) (Process, error) {
	r.mu.Lock()
	r.started++
	attempt := r.started
	step := procStep{liveFor: time.Hour, exitCode: 0}
	if len(r.steps) > 0 {
		step = r.steps[0]
		r.steps = r.steps[1:]
	}
	hook := r.onStart
	r.mu.Unlock()

	if err := os.WriteFile(spec.OutputPath, []byte("audio"), 0o644); err != nil {
		return nil, err
	}
	if hook != nil {
		hook(attempt)
	}
	return newFakeProcess(step.liveFor, step.exitCode), nil
}

func (r *fakeRunner) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

type captureEnv struct {
	db       *gorm.DB
	session  *entities.Session
	segments *repository.SegmentRepository
	signals  *signal.MemorySource
	audioDir string
}

func newCaptureEnv(t *testing.T) *captureEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get db object: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&entities.Session{}, &entities.Segment{}, &entities.SessionEventLog{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	session := entities.NewSession("Capture Test", "https://stream.example.com/live")
	if err := repository.NewSessionRepository(db).Create(context.Background(), session); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	return &captureEnv{
		db:       db,
		session:  session,
		segments: repository.NewSegmentRepository(db),
		signals:  signal.NewMemorySource(),
		audioDir: t.TempDir(),
	}
}

func (e *captureEnv) newCapturer(runner Runner, maxRetries int) *Capturer {
	return NewCapturer(
		Options{
			SessionID: e.session.ID,
			StreamURL: e.session.StreamURL,
			AudioDir:  e.audioDir,
			Config: entities.EffectiveConfig{
				SegmentLengthMinutes: 1,
				SampleRate:           16000,
				AudioChannels:        "mono",
				AudioFormat:          "wav",
				MinFreeDiskGB:        1,
			},
			ConnectCheck:       30 * time.Millisecond,
			MaxConnectRetries:  maxRetries,
			TerminateGrace:     20 * time.Millisecond,
			PollInterval:       2 * time.Millisecond,
			ConnectBackoffBase: time.Millisecond,
			ConnectBackoffCap:  5 * time.Millisecond,
			DropBackoffBase:    time.Millisecond,
			DropBackoffCap:     5 * time.Millisecond,
			DiskCheck: func(string, int) (bool, float64, error) {
				return true, 100, nil
			},
		},
		runner,
		e.segments,
		repository.NewSessionRepository(e.db),
		repository.NewEventLogRepository(e.db),
		e.signals,
		zap.NewNop(),
	)
}

func (e *captureEnv) segmentCount(t *testing.T) int {
	t.Helper()
	segs, err := e.segments.FindBySession(context.Background(), e.session.ID)
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	return len(segs)
}

func TestConnectFailuresCreateNoSegments(t *testing.T) {
	env := newCaptureEnv(t)
	runner := &fakeRunner{steps: []procStep{
		{liveFor: time.Millisecond, exitCode: 1},
		{liveFor: time.Millisecond, exitCode: 1},
		{liveFor: time.Millisecond, exitCode: 1},
	}}

	capturer := env.newCapturer(runner, 3)
	err := capturer.Run(context.Background())

	if !apperrors.HasCode(err, apperrors.ErrorCodeConnectFailed) {
		t.Fatalf("expected CONNECT_FAILED, got %v", err)
	}
	if got := env.segmentCount(t); got != 0 {
		t.Errorf("expected 0 segment rows for failed probes, got %d", got)
	}
	if runner.attempts() != 3 {
		t.Errorf("expected 3 attempts, got %d", runner.attempts())
	}

	entries, err := os.ReadDir(env.audioDir)
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected partial files removed, found %d", len(entries))
	}
}

func TestFailureCounterResetsAfterConnect(t *testing.T) {
	env := newCaptureEnv(t)
	runner := &fakeRunner{steps: []procStep{
		{liveFor: time.Millisecond, exitCode: 1},
		{liveFor: time.Millisecond, exitCode: 1},
		{liveFor: time.Hour},
	}}
	// The third attempt connects; stopping during its segment proves two
	// failures plus one success never reaches a three-failure ceiling.
	runner.onStart = func(attempt int) {
		if attempt == 3 {
			_ = env.signals.Request(context.Background(), env.session.ID, signal.KindStop)
		}
	}

	capturer := env.newCapturer(runner, 3)
	if err := capturer.Run(context.Background()); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	segs, err := env.segments.FindBySession(context.Background(), env.session.ID)
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment row, got %d", len(segs))
	}
	if segs[0].RecordingStatus != entities.RecordingStatusComplete {
		t.Errorf("expected complete recording, got %s", segs[0].RecordingStatus)
	}
	if segs[0].SegmentNumber != 1 {
		t.Errorf("expected segment number 1, got %d", segs[0].SegmentNumber)
	}
}

func TestShortSegmentWithErrorRetries(t *testing.T) {
	env := newCaptureEnv(t)
	runner := &fakeRunner{steps: []procStep{
		// Survives the connect check but dies at a fraction of the segment
		// length with a nonzero exit: a mid-segment stream drop.
		{liveFor: 40 * time.Millisecond, exitCode: 1},
		{liveFor: time.Hour},
	}}
	runner.onStart = func(attempt int) {
		if attempt == 2 {
			_ = env.signals.Request(context.Background(), env.session.ID, signal.KindStop)
		}
	}

	capturer := env.newCapturer(runner, 5)
	if err := capturer.Run(context.Background()); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	segs, err := env.segments.FindBySession(context.Background(), env.session.ID)
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segment rows (dropped segment kept), got %d", len(segs))
	}
	for _, seg := range segs {
		if seg.RecordingStatus != entities.RecordingStatusComplete {
			t.Errorf("segment %d: expected complete, got %s", seg.SegmentNumber, seg.RecordingStatus)
		}
		if seg.TranscriptionStatus != entities.TranscriptionStatusPending {
			t.Errorf("segment %d: expected pending transcription, got %s", seg.SegmentNumber, seg.TranscriptionStatus)
		}
	}
}

func TestStopDuringSegmentFinalizesComplete(t *testing.T) {
	env := newCaptureEnv(t)
	runner := &fakeRunner{}
	runner.onStart = func(attempt int) {
		time.AfterFunc(50*time.Millisecond, func() {
			_ = env.signals.Request(context.Background(), env.session.ID, signal.KindStop)
		})
	}

	capturer := env.newCapturer(runner, 3)
	if err := capturer.Run(context.Background()); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	segs, err := env.segments.FindBySession(context.Background(), env.session.ID)
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	// A segment cut short by a requested stop is a valid final segment,
	// never a drop-retry.
	if segs[0].RecordingStatus != entities.RecordingStatusComplete {
		t.Errorf("expected complete, got %s", segs[0].RecordingStatus)
	}
	if runner.attempts() != 1 {
		t.Errorf("expected no retry after stop, got %d attempts", runner.attempts())
	}
}

func TestLowDiskStopsCleanlyBeforeLaunching(t *testing.T) {
	env := newCaptureEnv(t)
	runner := &fakeRunner{}

	capturer := env.newCapturer(runner, 3)
	capturer.opts.DiskCheck = func(string, int) (bool, float64, error) {
		return false, 0.5, nil
	}

	if err := capturer.Run(context.Background()); err != nil {
		t.Fatalf("expected clean exit on low disk, got %v", err)
	}
	if runner.attempts() != 0 {
		t.Errorf("expected no capture attempts, got %d", runner.attempts())
	}
	if got := env.segmentCount(t); got != 0 {
		t.Errorf("expected 0 segments, got %d", got)
	}
}

func TestCancelStopsCapture(t *testing.T) {
	env := newCaptureEnv(t)
	runner := &fakeRunner{}
	runner.onStart = func(attempt int) {
		time.AfterFunc(50*time.Millisecond, func() {
			_ = env.signals.Request(context.Background(), env.session.ID, signal.KindCancel)
		})
	}

	capturer := env.newCapturer(runner, 3)
	done := make(chan error, 1)
	go func() { done <- capturer.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("capturer did not exit after cancel")
	}
}

func TestSegmentFilenameFormat(t *testing.T) {
	env := newCaptureEnv(t)
	runner := &fakeRunner{}
	runner.onStart = func(attempt int) {
		time.AfterFunc(50*time.Millisecond, func() {
			_ = env.signals.Request(context.Background(), env.session.ID, signal.KindStop)
		})
	}

	capturer := env.newCapturer(runner, 3)
	if err := capturer.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	segs, err := env.segments.FindBySession(context.Background(), env.session.ID)
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}

	want := time.Now().Format("20060102") + "_Session" + env.session.ID.String()[:8] + "_SEG001.wav"
	if segs[0].FilenameAudio != want {
		t.Errorf("expected filename %q, got %q", want, segs[0].FilenameAudio)
	}
	if _, err := os.Stat(filepath.Join(env.audioDir, segs[0].FilenameAudio)); err != nil {
		t.Errorf("expected audio file on disk: %v", err)
	}
}
