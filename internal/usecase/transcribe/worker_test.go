package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/johnquangdev/auction-scribe/internal/adapter/repository"
	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
)

// fakeEngine records the order of transcribed files and can fail on demand
type fakeEngine struct {
	mu      sync.Mutex
	order   []string
	failOn  map[string]error
	perCall time.Duration
}

func (e *fakeEngine) Model() string { return "fake" }

func (e *fakeEngine) Transcribe(_ context.Context, audioPath string) (string, error) {
	if e.perCall > 0 {
		time.Sleep(e.perCall)
	}
	base := filepath.Base(audioPath)
	e.mu.Lock()
	e.order = append(e.order, base)
	err := e.failOn[base]
	e.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "transcript of " + base, nil
}

func (e *fakeEngine) transcribed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

type workerEnv struct {
	db       *gorm.DB
	session  *entities.Session
	segments *repository.SegmentRepository
	sessions *repository.SessionRepository
	signals  *signal.MemorySource
}

func newWorkerEnv(t *testing.T) *workerEnv {
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

	session := entities.NewSession("Worker Test", "https://stream.example.com/live")
	session.SessionDir = t.TempDir()
	session.Status = entities.SessionStatusComplete
	sessions := repository.NewSessionRepository(db)
	if err := sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	for _, sub := range []string{"audio", "transcripts"} {
		if err := os.MkdirAll(filepath.Join(session.SessionDir, sub), 0o755); err != nil {
			t.Fatalf("failed to create workspace: %v", err)
		}
	}

	return &workerEnv{
		db:       db,
		session:  session,
		segments: repository.NewSegmentRepository(db),
		sessions: sessions,
		signals:  signal.NewMemorySource(),
	}
}

// addSegment seeds a recorded segment; withAudio controls whether the audio
// file actually exists on disk.
func (e *workerEnv) addSegment(t *testing.T, number int, withAudio bool) *entities.Segment {
	t.Helper()
	filename := fmt.Sprintf("seg%03d.wav", number)
	seg := entities.NewSegment(e.session.ID, number, filename)
	seg.RecordingStatus = entities.RecordingStatusComplete
	seg.DurationSeconds = 60
	if err := e.segments.Create(context.Background(), seg); err != nil {
		t.Fatalf("failed to seed segment: %v", err)
	}
	if withAudio {
		path := filepath.Join(e.session.SessionDir, "audio", filename)
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			t.Fatalf("failed to write audio file: %v", err)
		}
	}
	return seg
}

func (e *workerEnv) newWorker(engine Engine, opts WorkerOptions) *Worker {
	if opts.SessionID == nil {
		opts.SessionID = &e.session.ID
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.MaxIdlePolls == 0 {
		opts.MaxIdlePolls = 3
	}
	return NewWorker(
		opts,
		engine,
		e.segments,
		e.sessions,
		repository.NewEventLogRepository(e.db),
		e.signals,
		zap.NewNop(),
	)
}

func TestWorkerDrainsBacklogInOrder(t *testing.T) {
	env := newWorkerEnv(t)
	for i := 1; i <= 3; i++ {
		env.addSegment(t, i, true)
	}

	engine := &fakeEngine{}
	worker := env.newWorker(engine, WorkerOptions{})
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := engine.transcribed()
	want := []string{"seg001.wav", "seg002.wav", "seg003.wav"}
	if len(got) != len(want) {
		t.Fatalf("expected %d transcriptions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	segs, err := env.segments.FindBySession(context.Background(), env.session.ID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	for _, seg := range segs {
		if seg.TranscriptionStatus != entities.TranscriptionStatusComplete {
			t.Errorf("segment %d: expected complete, got %s", seg.SegmentNumber, seg.TranscriptionStatus)
		}
		if seg.FilenameTranscript == nil {
			t.Errorf("segment %d: expected transcript filename", seg.SegmentNumber)
			continue
		}
		path := filepath.Join(env.session.SessionDir, "transcripts", *seg.FilenameTranscript)
		text, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("segment %d: transcript not written: %v", seg.SegmentNumber, err)
			continue
		}
		if string(text) != "transcript of "+seg.FilenameAudio {
			t.Errorf("segment %d: unexpected transcript content %q", seg.SegmentNumber, text)
		}
	}

	status := worker.Snapshot()
	if status.Completed != 3 {
		t.Errorf("expected 3 completed, got %d", status.Completed)
	}
	if status.Errors != 0 {
		t.Errorf("expected 0 errors, got %d", status.Errors)
	}
}

func TestWorkerContinuesAfterEngineFailure(t *testing.T) {
	env := newWorkerEnv(t)
	for i := 1; i <= 3; i++ {
		env.addSegment(t, i, true)
	}

	engine := &fakeEngine{failOn: map[string]error{
		"seg002.wav": errors.New("model exploded"),
	}}
	worker := env.newWorker(engine, WorkerOptions{})
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	segs, err := env.segments.FindBySession(context.Background(), env.session.ID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	byNumber := map[int]*entities.Segment{}
	for _, seg := range segs {
		byNumber[seg.SegmentNumber] = seg
	}

	if byNumber[2].TranscriptionStatus != entities.TranscriptionStatusError {
		t.Errorf("expected segment 2 errored, got %s", byNumber[2].TranscriptionStatus)
	}
	if byNumber[2].ErrorMessage == nil {
		t.Error("expected error message on segment 2")
	}
	for _, n := range []int{1, 3} {
		if byNumber[n].TranscriptionStatus != entities.TranscriptionStatusComplete {
			t.Errorf("expected segment %d complete, got %s", n, byNumber[n].TranscriptionStatus)
		}
	}

	status := worker.Snapshot()
	if status.Completed != 2 || status.Errors != 1 {
		t.Errorf("expected 2 completed / 1 error, got %d/%d", status.Completed, status.Errors)
	}
}

func TestWorkerSkipsMissingAudio(t *testing.T) {
	env := newWorkerEnv(t)
	env.addSegment(t, 1, false)
	env.addSegment(t, 2, true)

	engine := &fakeEngine{}
	worker := env.newWorker(engine, WorkerOptions{})
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	segs, err := env.segments.FindBySession(context.Background(), env.session.ID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	byNumber := map[int]*entities.Segment{}
	for _, seg := range segs {
		byNumber[seg.SegmentNumber] = seg
	}

	if byNumber[1].TranscriptionStatus != entities.TranscriptionStatusSkipped {
		t.Errorf("expected segment 1 skipped, got %s", byNumber[1].TranscriptionStatus)
	}
	if byNumber[2].TranscriptionStatus != entities.TranscriptionStatusComplete {
		t.Errorf("expected segment 2 complete, got %s", byNumber[2].TranscriptionStatus)
	}

	got := engine.transcribed()
	if len(got) != 1 || got[0] != "seg002.wav" {
		t.Errorf("expected only seg002.wav transcribed, got %v", got)
	}
}

func TestWorkerHonorsLimit(t *testing.T) {
	env := newWorkerEnv(t)
	for i := 1; i <= 5; i++ {
		env.addSegment(t, i, true)
	}

	engine := &fakeEngine{}
	worker := env.newWorker(engine, WorkerOptions{Limit: 2})
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := len(engine.transcribed()); got != 2 {
		t.Errorf("expected 2 transcriptions, got %d", got)
	}
	pending, err := env.segments.CountPending(context.Background(), &env.session.ID)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 3 {
		t.Errorf("expected 3 left pending, got %d", pending)
	}
}

func TestWorkerResetFailedOption(t *testing.T) {
	env := newWorkerEnv(t)
	seg := env.addSegment(t, 1, true)
	if err := env.segments.FinalizeTranscription(context.Background(), seg.ID, entities.TranscriptionStatusError, "", "earlier failure"); err != nil {
		t.Fatalf("seed error status: %v", err)
	}

	engine := &fakeEngine{}
	worker := env.newWorker(engine, WorkerOptions{ResetFailed: true})
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, err := env.segments.FindByID(context.Background(), seg.ID)
	if err != nil {
		t.Fatalf("find segment: %v", err)
	}
	if got.TranscriptionStatus != entities.TranscriptionStatusComplete {
		t.Errorf("expected retried segment complete, got %s", got.TranscriptionStatus)
	}
}

func TestWorkerStopFinishesInFlightSegment(t *testing.T) {
	env := newWorkerEnv(t)
	for i := 1; i <= 3; i++ {
		env.addSegment(t, i, true)
	}

	engine := &fakeEngine{perCall: 30 * time.Millisecond}
	worker := env.newWorker(engine, WorkerOptions{MaxIdlePolls: 1000})

	done := make(chan error, 1)
	go func() { done <- worker.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	worker.RequestStop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	// The in-flight segment must be finished, not abandoned mid-claim
	var transcribing int64
	if err := env.db.Model(&entities.Segment{}).
		Where("transcription_status = ?", entities.TranscriptionStatusTranscribing).
		Count(&transcribing).Error; err != nil {
		t.Fatalf("count transcribing: %v", err)
	}
	if transcribing != 0 {
		t.Errorf("expected no segments stuck in transcribing, got %d", transcribing)
	}
	if got := len(engine.transcribed()); got == 0 || got == 3 {
		t.Logf("transcribed %d segments before stop", got)
	}
}

func TestPathMapperResolve(t *testing.T) {
	tests := []struct {
		name   string
		mapper PathMapper
		in     string
		want   string
	}{
		{"passthrough when unset", PathMapper{}, "/srv/archive/a.wav", "/srv/archive/a.wav"},
		{"maps matching prefix", PathMapper{RemotePrefix: "/srv/archive", LocalPrefix: "/mnt/archive"}, "/srv/archive/a.wav", "/mnt/archive/a.wav"},
		{"leaves other paths", PathMapper{RemotePrefix: "/srv/archive", LocalPrefix: "/mnt/archive"}, "/tmp/a.wav", "/tmp/a.wav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mapper.Resolve(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWorkerSkipsEmptyAudioFilename(t *testing.T) {
	env := newWorkerEnv(t)

	// A recorded row with no audio filename must never reach the engine;
	// joining the empty name would point at the audio directory itself.
	seg := entities.NewSegment(env.session.ID, 1, "")
	seg.RecordingStatus = entities.RecordingStatusComplete
	seg.DurationSeconds = 60
	if err := env.segments.Create(context.Background(), seg); err != nil {
		t.Fatalf("failed to seed segment: %v", err)
	}
	env.addSegment(t, 2, true)

	engine := &fakeEngine{}
	worker := env.newWorker(engine, WorkerOptions{})
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, err := env.segments.FindByID(context.Background(), seg.ID)
	if err != nil || got == nil {
		t.Fatalf("reload segment: %v", err)
	}
	if got.TranscriptionStatus != entities.TranscriptionStatusSkipped {
		t.Errorf("expected skipped, got %s", got.TranscriptionStatus)
	}
	if got.ErrorMessage == nil {
		t.Error("expected a skip reason on the segment")
	}

	if transcribed := engine.transcribed(); len(transcribed) != 1 || transcribed[0] != "seg002.wav" {
		t.Errorf("expected only seg002.wav transcribed, got %v", transcribed)
	}

	status := worker.Snapshot()
	if status.Completed != 1 || status.Errors != 1 {
		t.Errorf("expected 1 completed / 1 error, got %d/%d", status.Completed, status.Errors)
	}
}
