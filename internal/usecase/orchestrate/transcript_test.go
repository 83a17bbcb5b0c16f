package orchestrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

func strPtr(s string) *string { return &s }

func TestMergeTranscripts(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "transcripts"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	start := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	session := entities.NewSession("Big Sale", "https://stream.example.com/live")
	session.SessionDir = dir
	session.ActualStartTime = &start
	session.TotalDurationSec = 3725

	write := func(name, text string) {
		if err := os.WriteFile(filepath.Join(dir, "transcripts", name), []byte(text), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("seg001.txt", "lot one sold")
	write("seg003.txt", "lot three sold")

	segments := []*entities.Segment{
		{SegmentNumber: 3, FilenameAudio: "seg003.wav", FilenameTranscript: strPtr("seg003.txt"), TranscriptionStatus: entities.TranscriptionStatusComplete},
		{SegmentNumber: 1, FilenameAudio: "seg001.wav", FilenameTranscript: strPtr("seg001.txt"), TranscriptionStatus: entities.TranscriptionStatusComplete},
		{SegmentNumber: 2, FilenameAudio: "seg002.wav", TranscriptionStatus: entities.TranscriptionStatusError},
	}

	masterPath, err := MergeTranscripts(session, segments, "base")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	wantName := "20260314_Big_Sale_FULL.txt"
	if filepath.Base(masterPath) != wantName {
		t.Errorf("expected master name %s, got %s", wantName, filepath.Base(masterPath))
	}

	raw, err := os.ReadFile(masterPath)
	if err != nil {
		t.Fatalf("read master: %v", err)
	}
	text := string(raw)

	for _, want := range []string{
		"Auction: Big Sale",
		"Segments: 3",
		"Total duration: 1h02m05s",
		"Model: base",
		"--- seg001.wav ---",
		"--- seg002.wav ---",
		"--- seg003.wav ---",
		"lot one sold",
		"lot three sold",
		"[segment 2: transcription error]",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("master transcript missing %q", want)
		}
	}

	// Segment order in the file follows segment numbers, not input order
	if strings.Index(text, "seg001.wav") > strings.Index(text, "seg002.wav") {
		t.Error("expected seg001 before seg002")
	}
	if strings.Index(text, "seg002.wav") > strings.Index(text, "seg003.wav") {
		t.Error("expected seg002 before seg003")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{65, "1m05s"},
		{3725, "1h02m05s"},
		{0, "0m00s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.sec); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}
