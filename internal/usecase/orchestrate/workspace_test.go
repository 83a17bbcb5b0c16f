package orchestrate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Spring Equipment Auction", "Spring_Equipment_Auction"},
		{"  padded  ", "padded"},
		{"slash/and:colon", "slashandcolon"},
		{"ok-name_123", "ok-name_123"},
		{"", "session"},
		{"///", "session"},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeNameTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "abcde"
	}
	if got := SafeName(long); len(got) != 50 {
		t.Errorf("expected 50 chars, got %d", len(got))
	}
}

func TestBuildSessionDir(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	flat := BuildSessionDir("/srv/archive", "flat", start, "Big Sale")
	if flat != filepath.Join("/srv/archive", "20260314_Big_Sale") {
		t.Errorf("unexpected flat dir: %s", flat)
	}

	yearly := BuildSessionDir("/srv/archive", "year-based", start, "Big Sale")
	if yearly != filepath.Join("/srv/archive", "2026", "20260314_Big_Sale") {
		t.Errorf("unexpected year-based dir: %s", yearly)
	}
}

func TestPrepareWorkspace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "20260314_Test")
	cfg := entities.EffectiveConfig{
		SegmentLengthMinutes: 10,
		WhisperModel:         "base",
		AudioFormat:          "wav",
	}

	if err := PrepareWorkspace(dir, cfg); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	for _, sub := range []string{"audio", "transcripts"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			t.Errorf("expected %s directory: %v", sub, err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, "session.json"))
	if err != nil {
		t.Fatalf("read session.json: %v", err)
	}
	var got entities.EffectiveConfig
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("parse session.json: %v", err)
	}
	if got.WhisperModel != "base" || got.SegmentLengthMinutes != 10 {
		t.Errorf("snapshot mismatch: %+v", got)
	}
}
