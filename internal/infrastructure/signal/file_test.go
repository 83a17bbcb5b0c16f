package signal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestFileSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src, err := NewFileSource(dir)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	ctx := context.Background()
	id := uuid.New()

	stop, err := src.StopRequested(ctx, id)
	if err != nil || stop {
		t.Fatalf("expected no stop initially, got %v/%v", stop, err)
	}

	if err := src.Request(ctx, id, KindStop); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	stop, err = src.StopRequested(ctx, id)
	if err != nil || !stop {
		t.Fatalf("expected stop after request, got %v/%v", stop, err)
	}
	cancel, err := src.CancelRequested(ctx, id)
	if err != nil || cancel {
		t.Fatalf("stop must not imply cancel, got %v/%v", cancel, err)
	}

	// The marker file name is the cross-process contract
	wantFile := filepath.Join(dir, "transcription_stop_"+id.String()+".signal")
	if _, err := os.Stat(wantFile); err != nil {
		t.Errorf("expected marker file %s: %v", wantFile, err)
	}

	if err := src.Clear(ctx, id); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	stop, err = src.StopRequested(ctx, id)
	if err != nil || stop {
		t.Fatalf("expected stop cleared, got %v/%v", stop, err)
	}
}

func TestFileSourceSignalsAreIndependentPerSession(t *testing.T) {
	src, err := NewFileSource(t.TempDir())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	if err := src.Request(ctx, a, KindCancel); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	cancelled, err := src.CancelRequested(ctx, b)
	if err != nil || cancelled {
		t.Errorf("session b must not see session a's cancel, got %v/%v", cancelled, err)
	}
}

func TestFileSourceClearIsIdempotent(t *testing.T) {
	src, err := NewFileSource(t.TempDir())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if err := src.Clear(context.Background(), uuid.New()); err != nil {
		t.Errorf("clear of absent signals must not fail: %v", err)
	}
}

func TestMemorySourceRoundTrip(t *testing.T) {
	src := NewMemorySource()
	ctx := context.Background()
	id := uuid.New()

	if err := src.Request(ctx, id, KindStop); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if err := src.Request(ctx, id, KindCancel); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	stop, _ := src.StopRequested(ctx, id)
	cancel, _ := src.CancelRequested(ctx, id)
	if !stop || !cancel {
		t.Errorf("expected both signals set, got stop=%v cancel=%v", stop, cancel)
	}

	if err := src.Clear(ctx, id); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	stop, _ = src.StopRequested(ctx, id)
	cancel, _ = src.CancelRequested(ctx, id)
	if stop || cancel {
		t.Errorf("expected signals cleared, got stop=%v cancel=%v", stop, cancel)
	}
}
