package signal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileSource signals through marker files in a shared directory. This is the
// deployment-default backend: it needs nothing but a filesystem both the
// front end and the pipeline processes can see.
type FileSource struct {
	dir string
}

// NewFileSource creates a file-backed signal source rooted at dir
func NewFileSource(dir string) (*FileSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create signal dir: %w", err)
	}
	return &FileSource{dir: dir}, nil
}

func (f *FileSource) path(sessionID uuid.UUID, kind Kind) string {
	return filepath.Join(f.dir, fmt.Sprintf("transcription_%s_%s.signal", kind, sessionID))
}

func (f *FileSource) exists(sessionID uuid.UUID, kind Kind) (bool, error) {
	_, err := os.Stat(f.path(sessionID, kind))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// StopRequested reports whether a stop marker exists for the session
func (f *FileSource) StopRequested(_ context.Context, sessionID uuid.UUID) (bool, error) {
	return f.exists(sessionID, KindStop)
}

// CancelRequested reports whether a cancel marker exists for the session
func (f *FileSource) CancelRequested(_ context.Context, sessionID uuid.UUID) (bool, error) {
	return f.exists(sessionID, KindCancel)
}

// Request creates the marker file for the given signal kind
func (f *FileSource) Request(_ context.Context, sessionID uuid.UUID, kind Kind) error {
	file, err := os.OpenFile(f.path(sessionID, kind), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create signal file: %w", err)
	}
	return file.Close()
}

// Clear removes all markers for the session
func (f *FileSource) Clear(_ context.Context, sessionID uuid.UUID) error {
	for _, kind := range []Kind{KindStop, KindCancel} {
		if err := os.Remove(f.path(sessionID, kind)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove signal file: %w", err)
		}
	}
	return nil
}
