package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// WhisperEngine shells out to a local whisper CLI install. The CLI writes the
// transcript next to a scratch directory; the engine reads it back and returns
// the text.
type WhisperEngine struct {
	bin      string
	model    string
	language string
	logger   *zap.Logger
}

// NewWhisperEngine creates an engine driving the given whisper binary
func NewWhisperEngine(bin, model, language string, logger *zap.Logger) *WhisperEngine {
	if bin == "" {
		bin = "whisper"
	}
	return &WhisperEngine{bin: bin, model: model, language: language, logger: logger}
}

// Model implements Engine
func (e *WhisperEngine) Model() string {
	return e.model
}

// Transcribe implements Engine
func (e *WhisperEngine) Transcribe(ctx context.Context, audioPath string) (string, error) {
	scratch, err := os.MkdirTemp("", "whisper-out-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	args := []string{
		audioPath,
		"--model", e.model,
		"--language", e.language,
		"--output_format", "txt",
		"--output_dir", scratch,
		"--verbose", "False",
	}

	cmd := exec.CommandContext(ctx, e.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := strings.TrimSpace(string(out))
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return "", fmt.Errorf("whisper failed: %w: %s", err, tail)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	txtPath := filepath.Join(scratch, base+".txt")
	text, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}

	e.logger.Debug("whisper transcription finished",
		zap.String("audio_path", audioPath),
		zap.Int("bytes", len(text)),
	)
	return strings.TrimSpace(string(text)), nil
}
