package transcribe

import "context"

// Engine converts one audio file into transcript text. Implementations wrap a
// local whisper install or a hosted speech API; the worker loop does not care
// which.
type Engine interface {
	// Transcribe returns the transcript text for the audio file at path
	Transcribe(ctx context.Context, audioPath string) (string, error)
	// Model names the loaded model for status reporting
	Model() string
}
