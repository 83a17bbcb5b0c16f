package transcribe

import (
	"context"
	"fmt"
	"os"
	"time"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// AssemblyAIEngine transcribes segments through the hosted AssemblyAI API.
// The segment file is uploaded, submitted, and polled until the transcript
// reaches a terminal status.
type AssemblyAIEngine struct {
	client       *aai.Client
	languageCode string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewAssemblyAIEngine creates an engine backed by the official SDK client
func NewAssemblyAIEngine(apiKey, languageCode string, logger *zap.Logger) *AssemblyAIEngine {
	return &AssemblyAIEngine{
		client:       aai.NewClient(apiKey),
		languageCode: languageCode,
		pollInterval: 3 * time.Second,
		logger:       logger,
	}
}

// Model implements Engine
func (e *AssemblyAIEngine) Model() string {
	return "assemblyai"
}

// Transcribe implements Engine
func (e *AssemblyAIEngine) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	uploadURL, err := e.client.Upload(ctx, f)
	if err != nil {
		return "", fmt.Errorf("upload to AssemblyAI: %w", err)
	}

	params := &aai.TranscriptOptionalParams{
		LanguageCode: aai.TranscriptLanguageCode(e.languageCode),
	}

	// Submission is the flaky part of the round trip, so it retries with
	// exponential backoff. Polling failures below are terminal instead.
	var transcriptID string
	submitFn := func() error {
		transcript, err := e.client.Transcripts.TranscribeFromURL(ctx, uploadURL, params)
		if err != nil {
			return err
		}
		if transcript.ID != nil {
			transcriptID = *transcript.ID
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(submitFn, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("submit to AssemblyAI: %w", err)
	}

	e.logger.Info("transcription job submitted",
		zap.String("transcript_id", transcriptID),
		zap.String("audio_path", audioPath),
	)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.pollInterval):
		}

		transcript, err := e.client.Transcripts.Get(ctx, transcriptID)
		if err != nil {
			return "", fmt.Errorf("poll transcript %s: %w", transcriptID, err)
		}

		switch transcript.Status {
		case aai.TranscriptStatusCompleted:
			if transcript.Text == nil {
				return "", nil
			}
			return *transcript.Text, nil
		case aai.TranscriptStatusError:
			msg := "unknown error"
			if transcript.Error != nil {
				msg = *transcript.Error
			}
			return "", fmt.Errorf("transcript %s failed: %s", transcriptID, msg)
		case aai.TranscriptStatusQueued, aai.TranscriptStatusProcessing:
			// keep polling
		}
	}
}
