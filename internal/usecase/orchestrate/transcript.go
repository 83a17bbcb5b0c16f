package orchestrate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// MergeTranscripts stitches the per-segment transcripts into one master file
// in the session's transcripts directory and returns its path. Segments that
// never produced a transcript are annotated in place rather than silently
// dropped, so the master file always accounts for every recorded segment.
func MergeTranscripts(session *entities.Session, segments []*entities.Segment, model string) (string, error) {
	start := session.CreatedAt
	if session.ActualStartTime != nil {
		start = *session.ActualStartTime
	}

	sorted := make([]*entities.Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SegmentNumber < sorted[j].SegmentNumber
	})

	transcriptDir := filepath.Join(session.SessionDir, "transcripts")
	masterName := fmt.Sprintf("%s_%s_FULL.txt", start.Format("20060102"), SafeName(session.AuctionName))
	masterPath := filepath.Join(transcriptDir, masterName)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Auction: %s\n", session.AuctionName))
	b.WriteString(fmt.Sprintf("Date: %s\n", start.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Segments: %d\n", len(sorted)))
	b.WriteString(fmt.Sprintf("Total duration: %s\n", formatDuration(session.TotalDurationSec)))
	if model != "" {
		b.WriteString(fmt.Sprintf("Model: %s\n", model))
	}
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	for _, seg := range sorted {
		b.WriteString(fmt.Sprintf("--- %s ---\n", seg.FilenameAudio))

		if seg.TranscriptionStatus != entities.TranscriptionStatusComplete || seg.FilenameTranscript == nil {
			b.WriteString(fmt.Sprintf("[segment %d: transcription %s]\n\n",
				seg.SegmentNumber, seg.TranscriptionStatus))
			continue
		}

		text, err := os.ReadFile(filepath.Join(transcriptDir, *seg.FilenameTranscript))
		if err != nil {
			b.WriteString(fmt.Sprintf("[segment %d: transcript file unreadable]\n\n", seg.SegmentNumber))
			continue
		}
		b.WriteString(strings.TrimSpace(string(text)))
		b.WriteString("\n\n")
	}

	if err := os.MkdirAll(transcriptDir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	if err := os.WriteFile(masterPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write master transcript: %w", err)
	}
	return masterPath, nil
}

func formatDuration(seconds int) string {
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
