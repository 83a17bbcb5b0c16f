package orchestrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
)

// SafeName reduces an auction name to a filesystem-safe slug
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" {
		s = "session"
	}
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// BuildSessionDir computes the session directory under the archive root.
// Flat layout puts every session directly under the root; year-based layout
// inserts a year directory so long-lived archives stay browsable.
func BuildSessionDir(baseDir, folderStructure string, start time.Time, auctionName string) string {
	leaf := fmt.Sprintf("%s_%s", start.Format("20060102"), SafeName(auctionName))
	if folderStructure == "year-based" {
		return filepath.Join(baseDir, strconv.Itoa(start.Year()), leaf)
	}
	return filepath.Join(baseDir, leaf)
}

// PrepareWorkspace creates the session directory tree and writes the merged
// configuration snapshot next to the data it governs, so a session archive is
// self-describing even after the settings row changes.
func PrepareWorkspace(dir string, cfg entities.EffectiveConfig) error {
	for _, sub := range []string{"audio", "transcripts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create workspace dir: %w", err)
		}
	}

	snapshot, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.json"), snapshot, 0o644); err != nil {
		return fmt.Errorf("write session.json: %w", err)
	}
	return nil
}
