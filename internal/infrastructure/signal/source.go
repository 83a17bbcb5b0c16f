package signal

import (
	"context"

	"github.com/google/uuid"
)

// Kind distinguishes the two external control signals. A stop drains the
// transcription backlog before finalizing; a cancel kills both children.
type Kind string

const (
	KindStop   Kind = "stop"
	KindCancel Kind = "cancel"
)

// Source is the polled cross-process cancellation contract. Implementations
// are crash-tolerant by construction: a signal survives the death of whoever
// raised it, and pollers observe it at their own loop cadence.
type Source interface {
	StopRequested(ctx context.Context, sessionID uuid.UUID) (bool, error)
	CancelRequested(ctx context.Context, sessionID uuid.UUID) (bool, error)
	Request(ctx context.Context, sessionID uuid.UUID, kind Kind) error
	Clear(ctx context.Context, sessionID uuid.UUID) error
}
