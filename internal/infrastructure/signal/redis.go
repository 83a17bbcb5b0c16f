package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Signals expire on their own so a crashed orchestrator cannot leave a stale
// stop behind forever.
const signalTTL = 24 * time.Hour

// RedisSource signals through redis keys. Used when the pipeline processes
// run on machines that do not share a filesystem.
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource creates a redis-backed signal source
func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

func signalKey(sessionID uuid.UUID, kind Kind) string {
	return fmt.Sprintf("scribe:signal:%s:%s", kind, sessionID)
}

func (r *RedisSource) requested(ctx context.Context, sessionID uuid.UUID, kind Kind) (bool, error) {
	n, err := r.client.Exists(ctx, signalKey(sessionID, kind)).Result()
	if err != nil {
		return false, fmt.Errorf("check signal: %w", err)
	}
	return n > 0, nil
}

// StopRequested reports whether a stop key exists for the session
func (r *RedisSource) StopRequested(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return r.requested(ctx, sessionID, KindStop)
}

// CancelRequested reports whether a cancel key exists for the session
func (r *RedisSource) CancelRequested(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return r.requested(ctx, sessionID, KindCancel)
}

// Request sets the signal key for the session
func (r *RedisSource) Request(ctx context.Context, sessionID uuid.UUID, kind Kind) error {
	if err := r.client.Set(ctx, signalKey(sessionID, kind), "1", signalTTL).Err(); err != nil {
		return fmt.Errorf("set signal: %w", err)
	}
	return nil
}

// Clear removes all signal keys for the session
func (r *RedisSource) Clear(ctx context.Context, sessionID uuid.UUID) error {
	keys := []string{
		signalKey(sessionID, KindStop),
		signalKey(sessionID, KindCancel),
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear signals: %w", err)
	}
	return nil
}
