package worker

// StartRequest represents the request to start a worker run
type StartRequest struct {
	// SessionID scopes the run to one session; empty drains the global pool
	SessionID string `json:"session_id,omitempty" validate:"omitempty,uuid"`
	// Model overrides the configured whisper model for this run
	Model string `json:"model,omitempty" validate:"omitempty,oneof=tiny base small medium large-v2 large-v3"`
	// Limit bounds how many segments this run will transcribe
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=10000"`
	// ResetFailed resets error/skipped segments back to pending first
	ResetFailed bool `json:"reset_failed,omitempty"`
}
