package worker

import (
	"github.com/johnquangdev/auction-scribe/internal/usecase/transcribe"
)

// StatusResponse represents the worker status snapshot
type StatusResponse struct {
	Running bool              `json:"running"`
	Status  transcribe.Status `json:"status"`
}

// StartResponse acknowledges an accepted start request
type StartResponse struct {
	Accepted bool              `json:"accepted"`
	Status   transcribe.Status `json:"status"`
}

// ErrorResponse represents an error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
