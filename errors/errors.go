package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a class of failure in the capture/transcription pipeline
type ErrorCode string

const (
	ErrorCodeInternal           ErrorCode = "INTERNAL"
	ErrorCodeInvalidArgument    ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeWorkerBusy         ErrorCode = "WORKER_BUSY"
	ErrorCodeConnectFailed      ErrorCode = "CONNECT_FAILED"
	ErrorCodeStreamDropped      ErrorCode = "STREAM_DROPPED"
	ErrorCodeDiskExhausted      ErrorCode = "DISK_EXHAUSTED"
	ErrorCodeMissingAudio       ErrorCode = "MISSING_AUDIO"
	ErrorCodeTranscription      ErrorCode = "TRANSCRIPTION_FAILED"
	ErrorCodeOrchestrationFatal ErrorCode = "ORCHESTRATION_FATAL"
)

// AppError is the application error type shared across the pipeline processes
type AppError struct {
	Raw       error
	HTTPCode  int
	Code      ErrorCode
	Message   string
	Timestamp time.Time
}

// Error implements error interface
func (e AppError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Raw)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error for errors.Is/errors.As
func (e AppError) Unwrap() error {
	return e.Raw
}

// HasCode reports whether err is an AppError carrying the given code
func HasCode(err error, code ErrorCode) bool {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func newError(code ErrorCode, httpCode int, message string, raw error) AppError {
	return AppError{
		Raw:       raw,
		HTTPCode:  httpCode,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ErrInternal wraps an unexpected failure
func ErrInternal(err error) AppError {
	return newError(ErrorCodeInternal, http.StatusInternalServerError, "Internal error", err)
}

// ErrInvalidArgument reports a rejected input
func ErrInvalidArgument(message string) AppError {
	return newError(ErrorCodeInvalidArgument, http.StatusBadRequest, message, nil)
}

// ErrNotFound reports a missing resource
func ErrNotFound(resource string) AppError {
	return newError(ErrorCodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// ErrWorkerBusy reports that the worker loop is already running
func ErrWorkerBusy(status string) AppError {
	return newError(ErrorCodeWorkerBusy, http.StatusConflict, fmt.Sprintf("Worker is busy (%s)", status), nil)
}

// ErrConnectFailed reports a stream connection that failed past the retry ceiling.
// Fatal to the capture process only, never to the session.
func ErrConnectFailed(attempts int, raw error) AppError {
	return newError(ErrorCodeConnectFailed, http.StatusBadGateway,
		fmt.Sprintf("Stream connection failed %d times", attempts), raw)
}

// ErrStreamDropped reports a stream that dropped past the retry ceiling
func ErrStreamDropped(attempts int) AppError {
	return newError(ErrorCodeStreamDropped, http.StatusBadGateway,
		fmt.Sprintf("Stream dropped %d times", attempts), nil)
}

// ErrDiskExhausted reports free space below the configured minimum.
// A clean stop condition, not a session error.
func ErrDiskExhausted(freeGB float64, minGB int) AppError {
	return newError(ErrorCodeDiskExhausted, http.StatusInsufficientStorage,
		fmt.Sprintf("Low disk space: %.1f GB free (min %d GB)", freeGB, minGB), nil)
}

// ErrMissingAudio reports a claimed segment whose audio file is not visible
// on the worker's filesystem
func ErrMissingAudio(filename string) AppError {
	return newError(ErrorCodeMissingAudio, http.StatusNotFound,
		fmt.Sprintf("Audio file not found: %s", filename), nil)
}

// ErrTranscription wraps a speech-engine failure for one segment
func ErrTranscription(segmentNumber int, raw error) AppError {
	return newError(ErrorCodeTranscription, http.StatusInternalServerError,
		fmt.Sprintf("Segment %d transcription failed", segmentNumber), raw)
}

// ErrOrchestrationFatal wraps an uncaught orchestration failure
func ErrOrchestrationFatal(raw error) AppError {
	return newError(ErrorCodeOrchestrationFatal, http.StatusInternalServerError,
		"Orchestration failed", raw)
}

// Truncate bounds a message to the column width used for stored error messages
func Truncate(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	return msg[:max]
}
