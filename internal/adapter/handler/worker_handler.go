package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	workerdto "github.com/johnquangdev/auction-scribe/internal/adapter/dto/worker"
	"github.com/johnquangdev/auction-scribe/internal/usecase/transcribe"
)

// WorkerFactory builds a worker for one run. The handler owns the run's
// lifecycle; the factory owns the wiring (engine, repositories, signals).
type WorkerFactory func(opts transcribe.WorkerOptions, model string) (*transcribe.Worker, error)

// Worker exposes the transcription worker loop over HTTP. At most one run is
// active at a time; a second start while busy is rejected with 409.
type Worker struct {
	factory WorkerFactory
	logger  *zap.Logger

	mu      sync.Mutex
	current *transcribe.Worker
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorkerHandler creates a new worker control handler
func NewWorkerHandler(factory WorkerFactory, logger *zap.Logger) *Worker {
	return &Worker{factory: factory, logger: logger}
}

// Status handles GET /status
func (h *Worker) Status(c echo.Context) error {
	h.mu.Lock()
	current := h.current
	running := h.running()
	h.mu.Unlock()

	resp := workerdto.StatusResponse{Running: running}
	if current != nil {
		resp.Status = current.Snapshot()
	}
	return c.JSON(http.StatusOK, resp)
}

// Start handles POST /start
func (h *Worker) Start(c echo.Context) error {
	var req workerdto.StartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, workerdto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, workerdto.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
	}

	opts := transcribe.WorkerOptions{
		Limit:       req.Limit,
		ResetFailed: req.ResetFailed,
	}
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, workerdto.ErrorResponse{
				Error:   "invalid_session_id",
				Message: err.Error(),
			})
		}
		opts.SessionID = &id
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running() {
		return c.JSON(http.StatusConflict, workerdto.ErrorResponse{
			Error:   "worker_busy",
			Message: "A worker run is already in progress",
		})
	}

	w, err := h.factory(opts, req.Model)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, workerdto.ErrorResponse{
			Error:   "worker_init_failed",
			Message: err.Error(),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.current = w
	h.cancel = cancel
	h.done = done

	go func() {
		defer close(done)
		defer cancel()
		if err := w.Run(ctx); err != nil {
			h.logger.Error("worker run failed", zap.Error(err))
		}
	}()

	h.logger.Info("worker run accepted",
		zap.String("session_id", req.SessionID),
		zap.Int("limit", req.Limit),
	)
	return c.JSON(http.StatusAccepted, workerdto.StartResponse{
		Accepted: true,
		Status:   w.Snapshot(),
	})
}

// Stop handles POST /stop. The in-flight segment finishes before the loop exits.
func (h *Worker) Stop(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running() {
		return c.JSON(http.StatusConflict, workerdto.ErrorResponse{
			Error:   "worker_idle",
			Message: "No worker run is in progress",
		})
	}

	h.current.RequestStop()
	h.logger.Info("worker stop requested")
	return c.JSON(http.StatusAccepted, workerdto.StatusResponse{
		Running: true,
		Status:  h.current.Snapshot(),
	})
}

// Shutdown cancels any in-flight run during server shutdown
func (h *Worker) Shutdown() {
	h.mu.Lock()
	cancel := h.cancel
	done := h.done
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// running must be called with h.mu held
func (h *Worker) running() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
