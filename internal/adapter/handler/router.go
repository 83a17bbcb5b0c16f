package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/johnquangdev/auction-scribe/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg           *config.Config
	workerHandler *Worker
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, workerHandler *Worker) *Router {
	return &Router{
		cfg:           cfg,
		workerHandler: workerHandler,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	e.GET("/health", rt.healthCheck)

	e.GET("/status", rt.workerHandler.Status)
	e.POST("/start", rt.workerHandler.Start)
	e.POST("/stop", rt.workerHandler.Stop)
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": rt.cfg.Server.Environment,
	})
}
