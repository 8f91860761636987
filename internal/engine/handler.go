package engine

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"survey-backend/internal/analytics"
	"survey-backend/internal/logger"
	"survey-backend/internal/metadata"
)

// Handler serves the collection and analysis API.
type Handler struct {
	collector *Collector
	analysis  *Analyzer
	analytics SQLRunner
	log       *logger.Logger
}

// SQLRunner executes ad-hoc SQL on the analytics service.
type SQLRunner interface {
	Execute(ctx context.Context, sql string) (*analytics.Result, error)
}

// NewHandler wires the API. runner may be nil when the analytics service is
// disabled.
func NewHandler(collector *Collector, analysis *Analyzer, runner SQLRunner, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{collector: collector, analysis: analysis, analytics: runner, log: log}
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// handleError writes AppErrors directly and leaves everything else to the
// application error handler.
func handleError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return respondError(c, appErr)
	}
	return err
}
