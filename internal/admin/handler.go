package admin

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"survey-backend/internal/engine"
	"survey-backend/internal/logger"
	"survey-backend/internal/store"
)

// Handler serves the design administration API.
type Handler struct {
	store *store.Store
	log   *logger.Logger
}

func NewHandler(s *store.Store, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{store: s, log: log}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/surveys", h.ListSurveys)
	admin.Get("/surveys/:id", h.GetSurvey)
	admin.Post("/surveys", h.CreateSurvey)
	admin.Put("/surveys/:id", h.UpdateSurvey)
	admin.Delete("/surveys/:id", h.DeleteSurvey)

	admin.Get("/surveys/:id/design", h.GetDesign)
	admin.Put("/surveys/:id/design", h.SaveDesign)
	admin.Get("/surveys/:id/rules.yaml", h.ExportRules)
	admin.Put("/surveys/:id/rules.yaml", h.ImportRules)

	admin.Get("/areas", h.ListAreas)
	admin.Post("/areas", h.CreateArea)
	admin.Put("/areas/:code", h.UpdateArea)
	admin.Delete("/areas/:code", h.DeleteArea)

	admin.Get("/rosters", h.ListRosters)
	admin.Get("/rosters/:id", h.GetRoster)
	admin.Post("/rosters", h.CreateRoster)
	admin.Put("/rosters/:id", h.UpdateRoster)
	admin.Delete("/rosters/:id", h.DeleteRoster)

	admin.Get("/rosters/:id/records", h.ListRecords)
	admin.Post("/rosters/:id/records", h.CreateRecord)
	admin.Put("/records/:id", h.UpdateRecord)
	admin.Put("/records/:id/assign", h.AssignRecord)

	admin.Get("/rosters/:id/questionnaires", h.ListQuestionnaires)
	admin.Post("/rosters/:id/questionnaires", h.CreateQuestionnaire)
	admin.Get("/questionnaires/:formId/versions/:version", h.GetQuestionnaire)
	admin.Put("/questionnaires/:formId/versions/:version", h.UpdateQuestionnaire)
	admin.Post("/questionnaires/:formId/versions", h.NewVersion)
	admin.Post("/questionnaires/:formId/versions/:version/confirm", h.ConfirmQuestionnaire)
}

func respondError(c *fiber.Ctx, appErr *engine.AppError) error {
	return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
}

// fail answers client errors directly and passes anything unexpected to the
// application error handler.
func fail(c *fiber.Ctx, err error, entity, id string) error {
	var appErr *engine.AppError
	if errors.As(engine.MapStoreError(err, entity, id), &appErr) {
		return respondError(c, appErr)
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

func parseBody(c *fiber.Ctx, v any) *engine.AppError {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return engine.BadRequestError(fmt.Sprintf("Invalid JSON body: %v", err))
	}
	return nil
}

func invalid(c *fiber.Ctx, err error) error {
	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return respondError(c, appErr)
	}
	return respondError(c, engine.ValidationError([]engine.ErrorDetail{{Message: err.Error()}}))
}
