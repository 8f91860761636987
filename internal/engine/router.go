package engine

import "github.com/gofiber/fiber/v2"

func RegisterCollectRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	collect := app.Group("/api/collect", middleware...)

	collect.Get("/rosters/:rosterId/records", h.ListRecords)
	collect.Get("/records/:id/degrees/:degree", h.GetRound)
	collect.Post("/records/:id/degrees/:degree", h.SaveRound)
}

func RegisterAnalysisRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	analysis := app.Group("/api/analysis", middleware...)

	analysis.Post("/pivot", h.Pivot)
	analysis.Post("/sql", h.RunSQL)
}
