package engine

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"survey-backend/internal/editing"
	"survey-backend/internal/metadata"
)

type saveBody struct {
	Answers   *metadata.AnswerSet `json:"answers"`
	ForceSave bool                `json:"force_save"`
}

// ListRecords handles GET /api/collect/rosters/:rosterId/records
func (h *Handler) ListRecords(c *fiber.Ctx) error {
	filter, meta, err := ParseRecordQuery(c, c.Params("rosterId"))
	if err != nil {
		return handleError(c, err)
	}

	records, total, err := h.collector.ListRecords(c.UserContext(), getUser(c), filter)
	if err != nil {
		return handleError(c, MapStoreError(err, "roster", filter.RosterID))
	}
	if records == nil {
		records = []*metadata.RosterRecord{}
	}
	meta.Total = total
	return c.JSON(fiber.Map{"data": records, "meta": meta})
}

// GetRound handles GET /api/collect/records/:id/degrees/:degree
func (h *Handler) GetRound(c *fiber.Ctx) error {
	degree, err := parseDegree(c)
	if err != nil {
		return handleError(c, err)
	}
	id := c.Params("id")

	round, err := h.collector.Get(c.UserContext(), getUser(c), id, degree)
	if err != nil {
		return handleError(c, err)
	}

	warnings := round.Answers.Warnings
	if warnings == nil {
		warnings = []metadata.WarningDescriptor{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"record_id":      round.ID,
		"base_record_id": id,
		"degree":         round.Degree,
		"status":         round.Status,
		"answers":        round.Answers,
		"warnings":       warnings,
		"updated_at":     round.UpdatedAt,
	}})
}

// SaveRound handles POST /api/collect/records/:id/degrees/:degree
func (h *Handler) SaveRound(c *fiber.Ctx) error {
	degree, err := parseDegree(c)
	if err != nil {
		return handleError(c, err)
	}

	var body saveBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return respondError(c, BadRequestError(fmt.Sprintf("Invalid JSON body: %v", err)))
	}
	if body.Answers == nil {
		return respondError(c, BadRequestError("answers is required"))
	}

	res, err := h.collector.Save(c.UserContext(), SaveRequest{
		BaseRecordID: c.Params("id"),
		Degree:       degree,
		Answers:      body.Answers,
		Force:        body.ForceSave,
		User:         getUser(c),
	})
	if err != nil {
		return handleError(c, err)
	}

	warnings := editing.Messages(res.Outcome.Warnings)
	switch res.State {
	case editing.StateRejected:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"status":   "error",
			"errors":   editing.Messages(res.Outcome.Errors),
			"warnings": warnings,
		})
	case editing.StatePendingConfirmation:
		return c.JSON(fiber.Map{
			"status":   "warning",
			"warnings": warnings,
			"message":  "Warnings found. Save again with force_save to keep the answers.",
		})
	default:
		return c.JSON(fiber.Map{
			"status":    "success",
			"warnings":  warnings,
			"record_id": res.Record.ID,
		})
	}
}
