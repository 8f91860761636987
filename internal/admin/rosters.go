package admin

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"survey-backend/internal/engine"
	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

// --- Roster Endpoints ---

func (h *Handler) ListRosters(c *fiber.Ctx) error {
	rosters, err := store.ListRosters(c.UserContext(), h.store.Pool, c.Query("survey_id"))
	if err != nil {
		return fmt.Errorf("list rosters: %w", err)
	}
	if rosters == nil {
		rosters = []*metadata.Roster{}
	}
	return c.JSON(fiber.Map{"data": rosters})
}

func (h *Handler) GetRoster(c *fiber.Ctx) error {
	id := c.Params("id")
	r, err := store.GetRoster(c.UserContext(), h.store.Pool, id)
	if err != nil {
		return fail(c, err, "roster", id)
	}
	return c.JSON(fiber.Map{"data": r})
}

// CreateRoster allocates the roster code in the same transaction as the
// insert, so a failed insert does not use up a code.
func (h *Handler) CreateRoster(c *fiber.Ctx) error {
	var r metadata.Roster
	if appErr := parseBody(c, &r); appErr != nil {
		return respondError(c, appErr)
	}
	r.ID = ""
	if err := validateRoster(&r); err != nil {
		return invalid(c, err)
	}

	err := h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		return store.CreateRoster(c.UserContext(), tx, &r)
	})
	if err != nil {
		return fail(c, err, "roster", r.Name)
	}
	h.log.Info("roster created", "roster_id", r.ID, "code", r.Code)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": r})
}

func (h *Handler) UpdateRoster(c *fiber.Ctx) error {
	id := c.Params("id")
	existing, err := store.GetRoster(c.UserContext(), h.store.Pool, id)
	if err != nil {
		return fail(c, err, "roster", id)
	}

	var r metadata.Roster
	if appErr := parseBody(c, &r); appErr != nil {
		return respondError(c, appErr)
	}
	r.ID = id
	r.SurveyID = existing.SurveyID
	r.Code = existing.Code
	r.CreatedAt = existing.CreatedAt
	if err := validateRoster(&r); err != nil {
		return invalid(c, err)
	}
	if err := store.UpdateRoster(c.UserContext(), h.store.Pool, &r); err != nil {
		return fail(c, err, "roster", id)
	}
	return c.JSON(fiber.Map{"data": r})
}

func (h *Handler) DeleteRoster(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := store.DeleteRoster(c.UserContext(), h.store.Pool, id); err != nil {
		return fail(c, err, "roster", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// --- Roster Record Endpoints ---

func (h *Handler) ListRecords(c *fiber.Ctx) error {
	rosterID := c.Params("id")
	filter, meta, err := engine.ParseRecordQuery(c, rosterID)
	if err != nil {
		return invalid(c, err)
	}
	filter.All = true

	records, total, err := store.ListRosterRecords(c.UserContext(), h.store.Pool, filter)
	if err != nil {
		return fail(c, err, "roster", rosterID)
	}
	if records == nil {
		records = []*metadata.RosterRecord{}
	}
	meta.Total = total
	return c.JSON(fiber.Map{"data": records, "meta": meta})
}

func (h *Handler) CreateRecord(c *fiber.Ctx) error {
	var r metadata.RosterRecord
	if appErr := parseBody(c, &r); appErr != nil {
		return respondError(c, appErr)
	}
	r.RosterID = c.Params("id")
	if err := validateRecord(&r); err != nil {
		return invalid(c, err)
	}
	if err := store.CreateRosterRecord(c.UserContext(), h.store.Pool, &r); err != nil {
		return fail(c, err, "roster_record", r.RespondentID)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": r})
}

// UpdateRecord replaces the list values and status of a base record.
func (h *Handler) UpdateRecord(c *fiber.Ctx) error {
	id := c.Params("id")
	existing, err := store.GetRosterRecord(c.UserContext(), h.store.Pool, id)
	if err != nil {
		return fail(c, err, "roster_record", id)
	}

	var body struct {
		ListValues map[string]any        `json:"list_values"`
		Status     metadata.RecordStatus `json:"status"`
	}
	if appErr := parseBody(c, &body); appErr != nil {
		return respondError(c, appErr)
	}
	if body.ListValues != nil {
		existing.ListValues = body.ListValues
	}
	if body.Status != "" {
		existing.Status = body.Status
	}
	if err := validateRecord(existing); err != nil {
		return invalid(c, err)
	}
	if err := store.UpdateRosterRecord(c.UserContext(), h.store.Pool, existing); err != nil {
		return fail(c, err, "roster_record", id)
	}
	return c.JSON(fiber.Map{"data": existing})
}

// AssignRecord sets the area and collector of a base record.
func (h *Handler) AssignRecord(c *fiber.Ctx) error {
	id := c.Params("id")
	var body struct {
		AreaCode   string `json:"area_code"`
		AssigneeID string `json:"assignee_id"`
	}
	if appErr := parseBody(c, &body); appErr != nil {
		return respondError(c, appErr)
	}

	var r *metadata.RosterRecord
	err := h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		var err error
		if r, err = store.GetRosterRecord(c.UserContext(), tx, id); err != nil {
			return err
		}
		if body.AreaCode != "" {
			if _, err := store.GetArea(c.UserContext(), tx, body.AreaCode); err != nil {
				return engine.ValidationError([]engine.ErrorDetail{{Field: "area_code", Message: "unknown area " + body.AreaCode}})
			}
		}
		r.AreaCode = body.AreaCode
		r.AssigneeID = body.AssigneeID
		return store.AssignRosterRecord(c.UserContext(), tx, r)
	})
	if err != nil {
		return fail(c, err, "roster_record", id)
	}
	h.log.Info("record assigned", "record_id", id, "area_code", r.AreaCode, "assignee_id", r.AssigneeID)
	return c.JSON(fiber.Map{"data": r})
}
