package admin

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"survey-backend/internal/engine"
	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

// --- Survey Endpoints ---

func (h *Handler) ListSurveys(c *fiber.Ctx) error {
	surveys, err := store.ListSurveys(c.UserContext(), h.store.Pool)
	if err != nil {
		return fmt.Errorf("list surveys: %w", err)
	}
	if surveys == nil {
		surveys = []*metadata.Survey{}
	}
	return c.JSON(fiber.Map{"data": surveys})
}

func (h *Handler) GetSurvey(c *fiber.Ctx) error {
	id := c.Params("id")
	s, err := store.GetSurvey(c.UserContext(), h.store.Pool, id)
	if err != nil {
		return fail(c, err, "survey", id)
	}
	return c.JSON(fiber.Map{"data": s})
}

func (h *Handler) CreateSurvey(c *fiber.Ctx) error {
	var s metadata.Survey
	if appErr := parseBody(c, &s); appErr != nil {
		return respondError(c, appErr)
	}
	if err := validateSurvey(&s); err != nil {
		return invalid(c, err)
	}
	if err := store.CreateSurvey(c.UserContext(), h.store.Pool, &s); err != nil {
		return fail(c, err, "survey", s.Code)
	}
	h.log.Info("survey created", "survey_id", s.ID, "code", s.Code)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": s})
}

func (h *Handler) UpdateSurvey(c *fiber.Ctx) error {
	var s metadata.Survey
	if appErr := parseBody(c, &s); appErr != nil {
		return respondError(c, appErr)
	}
	s.ID = c.Params("id")
	if err := validateSurvey(&s); err != nil {
		return invalid(c, err)
	}
	if err := store.UpdateSurvey(c.UserContext(), h.store.Pool, &s); err != nil {
		return fail(c, err, "survey", s.ID)
	}
	return c.JSON(fiber.Map{"data": s})
}

func (h *Handler) DeleteSurvey(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := store.DeleteSurvey(c.UserContext(), h.store.Pool, id); err != nil {
		return fail(c, err, "survey", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// --- Design Endpoints ---

func (h *Handler) GetDesign(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := store.GetSurvey(c.UserContext(), h.store.Pool, id); err != nil {
		return fail(c, err, "survey", id)
	}
	d, err := store.GetDesign(c.UserContext(), h.store.Pool, id)
	if err != nil {
		return fmt.Errorf("get design %s: %w", id, err)
	}
	return c.JSON(fiber.Map{"data": d})
}

// SaveDesign replaces the item pools and rules of a survey. Rules are checked
// before anything is written.
func (h *Handler) SaveDesign(c *fiber.Ctx) error {
	var d metadata.Design
	if appErr := parseBody(c, &d); appErr != nil {
		return respondError(c, appErr)
	}
	d.SurveyID = c.Params("id")

	if err := validateFields(d.ListSchema); err != nil {
		return invalid(c, fmt.Errorf("list_schema: %w", err))
	}
	if err := validateFields(d.SurveySchema); err != nil {
		return invalid(c, fmt.Errorf("survey_schema: %w", err))
	}
	rules, err := PrepareRules(d.EditRules)
	if err != nil {
		return invalid(c, err)
	}
	d.EditRules = rules
	if d.ListSchema == nil {
		d.ListSchema = []metadata.Field{}
	}
	if d.SurveySchema == nil {
		d.SurveySchema = []metadata.Field{}
	}

	err = h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		if _, err := store.GetSurvey(c.UserContext(), tx, d.SurveyID); err != nil {
			return err
		}
		forms, err := store.ListSurveyForms(c.UserContext(), tx, d.SurveyID)
		if err != nil {
			return err
		}
		if err := validateRuleTargets(d.EditRules, forms); err != nil {
			return err
		}
		return store.SaveDesign(c.UserContext(), tx, &d)
	})
	if err != nil {
		return fail(c, err, "survey", d.SurveyID)
	}
	h.log.Info("survey design saved", "survey_id", d.SurveyID, "rules", len(d.EditRules))
	return c.JSON(fiber.Map{"data": d})
}

// ExportRules handles GET /surveys/:id/rules.yaml
func (h *Handler) ExportRules(c *fiber.Ctx) error {
	id := c.Params("id")
	s, err := store.GetSurvey(c.UserContext(), h.store.Pool, id)
	if err != nil {
		return fail(c, err, "survey", id)
	}
	d, err := store.GetDesign(c.UserContext(), h.store.Pool, id)
	if err != nil {
		return fmt.Errorf("get design %s: %w", id, err)
	}
	out, err := EncodeRules(s.Code, d.EditRules)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/yaml")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s-rules.yaml"`, s.Code))
	return c.Send(out)
}

// ImportRules handles PUT /surveys/:id/rules.yaml and replaces the rule set.
func (h *Handler) ImportRules(c *fiber.Ctx) error {
	id := c.Params("id")
	rules, err := DecodeRules(c.Body())
	if err != nil {
		return respondError(c, engine.BadRequestError(err.Error()))
	}
	rules, err = PrepareRules(rules)
	if err != nil {
		return invalid(c, err)
	}

	err = h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		if _, err := store.GetSurvey(c.UserContext(), tx, id); err != nil {
			return err
		}
		forms, err := store.ListSurveyForms(c.UserContext(), tx, id)
		if err != nil {
			return err
		}
		if err := validateRuleTargets(rules, forms); err != nil {
			return err
		}
		return store.SaveEditRules(c.UserContext(), tx, id, rules)
	})
	if err != nil {
		return fail(c, err, "survey", id)
	}
	h.log.Info("edit rules imported", "survey_id", id, "rules", len(rules))
	return c.JSON(fiber.Map{"data": fiber.Map{"survey_id": id, "edit_rules": rules}})
}
