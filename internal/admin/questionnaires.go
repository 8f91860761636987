package admin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"survey-backend/internal/engine"
	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

type formBody struct {
	Name   string           `json:"name"`
	Fields []metadata.Field `json:"design_data"`
}

func (b *formBody) validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("questionnaire name is required")
	}
	if b.Fields == nil {
		b.Fields = []metadata.Field{}
	}
	return validateFields(b.Fields)
}

func versionParam(c *fiber.Ctx) (int, *engine.AppError) {
	v, err := strconv.Atoi(c.Params("version"))
	if err != nil || v < 1 {
		return 0, engine.BadRequestError(fmt.Sprintf("Invalid version: %q", c.Params("version")))
	}
	return v, nil
}

func (h *Handler) ListQuestionnaires(c *fiber.Ctx) error {
	forms, err := store.ListForms(c.UserContext(), h.store.Pool, c.Params("id"))
	if err != nil {
		return fmt.Errorf("list questionnaires: %w", err)
	}
	if forms == nil {
		forms = []*metadata.FormVersion{}
	}
	return c.JSON(fiber.Map{"data": forms})
}

// CreateQuestionnaire starts a new questionnaire at version 1 as a draft.
func (h *Handler) CreateQuestionnaire(c *fiber.Ctx) error {
	var body formBody
	if appErr := parseBody(c, &body); appErr != nil {
		return respondError(c, appErr)
	}
	if err := body.validate(); err != nil {
		return invalid(c, err)
	}

	f := &metadata.FormVersion{
		RosterID: c.Params("id"),
		Name:     body.Name,
		Version:  1,
		Status:   metadata.FormDraft,
		Fields:   body.Fields,
	}
	err := h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		if _, err := store.GetRoster(c.UserContext(), tx, f.RosterID); err != nil {
			return err
		}
		return store.CreateForm(c.UserContext(), tx, f)
	})
	if err != nil {
		return fail(c, err, "roster", f.RosterID)
	}
	h.log.Info("questionnaire created", "form_id", f.FormID, "roster_id", f.RosterID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": f})
}

func (h *Handler) GetQuestionnaire(c *fiber.Ctx) error {
	version, appErr := versionParam(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	formID := c.Params("formId")
	f, err := store.GetForm(c.UserContext(), h.store.Pool, formID, version)
	if err != nil {
		return fail(c, err, "questionnaire", metadata.FormVersionID(formID, version))
	}
	return c.JSON(fiber.Map{"data": f})
}

// UpdateQuestionnaire edits a draft. Confirmed versions cannot change.
func (h *Handler) UpdateQuestionnaire(c *fiber.Ctx) error {
	version, appErr := versionParam(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	formID := c.Params("formId")
	var body formBody
	if appErr := parseBody(c, &body); appErr != nil {
		return respondError(c, appErr)
	}
	if err := body.validate(); err != nil {
		return invalid(c, err)
	}

	var f *metadata.FormVersion
	err := h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		var err error
		if f, err = store.GetForm(c.UserContext(), tx, formID, version); err != nil {
			return err
		}
		if f.IsConfirmed() {
			return engine.ConflictError(fmt.Sprintf("%s is confirmed and cannot be edited", f.VersionID()))
		}
		f.Name = body.Name
		f.Fields = body.Fields
		return store.UpdateDraft(c.UserContext(), tx, f)
	})
	if err != nil {
		return fail(c, err, "questionnaire", metadata.FormVersionID(formID, version))
	}
	return c.JSON(fiber.Map{"data": f})
}

// NewVersion clones the latest version of a questionnaire into a new draft.
// Every field of the clone remembers its origin id, so rules written against
// the old ids keep resolving after fields are renamed.
func (h *Handler) NewVersion(c *fiber.Ctx) error {
	formID := c.Params("formId")
	var draft *metadata.FormVersion
	err := h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		latest, err := store.GetLatestForm(c.UserContext(), tx, formID)
		if err != nil {
			return err
		}
		if !latest.IsConfirmed() {
			return engine.ConflictError(fmt.Sprintf("%s is still a draft; confirm it before starting a new version", latest.VersionID()))
		}
		draft = latest.NextDraft()
		return store.CreateForm(c.UserContext(), tx, draft)
	})
	if err != nil {
		return fail(c, err, "questionnaire", formID)
	}
	h.log.Info("questionnaire version created", "form_id", formID, "version", draft.Version)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": draft})
}

// ConfirmQuestionnaire freezes a draft. Only confirmed versions take part in
// rule evaluation.
func (h *Handler) ConfirmQuestionnaire(c *fiber.Ctx) error {
	version, appErr := versionParam(c)
	if appErr != nil {
		return respondError(c, appErr)
	}
	formID := c.Params("formId")

	var f *metadata.FormVersion
	err := h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		var err error
		if f, err = store.GetForm(c.UserContext(), tx, formID, version); err != nil {
			return err
		}
		if f.IsConfirmed() {
			return engine.ConflictError(fmt.Sprintf("%s is already confirmed", f.VersionID()))
		}
		return store.ConfirmForm(c.UserContext(), tx, f)
	})
	if err != nil {
		return fail(c, err, "questionnaire", metadata.FormVersionID(formID, version))
	}
	h.log.Info("questionnaire confirmed", "form_id", formID, "version", version)
	return c.JSON(fiber.Map{"data": f})
}
