package admin

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

func (h *Handler) ListAreas(c *fiber.Ctx) error {
	areas, err := store.ListAreas(c.UserContext(), h.store.Pool)
	if err != nil {
		return fmt.Errorf("list areas: %w", err)
	}
	if areas == nil {
		areas = []*metadata.Area{}
	}
	return c.JSON(fiber.Map{"data": areas})
}

func (h *Handler) CreateArea(c *fiber.Ctx) error {
	var a metadata.Area
	if appErr := parseBody(c, &a); appErr != nil {
		return respondError(c, appErr)
	}
	return h.saveArea(c, &a, store.CreateArea, fiber.StatusCreated)
}

// UpdateArea renames or moves an area. Moving an area leaves the levels of
// its descendants as they were.
func (h *Handler) UpdateArea(c *fiber.Ctx) error {
	var a metadata.Area
	if appErr := parseBody(c, &a); appErr != nil {
		return respondError(c, appErr)
	}
	a.Code = c.Params("code")
	return h.saveArea(c, &a, store.UpdateArea, fiber.StatusOK)
}

// saveArea validates a against the tree as read inside the same transaction.
func (h *Handler) saveArea(c *fiber.Ctx, a *metadata.Area, write func(ctx context.Context, q store.Querier, a *metadata.Area) error, status int) error {
	var invalidErr error
	err := h.store.WithTx(c.UserContext(), func(tx pgx.Tx) error {
		tree, err := store.LoadAreaTree(c.UserContext(), tx)
		if err != nil {
			return err
		}
		if invalidErr = validateArea(a, tree); invalidErr != nil {
			return nil
		}
		return write(c.UserContext(), tx, a)
	})
	if invalidErr != nil {
		return invalid(c, invalidErr)
	}
	if err != nil {
		return fail(c, err, "area", a.Code)
	}
	return c.Status(status).JSON(fiber.Map{"data": a})
}

func (h *Handler) DeleteArea(c *fiber.Ctx) error {
	code := c.Params("code")
	if err := store.DeleteArea(c.UserContext(), h.store.Pool, code); err != nil {
		return fail(c, err, "area", code)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"code": code, "deleted": true}})
}
