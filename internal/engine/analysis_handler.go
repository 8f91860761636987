package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"survey-backend/internal/analytics"
	"survey-backend/internal/metadata"
)

// Pivot handles POST /api/analysis/pivot
func (h *Handler) Pivot(c *fiber.Ctx) error {
	if err := CheckRole(getUser(c), metadata.RoleManager); err != nil {
		return handleError(c, err)
	}

	var req PivotRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return respondError(c, BadRequestError(fmt.Sprintf("Invalid JSON body: %v", err)))
	}

	res, err := h.analysis.Pivot(c.UserContext(), req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"data": res})
}

type sqlBody struct {
	SQL string `json:"sql"`
}

// RunSQL handles POST /api/analysis/sql by forwarding the statement to the
// analytics service.
func (h *Handler) RunSQL(c *fiber.Ctx) error {
	if err := CheckRole(getUser(c), metadata.RoleManager); err != nil {
		return handleError(c, err)
	}
	if h.analytics == nil {
		return respondError(c, UnavailableError("Analytics service is not configured"))
	}

	var body sqlBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return respondError(c, BadRequestError(fmt.Sprintf("Invalid JSON body: %v", err)))
	}
	if strings.TrimSpace(body.SQL) == "" {
		return respondError(c, BadRequestError("sql is required"))
	}

	res, err := h.analytics.Execute(c.UserContext(), body.SQL)
	if err != nil {
		var se *analytics.StatusError
		if errors.As(err, &se) {
			h.log.Warn("analytics query rejected", "status", se.Status, "op", se.Op)
			return respondError(c, UpstreamError(fmt.Sprintf("Analytics service answered %d: %s", se.Status, se.Body)))
		}
		h.log.Error("analytics query failed", "error", err)
		return respondError(c, UpstreamError("Analytics service is unreachable"))
	}
	return c.JSON(fiber.Map{"data": res})
}
