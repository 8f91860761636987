package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// PageMeta is the paging block of list responses.
type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

// recordFilterFields are the roster record columns filter[...] accepts.
var recordFilterFields = map[string]bool{
	"status":    true,
	"area_code": true,
}

// ParseRecordQuery reads filter[field]=val, page and per_page from the query
// string into a record filter for rosterID.
func ParseRecordQuery(c *fiber.Ctx, rosterID string) (store.RecordFilter, PageMeta, error) {
	f := store.RecordFilter{RosterID: rosterID}
	meta := PageMeta{Page: 1, PerPage: defaultPerPage}

	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field := key[7 : len(key)-1]
		if !recordFilterFields[field] {
			return f, meta, &AppError{
				Code:    "UNKNOWN_FIELD",
				Status:  400,
				Message: fmt.Sprintf("Unknown filter field: %s", field),
			}
		}
		switch field {
		case "status":
			st, err := metadata.ParseRecordStatus(strings.ToUpper(val))
			if err != nil {
				return f, meta, BadRequestError(fmt.Sprintf("Invalid filter value for status: %v", err))
			}
			f.Status = string(st)
		case "area_code":
			f.AreaCode = val
		}
	}

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			meta.Page = v
		}
	}
	if pp := c.Query("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			meta.PerPage = min(v, maxPerPage)
		}
	}

	f.Limit = meta.PerPage
	f.Offset = (meta.Page - 1) * meta.PerPage
	return f, meta, nil
}

// parseDegree reads the :degree route parameter.
func parseDegree(c *fiber.Ctx) (int, error) {
	degree, err := strconv.Atoi(c.Params("degree"))
	if err != nil || degree < 1 {
		return 0, BadRequestError(fmt.Sprintf("Invalid degree: %q", c.Params("degree")))
	}
	return degree, nil
}
