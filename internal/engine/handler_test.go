package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-backend/internal/analytics"
	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

type staticRounds []store.RoundRow

func (s staticRounds) ListRoundRows(context.Context, string, int) ([]store.RoundRow, error) {
	return s, nil
}

type fakeRunner struct {
	sql string
	err error
}

func (f *fakeRunner) Execute(_ context.Context, sql string) (*analytics.Result, error) {
	f.sql = sql
	if f.err != nil {
		return nil, f.err
	}
	return &analytics.Result{Status: "success", Data: []map[string]any{{"n": 1}}}, nil
}

func testApp(h *Handler, user *metadata.UserContext) *fiber.App {
	app := fiber.New()
	withUser := func(c *fiber.Ctx) error {
		if user != nil {
			c.Locals("user", user)
		}
		return c.Next()
	}
	RegisterCollectRoutes(app, h, withUser)
	RegisterAnalysisRoutes(app, h, withUser)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return resp.StatusCode, out
}

func TestSaveRoundHandler_ResponseShapes(t *testing.T) {
	rounds := newMemRounds()
	h := NewHandler(newTestCollector(rounds, nil), nil, nil, nil)
	app := testApp(h, admin)
	path := "/api/collect/records/b1/degrees/1"

	status, body := doJSON(t, app, http.MethodPost, path, `{"answers": {"S00001-V1": {"age": -3}}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, []any{"age must not be negative"}, body["errors"])
	assert.Equal(t, []any{}, body["warnings"])

	status, body = doJSON(t, app, http.MethodPost, path, `{"answers": {"S00001-V1": {"age": 120}}}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "warning", body["status"])
	assert.Equal(t, []any{"age is over 100"}, body["warnings"])
	assert.NotEmpty(t, body["message"])
	assert.Empty(t, rounds.rounds)

	status, body = doJSON(t, app, http.MethodPost, path, `{"answers": {"S00001-V1": {"age": 120}}, "force_save": true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []any{"age is over 100"}, body["warnings"])
	assert.Equal(t, "round-b1/1", body["record_id"])

	status, body = doJSON(t, app, http.MethodGet, path, "")
	assert.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ING", data["status"])
	warnings := data["warnings"].([]any)
	require.Len(t, warnings, 1)
	w := warnings[0].(map[string]any)
	assert.Equal(t, "W1", w["rule_id"])
	assert.Equal(t, "{age} > 100", w["condition"])
	assert.Equal(t, "age", w["target_field"])
	stored := data["answers"].(map[string]any)
	assert.Contains(t, stored, metadata.WarningsKey)
}

func TestSaveRoundHandler_BadRequests(t *testing.T) {
	h := NewHandler(newTestCollector(newMemRounds(), nil), nil, nil, nil)
	app := testApp(h, admin)

	status, body := doJSON(t, app, http.MethodPost, "/api/collect/records/b1/degrees/x", `{"answers": {}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PAYLOAD", body["error"].(map[string]any)["code"])

	status, _ = doJSON(t, app, http.MethodPost, "/api/collect/records/b1/degrees/1", `{"answers": [1]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodPost, "/api/collect/records/b1/degrees/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, app, http.MethodGet, "/api/collect/records/missing/degrees/1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestSaveRoundHandler_ForbiddenForOtherArea(t *testing.T) {
	h := NewHandler(newTestCollector(newMemRounds(), nil), nil, nil, nil)
	app := testApp(h, outsider)

	status, body := doJSON(t, app, http.MethodGet, "/api/collect/records/b1/degrees/1", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])
}

func TestListRecordsHandler_Paging(t *testing.T) {
	rounds := newMemRounds()
	h := NewHandler(newTestCollector(rounds, nil), nil, nil, nil)
	app := testApp(h, admin)

	status, body := doJSON(t, app, http.MethodGet, "/api/collect/rosters/r1/records?page=2&per_page=500&filter[status]=ing", "")
	assert.Equal(t, http.StatusOK, status)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["page"])
	assert.Equal(t, float64(maxPerPage), meta["per_page"])
	assert.Equal(t, float64(2), meta["total"])
	assert.Equal(t, "ING", rounds.lastList.Status)
	assert.Equal(t, maxPerPage, rounds.lastList.Offset)

	status, body = doJSON(t, app, http.MethodGet, "/api/collect/rosters/r1/records?filter[name]=x", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "UNKNOWN_FIELD", body["error"].(map[string]any)["code"])
}

func TestPivotHandler(t *testing.T) {
	rows := staticRounds{
		{RespondentID: "R-1", AreaCode: "11", Status: metadata.StatusIng, ListValues: map[string]any{"sex": "F"}},
		{RespondentID: "R-2", AreaCode: "26", Status: metadata.StatusIng, ListValues: map[string]any{"sex": "M"}},
	}
	h := NewHandler(nil, NewAnalyzer(rows, nil), nil, nil)

	status, body := doJSON(t, testApp(h, admin), http.MethodPost, "/api/analysis/pivot",
		`{"roster_id": "r1", "degree": 1, "rows": ["area_code"], "aggregate": "count"}`)
	assert.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["records"])

	status, _ = doJSON(t, testApp(h, collector), http.MethodPost, "/api/analysis/pivot",
		`{"roster_id": "r1", "degree": 1, "rows": ["area_code"]}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = doJSON(t, testApp(h, admin), http.MethodPost, "/api/analysis/pivot",
		`{"roster_id": "r1", "degree": 1, "rows": ["area_code"], "filter": "status =="}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRunSQLHandler(t *testing.T) {
	runner := &fakeRunner{}
	app := testApp(NewHandler(nil, nil, runner, nil), admin)

	status, body := doJSON(t, app, http.MethodPost, "/api/analysis/sql", `{"sql": "SELECT 1 AS n"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SELECT 1 AS n", runner.sql)
	assert.Equal(t, "success", body["data"].(map[string]any)["status"])

	runner.err = &analytics.StatusError{Op: "execute", Status: 400, Body: "syntax error"}
	status, body = doJSON(t, app, http.MethodPost, "/api/analysis/sql", `{"sql": "SELEC"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"].(map[string]any)["message"], "syntax error")

	status, _ = doJSON(t, app, http.MethodPost, "/api/analysis/sql", `{"sql": "  "}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, testApp(NewHandler(nil, nil, nil, nil), admin), http.MethodPost, "/api/analysis/sql", `{"sql": "SELECT 1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
