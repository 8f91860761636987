package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These requests are all rejected before the store is touched, so the
// handler runs without a database.
func testApp() *fiber.App {
	app := fiber.New()
	RegisterAdminRoutes(app, NewHandler(nil, nil))
	return app
}

func send(t *testing.T, app *fiber.App, method, path, contentType, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestAdmin_InvalidJSON(t *testing.T) {
	app := testApp()
	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/_admin/surveys"},
		{http.MethodPut, "/api/_admin/surveys/s1/design"},
		{http.MethodPost, "/api/_admin/areas"},
		{http.MethodPost, "/api/_admin/rosters"},
		{http.MethodPost, "/api/_admin/rosters/r1/records"},
		{http.MethodPut, "/api/_admin/records/x/assign"},
		{http.MethodPost, "/api/_admin/rosters/r1/questionnaires"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			status, body := send(t, app, p.method, p.path, "application/json", `{"broken"`)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "INVALID_PAYLOAD", errorCode(body))
		})
	}
}

func TestAdmin_CreateSurveyValidation(t *testing.T) {
	status, body := send(t, testApp(), http.MethodPost, "/api/_admin/surveys", "application/json", `{"name": "Household"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestAdmin_SaveDesignRejectsBadRules(t *testing.T) {
	payload := `{
		"list_schema": [{"id": "hh_name", "type": "text"}],
		"survey_schema": [],
		"edit_rules": [
			{"rule_id": "E1", "target_field": "age", "condition": "{age} <", "message": "bad"},
			{"rule_id": "E2", "target_field": "age", "condition": "{age} < 0", "message": ""}
		]
	}`
	status, body := send(t, testApp(), http.MethodPut, "/api/_admin/surveys/s1/design", "application/json", payload)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_RULE", errorCode(body))

	details := body["error"].(map[string]any)["details"].([]any)
	assert.Len(t, details, 2)
}

func TestAdmin_SaveDesignRejectsDuplicateFields(t *testing.T) {
	payload := `{"list_schema": [{"id": "a"}, {"id": "a"}], "edit_rules": []}`
	status, body := send(t, testApp(), http.MethodPut, "/api/_admin/surveys/s1/design", "application/json", payload)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestAdmin_ImportRules(t *testing.T) {
	app := testApp()

	status, body := send(t, app, http.MethodPut, "/api/_admin/surveys/s1/rules.yaml", "application/yaml", "rules: [unclosed")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(body))

	status, body = send(t, app, http.MethodPut, "/api/_admin/surveys/s1/rules.yaml", "application/yaml",
		"rules:\n  - rule_id: E1\n    condition: \"{age} <\"\n    message: bad\n")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_RULE", errorCode(body))
}

func TestAdmin_QuestionnaireValidation(t *testing.T) {
	app := testApp()

	status, body := send(t, app, http.MethodGet, "/api/_admin/questionnaires/S00001/versions/zero", "application/json", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(body))

	status, _ = send(t, app, http.MethodPost, "/api/_admin/questionnaires/S00001/versions/0/confirm", "application/json", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = send(t, app, http.MethodPost, "/api/_admin/rosters/r1/questionnaires", "application/json",
		`{"name": "Household", "design_data": [{"id": "age"}, {"id": "age"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = send(t, app, http.MethodPut, "/api/_admin/questionnaires/S00001/versions/1", "application/json",
		`{"name": " ", "design_data": []}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestAdmin_CreateRecordValidation(t *testing.T) {
	status, body := send(t, testApp(), http.MethodPost, "/api/_admin/rosters/r1/records", "application/json",
		`{"respondent_id": "R-1", "status": "LOST"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}
