package admin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-backend/internal/engine"
	"survey-backend/internal/metadata"
)

func TestPrepareRules_Normalizes(t *testing.T) {
	rules, err := PrepareRules([]metadata.EditRule{
		{ID: " R1 ", TargetFormID: " S00001 ", Condition: "{age} < 0", Message: "negative age", Severity: "warn"},
		{Condition: "{name} == ''", Message: "name missing"},
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "R1", rules[0].ID)
	assert.Equal(t, "S00001", rules[0].TargetFormID)
	assert.Equal(t, metadata.SeverityWarning, rules[0].Severity)
	assert.NotEmpty(t, rules[1].ID, "missing ids are generated")
	assert.Equal(t, metadata.SeverityError, rules[1].Severity)
}

func TestPrepareRules_CollectsAllProblems(t *testing.T) {
	_, err := PrepareRules([]metadata.EditRule{
		{ID: "R1", Condition: "{age} <", Message: "broken"},
		{ID: "R2", Condition: "{age} > 1", Message: "  "},
		{ID: "R1", Condition: "{age} > 2", Message: "dup", Severity: "fatal"},
	})
	require.Error(t, err)

	var appErr *engine.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_RULE", appErr.Code)
	assert.Equal(t, 422, appErr.Status)

	var messages []string
	for _, d := range appErr.Details {
		messages = append(messages, d.Rule+": "+d.Message)
	}
	assert.Len(t, appErr.Details, 4)
	assert.Contains(t, messages, "R2: message is required")
	assert.Contains(t, messages, "R1: duplicate rule_id")
	assert.Contains(t, messages, `R1: unknown severity "fatal"`)
}

func TestPrepareRules_Empty(t *testing.T) {
	rules, err := PrepareRules(nil)
	require.NoError(t, err)
	assert.NotNil(t, rules)
	assert.Empty(t, rules)
}

func TestValidateRuleTargets(t *testing.T) {
	forms := []*metadata.FormVersion{
		{FormID: "S00001", Version: 1, Status: metadata.FormConfirmed},
		{FormID: "S00001", Version: 2, Status: metadata.FormDraft},
	}
	rules := []metadata.EditRule{
		{ID: "E1", TargetFormID: "S00001"},
		{ID: "E2", TargetFormID: "S00001-V2"},
		{ID: "E3"},
	}
	assert.NoError(t, validateRuleTargets(rules, forms))

	err := validateRuleTargets(append(rules,
		metadata.EditRule{ID: "E4", TargetFormID: "S00001-V3"},
		metadata.EditRule{ID: "E5", TargetFormID: "S00009"},
	), forms)
	var appErr *engine.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_RULE", appErr.Code)
	require.Len(t, appErr.Details, 2)
	assert.Equal(t, "E4", appErr.Details[0].Rule)
	assert.Equal(t, "edit_rules[4]", appErr.Details[1].Field)

	assert.Error(t, validateRuleTargets([]metadata.EditRule{{ID: "E1", TargetFormID: "S00001"}}, nil))
}

func TestValidateFields(t *testing.T) {
	ok := []metadata.Field{
		{ID: "age", Type: "number"},
		{ID: "kids", Type: "table", Columns: []metadata.Field{{ID: "name"}, {ID: "age"}}},
	}
	assert.NoError(t, validateFields(ok))

	assert.ErrorContains(t, validateFields([]metadata.Field{{ID: ""}}), "no id")
	assert.ErrorContains(t, validateFields([]metadata.Field{{ID: "a"}, {ID: "a"}}), `duplicate field id "a"`)
	assert.ErrorContains(t, validateFields([]metadata.Field{
		{ID: "kids", Type: "table", Columns: []metadata.Field{{ID: "name"}, {ID: "name"}}},
	}), `duplicate column "name"`)
}

func areaTree() *metadata.AreaTree {
	return metadata.NewAreaTree([]*metadata.Area{
		{Code: "11", Name: "Seoul", Level: 1},
		{Code: "11010", Name: "Jongno-gu", ParentCode: "11", Level: 2},
		{Code: "1101053", Name: "Sajik-dong", ParentCode: "11010", Level: 3},
	})
}

func TestValidateArea(t *testing.T) {
	tree := areaTree()

	a := &metadata.Area{Code: " 1101054 ", Name: "Samcheong-dong", ParentCode: "11010"}
	require.NoError(t, validateArea(a, tree))
	assert.Equal(t, "1101054", a.Code)
	assert.Equal(t, 3, a.Level)

	root := &metadata.Area{Code: "26", Name: "Busan"}
	require.NoError(t, validateArea(root, tree))
	assert.Equal(t, 1, root.Level)

	assert.ErrorContains(t, validateArea(&metadata.Area{Code: "11", Name: "x", ParentCode: "11"}, tree), "own parent")
	assert.ErrorContains(t, validateArea(&metadata.Area{Code: "12", Name: "x", ParentCode: "99"}, tree), "does not exist")
	assert.ErrorContains(t, validateArea(&metadata.Area{Code: "11", Name: "Seoul", ParentCode: "1101053"}, tree), "cycle")
	assert.ErrorContains(t, validateArea(&metadata.Area{Code: "12"}, tree), "name is required")
}

func TestValidateSurveyAndRecord(t *testing.T) {
	s := &metadata.Survey{Code: "HH", Name: "Household"}
	require.NoError(t, validateSurvey(s))
	assert.Equal(t, 1, s.Degree)
	assert.Error(t, validateSurvey(&metadata.Survey{Code: "HH", Name: "x", Degree: -1}))
	assert.Error(t, validateSurvey(&metadata.Survey{Name: "x"}))

	r := &metadata.RosterRecord{RespondentID: " R-1 "}
	require.NoError(t, validateRecord(r))
	assert.Equal(t, "R-1", r.RespondentID)
	assert.Equal(t, metadata.StatusReady, r.Status)
	assert.Error(t, validateRecord(&metadata.RosterRecord{RespondentID: "R-2", Status: "LOST"}))
}
