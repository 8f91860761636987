package editing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-backend/internal/metadata"
)

func rule(id, condition string, sev metadata.Severity) metadata.EditRule {
	return metadata.EditRule{
		ID:          id,
		TargetField: "age",
		Condition:   condition,
		Message:     id + " violated",
		Severity:    sev,
	}
}

func TestEvaluate_NegativeAge(t *testing.T) {
	answers := answersFromJSON(t, `{"S00001-V1": {"age": -3}}`)
	r := rule("R1", "{age} < 0", metadata.SeverityError)

	lenient := NewEvaluator(nil, Options{NumericCoercion: true})
	v := lenient.Evaluate(r, answers, nil)
	require.NoError(t, v.Err)
	assert.True(t, v.Matched)
	assert.Equal(t, "'-3' < 0", v.Expression)

	strict := NewEvaluator(nil, Options{NumericCoercion: false})
	v = strict.Evaluate(r, answers, nil)
	assert.Error(t, v.Err)
	assert.False(t, v.Matched)
}

func TestEvaluate_ViolationFormOfPredicate(t *testing.T) {
	answers := answersFromJSON(t, `{"S00001-V1": {"kids": [{"age": "5"}, {"age": "-1"}]}}`)
	e := NewEvaluator(nil, Options{NumericCoercion: true})

	v := e.Evaluate(rule("R1", "not all_greater_equal({kids}[*][age], 0)", metadata.SeverityError), answers, nil)
	require.NoError(t, v.Err)
	assert.True(t, v.Matched)

	v = e.Evaluate(rule("R2", "all_greater_equal({kids}[*][age], 0)", metadata.SeverityError), answers, nil)
	require.NoError(t, v.Err)
	assert.False(t, v.Matched)
}

func TestEvaluate_EmptyTable(t *testing.T) {
	answers := answersFromJSON(t, `{"S00001-V1": {"kids": []}}`)
	e := NewEvaluator(nil, Options{NumericCoercion: true})

	v := e.Evaluate(rule("R1", "has_empty({kids}[*][name])", metadata.SeverityError), answers, nil)
	assert.True(t, v.Matched)
	v = e.Evaluate(rule("R2", "all_not_empty({kids}[*][name])", metadata.SeverityError), answers, nil)
	assert.False(t, v.Matched)
}

func TestEvaluate_FailsOpen(t *testing.T) {
	answers := answersFromJSON(t, `{"S00001-V1": {"age": 30, "t": [{"c": ""}]}}`)
	e := NewEvaluator(nil, Options{NumericCoercion: true})

	tests := []struct {
		name string
		rule metadata.EditRule
	}{
		{"syntax error", rule("R1", "{age} <", metadata.SeverityError)},
		{"disallowed call", rule("R2", "__import__('os') == 1", metadata.SeverityError)},
		{"type error", rule("R3", "[1] < 2", metadata.SeverityError)},
		{"malformed reference", rule("R5", "{t}[x][c] == ''", metadata.SeverityError)},
		{"empty condition", rule("R6", "   ", metadata.SeverityError)},
		{"unknown severity", rule("R7", "1 == 1", metadata.Severity("FATAL"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Evaluate(tt.rule, answers, nil)
			assert.False(t, v.Matched)
			assert.Error(t, v.Err)
		})
	}
}

func TestEvaluate_BareValueUsesTruthiness(t *testing.T) {
	answers := answersFromJSON(t, `{"S00001-V1": {"name": "kim", "note": "", "kids": []}}`)
	e := NewEvaluator(nil, Options{NumericCoercion: true})

	tests := []struct {
		condition string
		matched   bool
	}{
		{"{name}", true},
		{"{name} and True", true},
		{"{note}", false},
		{"{note} and True", false},
		{"{missing}", false},
		{"{kids}[*][age]", false},
		{"0", false},
		{"1", true},
	}
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			v := e.Evaluate(rule("R1", tt.condition, metadata.SeverityWarning), answers, nil)
			require.NoError(t, v.Err)
			assert.Equal(t, tt.matched, v.Matched)
		})
	}
}

func TestEvaluate_MalformedReferenceReported(t *testing.T) {
	e := NewEvaluator(nil, Options{NumericCoercion: true})
	v := e.Evaluate(rule("R1", "{t}[x][c] == ''", metadata.SeverityError), answersFromJSON(t, `{"F-V1": {}}`), nil)
	var refErr *ReferenceError
	assert.True(t, errors.As(v.Err, &refErr))
}

func TestEvaluate_TargetFormNotAnswered(t *testing.T) {
	answers := answersFromJSON(t, `{"S00001-V1": {"age": -3}}`)
	r := rule("R1", "{age} < 0", metadata.SeverityError)
	r.TargetFormID = "S00002-V1"

	v := NewEvaluator(nil, Options{NumericCoercion: true}).Evaluate(r, answers, nil)
	assert.True(t, v.Skipped)
	assert.False(t, v.Matched)
	assert.NoError(t, v.Err)
}

func TestEvaluate_TargetByFormOrVersion(t *testing.T) {
	e := NewEvaluator(nil, Options{NumericCoercion: true})
	answers := answersFromJSON(t, `{"S00001-V2": {"age": "-3"}}`)

	for _, target := range []string{"S00001", "S00001-V2"} {
		t.Run(target, func(t *testing.T) {
			r := rule("E1", "{age} < 0", metadata.SeverityError)
			r.TargetFormID = target

			v := e.Evaluate(r, answers, nil)
			assert.False(t, v.Skipped)
			assert.True(t, v.Matched)

			out := e.EvaluateAll(context.Background(), []metadata.EditRule{r}, answers, nil)
			assert.Equal(t, StateRejected, out.State(false))
		})
	}

	for _, target := range []string{"S00001-V1", "S0000", "S00001-V"} {
		r := rule("E1", "{age} < 0", metadata.SeverityError)
		r.TargetFormID = target
		assert.True(t, e.Evaluate(r, answers, nil).Skipped, target)
	}
}

func TestEvaluateAll_SaveStates(t *testing.T) {
	e := NewEvaluator(nil, Options{NumericCoercion: true})
	ctx := context.Background()
	rules := []metadata.EditRule{
		rule("E1", "{age} < 0", metadata.SeverityError),
		rule("W1", "{age} > 100", metadata.SeverityWarning),
		rule("BROKEN", "{age} <", metadata.SeverityError),
	}

	clean := e.EvaluateAll(ctx, rules, answersFromJSON(t, `{"F-V1": {"age": 40}}`), nil)
	assert.Len(t, clean.Verdicts, 3)
	assert.Empty(t, clean.Errors)
	assert.Empty(t, clean.Warnings)
	assert.Equal(t, StatePersisted, clean.State(false))

	warned := e.EvaluateAll(ctx, rules, answersFromJSON(t, `{"F-V1": {"age": 120}}`), nil)
	require.Len(t, warned.Warnings, 1)
	assert.Equal(t, StatePendingConfirmation, warned.State(false))
	assert.Equal(t, StatePersisted, warned.State(true))
	assert.Equal(t, []string{"W1 violated"}, Messages(warned.Warnings))

	descs := warned.WarningDescriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, metadata.WarningDescriptor{
		RuleID:      "W1",
		Message:     "W1 violated",
		Condition:   "{age} > 100",
		TargetField: "age",
		Severity:    metadata.SeverityWarning,
	}, descs[0])

	rejected := e.EvaluateAll(ctx, rules, answersFromJSON(t, `{"F-V1": {"age": -1}}`), nil)
	require.Len(t, rejected.Errors, 1)
	assert.Equal(t, "E1", rejected.Errors[0].RuleID)
	assert.Equal(t, StateRejected, rejected.State(true))
}

func TestEvaluateAll_ErrorsAndWarningsTogether(t *testing.T) {
	e := NewEvaluator(nil, Options{NumericCoercion: true})
	rules := []metadata.EditRule{
		rule("E1", "{age} < 0", metadata.SeverityError),
		rule("W1", "{age} < 10", metadata.SeverityWarning),
	}
	out := e.EvaluateAll(context.Background(), rules, answersFromJSON(t, `{"F-V1": {"age": -5}}`), nil)
	assert.Len(t, out.Errors, 1)
	assert.Len(t, out.Warnings, 1)
	assert.Equal(t, StateRejected, out.State(false))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("{age} < 0 and has_empty({kids}[*][name])"))
	assert.NoError(t, Check("{kids}[0][name] == 'x'"))
	assert.Error(t, Check(""))
	assert.Error(t, Check("{age} <"))
	assert.Error(t, Check("len({kids}) > 0"))
	assert.Error(t, Check("{kids}[*] == []"))
}
