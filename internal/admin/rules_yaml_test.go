package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-backend/internal/metadata"
)

func TestEncodeDecodeRules(t *testing.T) {
	rules := []metadata.EditRule{
		{ID: "E1", TargetFormID: "S00001", TargetField: "age", Condition: "{age} < 0", Message: "age must not be negative", Severity: metadata.SeverityError},
		{ID: "W1", TargetField: "age", Condition: "{age} > 100", Message: "age is over 100", Severity: metadata.SeverityWarning},
	}
	out, err := EncodeRules("HH2026", rules)
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "survey: HH2026")
	assert.Contains(t, text, "rule_id: E1")
	assert.Contains(t, text, "{age} < 0")

	back, err := DecodeRules(out)
	require.NoError(t, err)
	assert.Equal(t, rules, back)
}

func TestDecodeRules_BareList(t *testing.T) {
	rules, err := DecodeRules([]byte(`
- rule_id: W1
  target_field: income
  condition: "{income} > 100000000"
  message: income looks too high
  severity: warning
`))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "W1", rules[0].ID)
	assert.Equal(t, metadata.Severity("warning"), rules[0].Severity, "severity is normalized later by PrepareRules")
}

func TestDecodeRules_EmptyAndInvalid(t *testing.T) {
	rules, err := DecodeRules(nil)
	require.NoError(t, err)
	assert.Empty(t, rules)

	rules, err = DecodeRules([]byte("survey: HH\n"))
	require.NoError(t, err)
	assert.NotNil(t, rules)
	assert.Empty(t, rules)

	_, err = DecodeRules([]byte("rules: [unclosed"))
	assert.Error(t, err)

	_, err = DecodeRules([]byte("rules: just-a-string"))
	assert.Error(t, err)
}
