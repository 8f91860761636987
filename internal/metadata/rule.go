package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity decides whether a matched rule blocks a save or only warns.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// ParseSeverity accepts any letter case. An empty string means ERROR.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ERROR":
		return SeverityError, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning
}

// EditRule is a declarative editing rule. The condition describes the
// violation: a rule that matches reports its message.
type EditRule struct {
	ID           string   `json:"rule_id" yaml:"rule_id"`
	TargetFormID string   `json:"target_form_id,omitempty" yaml:"target_form_id,omitempty"`
	TargetField  string   `json:"target_field" yaml:"target_field"`
	Condition    string   `json:"condition" yaml:"condition"`
	Message      string   `json:"message" yaml:"message"`
	Severity     Severity `json:"severity" yaml:"severity"`
}

// UnmarshalJSON normalizes the severity spelling. Unknown severities are kept
// as-is so that evaluation can report them instead of losing the rule.
func (r *EditRule) UnmarshalJSON(data []byte) error {
	type plain EditRule
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if sev, err := ParseSeverity(string(p.Severity)); err == nil {
		p.Severity = sev
	}
	*r = EditRule(p)
	return nil
}

// Descriptor is the persisted form of a matched warning.
func (r EditRule) Descriptor() WarningDescriptor {
	return WarningDescriptor{
		RuleID:       r.ID,
		Message:      r.Message,
		Condition:    r.Condition,
		TargetField:  r.TargetField,
		TargetFormID: r.TargetFormID,
		Severity:     r.Severity,
	}
}
