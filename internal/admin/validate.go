package admin

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"survey-backend/internal/editing"
	"survey-backend/internal/engine"
	"survey-backend/internal/metadata"
)

func validateSurvey(s *metadata.Survey) error {
	s.Code = strings.TrimSpace(s.Code)
	s.Name = strings.TrimSpace(s.Name)
	if s.Code == "" {
		return fmt.Errorf("survey code is required")
	}
	if s.Name == "" {
		return fmt.Errorf("survey name is required")
	}
	if s.Degree == 0 {
		s.Degree = 1
	}
	if s.Degree < 0 {
		return fmt.Errorf("degree must be positive, got %d", s.Degree)
	}
	return nil
}

// PrepareRules normalizes rules for storage: ids are assigned where missing,
// severities are spelled canonically and every condition must parse. All
// problems are reported together.
func PrepareRules(rules []metadata.EditRule) ([]metadata.EditRule, error) {
	out := make([]metadata.EditRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	var details []engine.ErrorDetail

	for i, r := range rules {
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		label := fmt.Sprintf("edit_rules[%d]", i)
		if seen[r.ID] {
			details = append(details, engine.ErrorDetail{Field: label, Rule: r.ID, Message: "duplicate rule_id"})
		}
		seen[r.ID] = true

		r.TargetFormID = strings.TrimSpace(r.TargetFormID)

		sev, err := metadata.ParseSeverity(string(r.Severity))
		if err != nil {
			details = append(details, engine.ErrorDetail{Field: label, Rule: r.ID, Message: err.Error()})
		}
		r.Severity = sev

		if err := editing.Check(r.Condition); err != nil {
			details = append(details, engine.ErrorDetail{Field: label, Rule: r.ID, Message: fmt.Sprintf("condition: %v", err)})
		}
		if strings.TrimSpace(r.Message) == "" {
			details = append(details, engine.ErrorDetail{Field: label, Rule: r.ID, Message: "message is required"})
		}
		out = append(out, r)
	}

	if len(details) > 0 {
		return nil, engine.RuleError(details)
	}
	return out, nil
}

// validateRuleTargets checks that every target_form_id names one of the
// survey's questionnaires, by form id or by version key.
func validateRuleTargets(rules []metadata.EditRule, forms []*metadata.FormVersion) error {
	known := make(map[string]bool, 2*len(forms))
	for _, f := range forms {
		known[f.FormID] = true
		known[f.VersionID()] = true
	}
	var details []engine.ErrorDetail
	for i, r := range rules {
		if r.TargetFormID == "" || known[r.TargetFormID] {
			continue
		}
		details = append(details, engine.ErrorDetail{
			Field:   fmt.Sprintf("edit_rules[%d]", i),
			Rule:    r.ID,
			Message: fmt.Sprintf("target_form_id %q is not a questionnaire of this survey", r.TargetFormID),
		})
	}
	if len(details) > 0 {
		return engine.RuleError(details)
	}
	return nil
}

// validateFields checks a form or item-pool design: ids are required and
// unique, and so are the column ids of each table question.
func validateFields(fields []metadata.Field) error {
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("field %d has no id", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate field id %q", f.ID)
		}
		seen[f.ID] = true

		if !f.IsTable() {
			continue
		}
		cols := make(map[string]bool, len(f.Columns))
		for _, col := range f.Columns {
			if strings.TrimSpace(col.ID) == "" {
				return fmt.Errorf("table %q has a column without id", f.ID)
			}
			if cols[col.ID] {
				return fmt.Errorf("table %q has duplicate column %q", f.ID, col.ID)
			}
			cols[col.ID] = true
		}
	}
	return nil
}

// validateArea checks a to-be-saved area against the current tree and sets
// its level.
func validateArea(a *metadata.Area, tree *metadata.AreaTree) error {
	a.Code = strings.TrimSpace(a.Code)
	if a.Code == "" {
		return fmt.Errorf("area code is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("area name is required")
	}
	if a.ParentCode == a.Code {
		return fmt.Errorf("area %s cannot be its own parent", a.Code)
	}
	if a.ParentCode != "" && tree.Get(a.ParentCode) == nil {
		return fmt.Errorf("parent area %s does not exist", a.ParentCode)
	}
	if tree.WouldCycle(a.Code, a.ParentCode) {
		return fmt.Errorf("moving %s under %s would create a cycle", a.Code, a.ParentCode)
	}
	a.Level = tree.Depth(a.ParentCode)
	return nil
}

func validateRoster(r *metadata.Roster) error {
	if r.SurveyID == "" {
		return fmt.Errorf("survey_id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("roster name is required")
	}
	if r.ParentID != "" && r.ParentID == r.ID {
		return fmt.Errorf("roster cannot be its own parent")
	}
	for i, m := range r.MappingConfig {
		if m.ListField == "" || m.FormID == "" || m.FieldID == "" {
			return fmt.Errorf("mapping_config[%d] needs list_field, form_id and field_id", i)
		}
	}
	return nil
}

func validateRecord(r *metadata.RosterRecord) error {
	r.RespondentID = strings.TrimSpace(r.RespondentID)
	if r.RespondentID == "" {
		return fmt.Errorf("respondent_id is required")
	}
	if r.Status == "" {
		r.Status = metadata.StatusReady
	}
	if _, err := metadata.ParseRecordStatus(string(r.Status)); err != nil {
		return err
	}
	return nil
}
