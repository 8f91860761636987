package metadata

import (
	"fmt"
	"time"
)

type RecordStatus string

const (
	StatusReady RecordStatus = "READY"
	StatusIng   RecordStatus = "ING"
	StatusDone  RecordStatus = "DONE"
	StatusError RecordStatus = "ERROR"
)

func ParseRecordStatus(s string) (RecordStatus, error) {
	switch st := RecordStatus(s); st {
	case StatusReady, StatusIng, StatusDone, StatusError:
		return st, nil
	default:
		return "", fmt.Errorf("unknown record status %q", s)
	}
}

// Roster is the list of respondents a survey collects from.
type Roster struct {
	ID            string         `json:"id"`
	SurveyID      string         `json:"survey_id"`
	Code          string         `json:"roster_code"`
	Name          string         `json:"name"`
	ParentID      string         `json:"parent_roster_id,omitempty"`
	MappingConfig []FieldMapping `json:"mapping_config"`
	CreatedAt     time.Time      `json:"created_at"`
}

// FieldMapping copies a roster list value into a questionnaire field when a
// collection round starts.
type FieldMapping struct {
	ListField string `json:"list_field"`
	FormID    string `json:"form_id"`
	FieldID   string `json:"field_id"`
}

// Prefill builds the initial answers of a new round from the base record's
// list values, targeting the latest confirmed version of each mapped form.
func (r *Roster) Prefill(listValues map[string]any, current map[string]*FormVersion) *AnswerSet {
	answers := &AnswerSet{}
	for _, m := range r.MappingConfig {
		form, ok := current[m.FormID]
		if !ok {
			continue
		}
		v, ok := listValues[m.ListField]
		if !ok {
			continue
		}
		fields, _ := answers.Form(form.VersionID())
		if fields == nil {
			fields = make(map[string]any)
		}
		fields[m.FieldID] = v
		answers.SetForm(form.VersionID(), fields)
	}
	return answers
}

// RosterRecord is a base roster record: one respondent, independent of degree.
type RosterRecord struct {
	ID           string         `json:"id"`
	RosterID     string         `json:"roster_id"`
	RespondentID string         `json:"respondent_id"`
	ListValues   map[string]any `json:"list_values"`
	AreaCode     string         `json:"area_code,omitempty"`
	AssigneeID   string         `json:"assignee_id,omitempty"`
	Status       RecordStatus   `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CollectionRecord is the answer record of one base record in one degree.
type CollectionRecord struct {
	ID           string       `json:"id"`
	BaseRecordID string       `json:"base_record_id"`
	Degree       int          `json:"degree"`
	AreaCode     string       `json:"area_code,omitempty"`
	AssigneeID   string       `json:"assignee_id,omitempty"`
	Answers      AnswerSet    `json:"answers"`
	Status       RecordStatus `json:"status"`
	SavedBy      string       `json:"saved_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewCollectionRecord starts a round for base, inheriting its assignment.
func NewCollectionRecord(base *RosterRecord, degree int) *CollectionRecord {
	return &CollectionRecord{
		BaseRecordID: base.ID,
		Degree:       degree,
		AreaCode:     base.AreaCode,
		AssigneeID:   base.AssigneeID,
		Status:       StatusReady,
	}
}
