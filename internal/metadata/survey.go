package metadata

import "time"

// Survey is the master record of one statistical survey.
type Survey struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Year      string    `json:"year"`
	Degree    int       `json:"degree"` // current collection round
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Design holds the item pools and the editing rules of a survey.
type Design struct {
	SurveyID     string     `json:"survey_id"`
	ListSchema   []Field    `json:"list_schema"`
	SurveySchema []Field    `json:"survey_schema"`
	EditRules    []EditRule `json:"edit_rules"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Snapshot is the read-only design view used for one evaluation: the survey's
// rules and every confirmed form version of the record's roster.
type Snapshot struct {
	Survey *Survey
	Roster *Roster
	Rules  []EditRule
	Forms  []*FormVersion
}

// CurrentForms returns the latest confirmed version of each form.
func (s *Snapshot) CurrentForms() map[string]*FormVersion {
	return LatestConfirmed(s.Forms)
}
