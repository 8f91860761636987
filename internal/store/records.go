package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"survey-backend/internal/metadata"
)

// RecordFilter narrows a roster record listing. Unless All is set, only
// records assigned to AssigneeID or located in one of AreaCodes are returned.
type RecordFilter struct {
	RosterID   string
	Status     string
	AreaCode   string
	All        bool
	AssigneeID string
	AreaCodes  []string
	Limit      int
	Offset     int
}

func (f RecordFilter) args() []any {
	areas := f.AreaCodes
	if areas == nil {
		areas = []string{}
	}
	return []any{f.RosterID, f.Status, f.AreaCode, f.All, nullable(f.AssigneeID), areas}
}

func scanRosterRecord(row pgx.Row) (*metadata.RosterRecord, error) {
	var r metadata.RosterRecord
	var listValues []byte
	var area, assignee *string
	var status string
	err := row.Scan(&r.ID, &r.RosterID, &r.RespondentID, &listValues, &area, &assignee, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, MapError(err)
	}
	r.AreaCode = deref(area)
	r.AssigneeID = deref(assignee)
	r.Status = metadata.RecordStatus(status)
	r.ListValues = map[string]any{}
	if len(listValues) > 0 {
		if err := json.Unmarshal(listValues, &r.ListValues); err != nil {
			return nil, fmt.Errorf("decode list_values: %w", err)
		}
	}
	return &r, nil
}

// ListRosterRecords returns one page of records and the total match count.
func ListRosterRecords(ctx context.Context, q Querier, f RecordFilter) ([]*metadata.RosterRecord, int64, error) {
	var total int64
	if err := q.QueryRow(ctx, SQL("count-roster-records"), f.args()...).Scan(&total); err != nil {
		return nil, 0, MapError(err)
	}

	args := append(f.args(), f.Limit, f.Offset)
	rows, err := q.Query(ctx, SQL("list-roster-records"), args...)
	if err != nil {
		return nil, 0, MapError(err)
	}
	defer rows.Close()

	out := []*metadata.RosterRecord{}
	for rows.Next() {
		r, err := scanRosterRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, MapError(rows.Err())
}

func GetRosterRecord(ctx context.Context, q Querier, id string) (*metadata.RosterRecord, error) {
	return scanRosterRecord(q.QueryRow(ctx, SQL("get-roster-record"), id))
}

func CreateRosterRecord(ctx context.Context, q Querier, r *metadata.RosterRecord) error {
	listValues, err := marshalJSON(nonNilMap(r.ListValues))
	if err != nil {
		return err
	}
	var status string
	err = q.QueryRow(ctx, SQL("create-roster-record"),
		r.RosterID, r.RespondentID, listValues, nullable(r.AreaCode), nullable(r.AssigneeID),
	).Scan(&r.ID, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return MapError(err)
	}
	r.Status = metadata.RecordStatus(status)
	return nil
}

func UpdateRosterRecord(ctx context.Context, q Querier, r *metadata.RosterRecord) error {
	listValues, err := marshalJSON(nonNilMap(r.ListValues))
	if err != nil {
		return err
	}
	err = q.QueryRow(ctx, SQL("update-roster-record"), r.ID, listValues, string(r.Status)).Scan(&r.UpdatedAt)
	return MapError(err)
}

// AssignRosterRecord sets the area and collector of a base record. Rounds
// already started keep the assignment they were created with.
func AssignRosterRecord(ctx context.Context, q Querier, r *metadata.RosterRecord) error {
	err := q.QueryRow(ctx, SQL("assign-roster-record"), r.ID, nullable(r.AreaCode), nullable(r.AssigneeID)).
		Scan(&r.UpdatedAt)
	return MapError(err)
}

func scanCollectionRecord(row pgx.Row) (*metadata.CollectionRecord, error) {
	var c metadata.CollectionRecord
	var area, assignee, savedBy *string
	var answers []byte
	var status string
	err := row.Scan(&c.ID, &c.BaseRecordID, &c.Degree, &area, &assignee, &answers, &status, &savedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, MapError(err)
	}
	c.AreaCode = deref(area)
	c.AssigneeID = deref(assignee)
	c.SavedBy = deref(savedBy)
	c.Status = metadata.RecordStatus(status)
	if err := json.Unmarshal(answers, &c.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return &c, nil
}

// GetCollectionRecord reads a round without locking it.
func GetCollectionRecord(ctx context.Context, q Querier, baseID string, degree int) (*metadata.CollectionRecord, error) {
	return scanCollectionRecord(q.QueryRow(ctx, SQL("get-collection-record"), baseID, degree))
}

// LockCollectionRecord reads a round with a row lock held until q's
// transaction ends.
func LockCollectionRecord(ctx context.Context, q Querier, baseID string, degree int) (*metadata.CollectionRecord, error) {
	return scanCollectionRecord(q.QueryRow(ctx, SQL("lock-collection-record"), baseID, degree))
}

// InsertCollectionRecord creates a round. It reports ErrUniqueViolation when a
// concurrent transaction created the same round first.
func InsertCollectionRecord(ctx context.Context, q Querier, c *metadata.CollectionRecord) error {
	answers, err := json.Marshal(c.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	err = q.QueryRow(ctx, SQL("insert-collection-record"),
		c.BaseRecordID, c.Degree, nullable(c.AreaCode), nullable(c.AssigneeID), answers, string(c.Status),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if IsNotFound(MapError(err)) {
		return fmt.Errorf("%w: round %s/%d already exists", ErrUniqueViolation, c.BaseRecordID, c.Degree)
	}
	return MapError(err)
}

func UpdateCollectionRecord(ctx context.Context, q Querier, c *metadata.CollectionRecord) error {
	answers, err := json.Marshal(c.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	err = q.QueryRow(ctx, SQL("update-collection-record"), c.ID, answers, string(c.Status), nullable(c.SavedBy)).
		Scan(&c.UpdatedAt)
	return MapError(err)
}

// RoundRow is one respondent of a round as used by analysis.
type RoundRow struct {
	RespondentID string
	ListValues   map[string]any
	AreaCode     string
	Status       metadata.RecordStatus
	Answers      metadata.AnswerSet
}

func ListRoundRows(ctx context.Context, q Querier, rosterID string, degree int) ([]RoundRow, error) {
	rows, err := q.Query(ctx, SQL("list-round-rows"), rosterID, degree)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var r RoundRow
		var listValues, answers []byte
		var area *string
		var status string
		if err := rows.Scan(&r.RespondentID, &listValues, &area, &status, &answers); err != nil {
			return nil, MapError(err)
		}
		r.AreaCode = deref(area)
		r.Status = metadata.RecordStatus(status)
		if err := json.Unmarshal(listValues, &r.ListValues); err != nil {
			return nil, fmt.Errorf("decode list_values: %w", err)
		}
		if err := json.Unmarshal(answers, &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		out = append(out, r)
	}
	return out, MapError(rows.Err())
}

// LoadSnapshot reads the design view a save of a record in rosterID is
// evaluated against: the survey, its rules and every questionnaire version of
// the survey, oldest first.
func LoadSnapshot(ctx context.Context, q Querier, rosterID string) (*metadata.Snapshot, error) {
	roster, err := GetRoster(ctx, q, rosterID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	survey, err := GetSurvey(ctx, q, roster.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	design, err := GetDesign(ctx, q, survey.ID)
	if err != nil {
		return nil, fmt.Errorf("load design: %w", err)
	}
	forms, err := ListSurveyForms(ctx, q, survey.ID)
	if err != nil {
		return nil, fmt.Errorf("load questionnaires: %w", err)
	}
	return &metadata.Snapshot{
		Survey: survey,
		Roster: roster,
		Rules:  design.EditRules,
		Forms:  forms,
	}, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
