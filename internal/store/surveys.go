package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"survey-backend/internal/metadata"
)

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return b, nil
}

func scanSurvey(row pgx.Row) (*metadata.Survey, error) {
	var s metadata.Survey
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Year, &s.Degree, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, MapError(err)
	}
	return &s, nil
}

func ListSurveys(ctx context.Context, q Querier) ([]*metadata.Survey, error) {
	rows, err := q.Query(ctx, SQL("list-surveys"))
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	out := []*metadata.Survey{}
	for rows.Next() {
		s, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, MapError(rows.Err())
}

func GetSurvey(ctx context.Context, q Querier, id string) (*metadata.Survey, error) {
	return scanSurvey(q.QueryRow(ctx, SQL("get-survey"), id))
}

func CreateSurvey(ctx context.Context, q Querier, s *metadata.Survey) error {
	err := q.QueryRow(ctx, SQL("create-survey"), s.Code, s.Name, s.Year, s.Degree).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return MapError(err)
}

func UpdateSurvey(ctx context.Context, q Querier, s *metadata.Survey) error {
	err := q.QueryRow(ctx, SQL("update-survey"), s.ID, s.Code, s.Name, s.Year, s.Degree).
		Scan(&s.UpdatedAt)
	return MapError(err)
}

func DeleteSurvey(ctx context.Context, q Querier, id string) error {
	n, err := Exec(ctx, q, SQL("delete-survey"), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDesign returns the survey design, or an empty one if none was saved yet.
func GetDesign(ctx context.Context, q Querier, surveyID string) (*metadata.Design, error) {
	d := &metadata.Design{
		SurveyID:     surveyID,
		ListSchema:   []metadata.Field{},
		SurveySchema: []metadata.Field{},
		EditRules:    []metadata.EditRule{},
	}
	var listRaw, surveyRaw, rulesRaw []byte
	err := q.QueryRow(ctx, SQL("get-design"), surveyID).
		Scan(&d.SurveyID, &listRaw, &surveyRaw, &rulesRaw, &d.UpdatedAt)
	if err != nil {
		if err = MapError(err); IsNotFound(err) {
			return d, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(listRaw, &d.ListSchema); err != nil {
		return nil, fmt.Errorf("decode list_schema: %w", err)
	}
	if err := json.Unmarshal(surveyRaw, &d.SurveySchema); err != nil {
		return nil, fmt.Errorf("decode survey_schema: %w", err)
	}
	if err := json.Unmarshal(rulesRaw, &d.EditRules); err != nil {
		return nil, fmt.Errorf("decode edit_rules: %w", err)
	}
	return d, nil
}

func SaveDesign(ctx context.Context, q Querier, d *metadata.Design) error {
	listRaw, err := marshalJSON(d.ListSchema)
	if err != nil {
		return err
	}
	surveyRaw, err := marshalJSON(d.SurveySchema)
	if err != nil {
		return err
	}
	rulesRaw, err := marshalJSON(d.EditRules)
	if err != nil {
		return err
	}
	err = q.QueryRow(ctx, SQL("upsert-design"), d.SurveyID, listRaw, surveyRaw, rulesRaw).Scan(&d.UpdatedAt)
	return MapError(err)
}

// SaveEditRules replaces only the rules of a design.
func SaveEditRules(ctx context.Context, q Querier, surveyID string, rules []metadata.EditRule) error {
	raw, err := marshalJSON(rules)
	if err != nil {
		return err
	}
	var updatedAt time.Time
	return MapError(q.QueryRow(ctx, SQL("upsert-edit-rules"), surveyID, raw).Scan(&updatedAt))
}
