package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"survey-backend/internal/metadata"
)

func scanForm(row pgx.Row) (*metadata.FormVersion, error) {
	var f metadata.FormVersion
	var status string
	var design []byte
	err := row.Scan(&f.ID, &f.RosterID, &f.FormID, &f.Name, &f.Version, &status, &design, &f.CreatedAt, &f.ConfirmedAt)
	if err != nil {
		return nil, MapError(err)
	}
	f.Status = metadata.FormStatus(status)
	f.Fields = []metadata.Field{}
	if len(design) > 0 {
		if err := json.Unmarshal(design, &f.Fields); err != nil {
			return nil, fmt.Errorf("decode design_data of %s: %w", f.VersionID(), err)
		}
	}
	return &f, nil
}

func collectForms(rows pgx.Rows) ([]*metadata.FormVersion, error) {
	defer rows.Close()
	out := []*metadata.FormVersion{}
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, MapError(rows.Err())
}

// ListForms returns every version of every questionnaire of a roster, ordered
// by form id and version.
func ListForms(ctx context.Context, q Querier, rosterID string) ([]*metadata.FormVersion, error) {
	rows, err := q.Query(ctx, SQL("list-questionnaires"), rosterID)
	if err != nil {
		return nil, MapError(err)
	}
	return collectForms(rows)
}

// ListSurveyForms returns the questionnaire versions of every roster of a
// survey.
func ListSurveyForms(ctx context.Context, q Querier, surveyID string) ([]*metadata.FormVersion, error) {
	rows, err := q.Query(ctx, SQL("list-survey-questionnaires"), surveyID)
	if err != nil {
		return nil, MapError(err)
	}
	return collectForms(rows)
}

func GetForm(ctx context.Context, q Querier, formID string, version int) (*metadata.FormVersion, error) {
	return scanForm(q.QueryRow(ctx, SQL("get-questionnaire"), formID, version))
}

func GetLatestForm(ctx context.Context, q Querier, formID string) (*metadata.FormVersion, error) {
	return scanForm(q.QueryRow(ctx, SQL("get-latest-questionnaire"), formID))
}

// CreateForm inserts f. A blank FormID allocates a new questionnaire code.
func CreateForm(ctx context.Context, q Querier, f *metadata.FormVersion) error {
	if f.FormID == "" {
		code, err := NextCode(ctx, q, SeqQuestionnaire, PrefixQuestionnaire)
		if err != nil {
			return err
		}
		f.FormID = code
	}
	if f.Fields == nil {
		f.Fields = []metadata.Field{}
	}
	design, err := marshalJSON(f.Fields)
	if err != nil {
		return err
	}
	err = q.QueryRow(ctx, SQL("create-questionnaire"), f.RosterID, f.FormID, f.Name, f.Version, string(f.Status), design).
		Scan(&f.ID, &f.CreatedAt)
	return MapError(err)
}

// UpdateDraft replaces the name and design of a draft version. Confirmed
// versions are immutable and report ErrNotFound.
func UpdateDraft(ctx context.Context, q Querier, f *metadata.FormVersion) error {
	design, err := marshalJSON(f.Fields)
	if err != nil {
		return err
	}
	n, err := Exec(ctx, q, SQL("update-questionnaire-draft"), f.FormID, f.Version, f.Name, design)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmForm marks a draft confirmed. A missing or already confirmed version
// reports ErrNotFound.
func ConfirmForm(ctx context.Context, q Querier, f *metadata.FormVersion) error {
	err := q.QueryRow(ctx, SQL("confirm-questionnaire"), f.FormID, f.Version).Scan(&f.ConfirmedAt)
	if err != nil {
		return MapError(err)
	}
	f.Status = metadata.FormConfirmed
	return nil
}
