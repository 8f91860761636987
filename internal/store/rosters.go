package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"survey-backend/internal/metadata"
)

func scanRoster(row pgx.Row) (*metadata.Roster, error) {
	var r metadata.Roster
	var parent *string
	var mapping []byte
	if err := row.Scan(&r.ID, &r.SurveyID, &r.Code, &r.Name, &parent, &mapping, &r.CreatedAt); err != nil {
		return nil, MapError(err)
	}
	r.ParentID = deref(parent)
	r.MappingConfig = []metadata.FieldMapping{}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &r.MappingConfig); err != nil {
			return nil, fmt.Errorf("decode mapping_config: %w", err)
		}
	}
	return &r, nil
}

// ListRosters lists the rosters of one survey, or all when surveyID is "".
func ListRosters(ctx context.Context, q Querier, surveyID string) ([]*metadata.Roster, error) {
	rows, err := q.Query(ctx, SQL("list-rosters"), nullable(surveyID))
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	out := []*metadata.Roster{}
	for rows.Next() {
		r, err := scanRoster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, MapError(rows.Err())
}

func GetRoster(ctx context.Context, q Querier, id string) (*metadata.Roster, error) {
	return scanRoster(q.QueryRow(ctx, SQL("get-roster"), id))
}

// CreateRoster allocates the next roster code inside q's transaction.
func CreateRoster(ctx context.Context, q Querier, r *metadata.Roster) error {
	code, err := NextCode(ctx, q, SeqRoster, PrefixRoster)
	if err != nil {
		return err
	}
	mapping, err := marshalJSON(nonNilMappings(r.MappingConfig))
	if err != nil {
		return err
	}
	r.Code = code
	err = q.QueryRow(ctx, SQL("create-roster"), r.SurveyID, r.Code, r.Name, nullable(r.ParentID), mapping).
		Scan(&r.ID, &r.CreatedAt)
	return MapError(err)
}

func UpdateRoster(ctx context.Context, q Querier, r *metadata.Roster) error {
	mapping, err := marshalJSON(nonNilMappings(r.MappingConfig))
	if err != nil {
		return err
	}
	n, err := Exec(ctx, q, SQL("update-roster"), r.ID, r.Name, nullable(r.ParentID), mapping)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func DeleteRoster(ctx context.Context, q Querier, id string) error {
	n, err := Exec(ctx, q, SQL("delete-roster"), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNilMappings(m []metadata.FieldMapping) []metadata.FieldMapping {
	if m == nil {
		return []metadata.FieldMapping{}
	}
	return m
}
