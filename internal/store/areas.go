package store

import (
	"context"

	"survey-backend/internal/metadata"
)

func ListAreas(ctx context.Context, q Querier) ([]*metadata.Area, error) {
	rows, err := q.Query(ctx, SQL("list-areas"))
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	out := []*metadata.Area{}
	for rows.Next() {
		var a metadata.Area
		var parent *string
		if err := rows.Scan(&a.Code, &a.Name, &parent, &a.Level); err != nil {
			return nil, MapError(err)
		}
		a.ParentCode = deref(parent)
		out = append(out, &a)
	}
	return out, MapError(rows.Err())
}

// LoadAreaTree reads the whole hierarchy.
func LoadAreaTree(ctx context.Context, q Querier) (*metadata.AreaTree, error) {
	areas, err := ListAreas(ctx, q)
	if err != nil {
		return nil, err
	}
	return metadata.NewAreaTree(areas), nil
}

func GetArea(ctx context.Context, q Querier, code string) (*metadata.Area, error) {
	var a metadata.Area
	var parent *string
	err := q.QueryRow(ctx, SQL("get-area"), code).Scan(&a.Code, &a.Name, &parent, &a.Level)
	if err != nil {
		return nil, MapError(err)
	}
	a.ParentCode = deref(parent)
	return &a, nil
}

func CreateArea(ctx context.Context, q Querier, a *metadata.Area) error {
	_, err := Exec(ctx, q, SQL("create-area"), a.Code, a.Name, nullable(a.ParentCode), a.Level)
	return err
}

func UpdateArea(ctx context.Context, q Querier, a *metadata.Area) error {
	n, err := Exec(ctx, q, SQL("update-area"), a.Code, a.Name, nullable(a.ParentCode), a.Level)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func DeleteArea(ctx context.Context, q Querier, code string) error {
	n, err := Exec(ctx, q, SQL("delete-area"), code)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
