package editing

import "survey-backend/internal/metadata"

// AliasTable maps origin ids to the field ids current form versions use.
type AliasTable map[string]string

// NewAliasTable scans every top-level field of the given versions. Later
// versions override earlier ones, so pass forms oldest first.
func NewAliasTable(forms []*metadata.FormVersion) AliasTable {
	t := make(AliasTable)
	for _, f := range forms {
		for _, fld := range f.Fields {
			if fld.OriginID != "" && fld.OriginID != fld.ID {
				t[fld.OriginID] = fld.ID
			}
		}
	}
	return t
}

// Resolution records how a reference token became a field id.
type Resolution struct {
	Token    string
	ID       string
	ViaAlias bool
}

// Resolver looks references up in two layers: the alias table, then the
// answer table. A token that already names an answered field is used as is.
type Resolver struct {
	answers *metadata.AnswerSet
	aliases AliasTable
}

func NewResolver(answers *metadata.AnswerSet, aliases AliasTable) *Resolver {
	if answers == nil {
		answers = &metadata.AnswerSet{}
	}
	return &Resolver{answers: answers, aliases: aliases}
}

func (r *Resolver) ResolveID(token string) Resolution {
	if r.answers.Has(token) {
		return Resolution{Token: token, ID: token}
	}
	if id, ok := r.aliases[token]; ok {
		return Resolution{Token: token, ID: id, ViaAlias: true}
	}
	return Resolution{Token: token, ID: token}
}

func (r *Resolver) rows(tableRef string) []any {
	v, ok := r.answers.Lookup(r.ResolveID(tableRef).ID)
	if !ok {
		return nil
	}
	rows, _ := v.([]any)
	return rows
}

// Column returns the column value of every row. Rows lacking the column give
// "", and a missing table gives an empty list.
func (r *Resolver) Column(tableRef, column string) []string {
	rows := r.rows(tableRef)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		obj, _ := row.(map[string]any)
		out = append(out, scalarText(obj[column]))
	}
	return out
}

// Cell returns one table cell, or "" when any part of the path is missing.
func (r *Resolver) Cell(tableRef string, row int, column string) string {
	rows := r.rows(tableRef)
	if row < 0 || row >= len(rows) {
		return ""
	}
	obj, _ := rows[row].(map[string]any)
	return scalarText(obj[column])
}

// Field returns a plain field value, or "" when absent or not a scalar.
func (r *Resolver) Field(ref string) string {
	v, _ := r.answers.Lookup(r.ResolveID(ref).ID)
	return scalarText(v)
}
