package metadata

// Field is one question of a form design, or one column of a table question.
type Field struct {
	ID       string   `json:"id"`
	OriginID string   `json:"origin_id,omitempty"`
	Label    string   `json:"label,omitempty"`
	Type     string   `json:"type"` // text, number, date, select, multi, table
	Required bool     `json:"required,omitempty"`
	Options  []Option `json:"options,omitempty"`
	Columns  []Field  `json:"columns,omitempty"` // table questions only
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// IsTable returns true for repeating-row questions.
func (f Field) IsTable() bool {
	return f.Type == "table"
}

// LogicalID is the identifier that survives cloning across form versions.
func (f Field) LogicalID() string {
	if f.OriginID != "" {
		return f.OriginID
	}
	return f.ID
}

// GetColumn returns the table column with the given id, or nil.
func (f Field) GetColumn(id string) *Field {
	for i := range f.Columns {
		if f.Columns[i].ID == id {
			return &f.Columns[i]
		}
	}
	return nil
}

// FindField looks a field up by physical id.
func FindField(fields []Field, id string) *Field {
	for i := range fields {
		if fields[i].ID == id {
			return &fields[i]
		}
	}
	return nil
}
