package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WarningsKey is the reserved answers key holding unresolved warnings.
const WarningsKey = "_warnings"

// WarningDescriptor is a force-saved warning kept with the answers so that it
// can be shown and navigated to later.
type WarningDescriptor struct {
	RuleID       string   `json:"rule_id"`
	Message      string   `json:"message"`
	Condition    string   `json:"condition"`
	TargetField  string   `json:"target_field"`
	TargetFormID string   `json:"target_form_id,omitempty"`
	Severity     Severity `json:"severity"`
}

// FormAnswers maps field ids of one form version to values. A value is a
// scalar, or a slice of row objects for table questions.
type FormAnswers struct {
	VersionID string
	Fields    map[string]any
}

// AnswerSet holds answers per form version in submission order. Lookups that
// span forms take the first form holding the field, so the order is kept
// through JSON round-trips.
type AnswerSet struct {
	forms    []FormAnswers
	Warnings []WarningDescriptor
}

func NewAnswerSet(forms ...FormAnswers) *AnswerSet {
	a := &AnswerSet{}
	for _, f := range forms {
		a.SetForm(f.VersionID, f.Fields)
	}
	return a
}

func (a *AnswerSet) Forms() []FormAnswers {
	if a == nil {
		return nil
	}
	return a.forms
}

func (a *AnswerSet) Len() int {
	if a == nil {
		return 0
	}
	return len(a.forms)
}

func (a *AnswerSet) Form(versionID string) (map[string]any, bool) {
	if a == nil {
		return nil, false
	}
	for _, f := range a.forms {
		if f.VersionID == versionID {
			return f.Fields, true
		}
	}
	return nil, false
}

func (a *AnswerSet) HasForm(versionID string) bool {
	_, ok := a.Form(versionID)
	return ok
}

// AppliesTo reports whether target names an answered form, either by version
// key ("S00001-V2") or by form id ("S00001") for any of its versions.
func (a *AnswerSet) AppliesTo(target string) bool {
	if a.HasForm(target) {
		return true
	}
	for _, f := range a.Forms() {
		if formID, _, ok := SplitVersionID(f.VersionID); ok && formID == target {
			return true
		}
	}
	return false
}

// SetForm replaces the answers of a form version, appending it if new.
func (a *AnswerSet) SetForm(versionID string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	for i := range a.forms {
		if a.forms[i].VersionID == versionID {
			a.forms[i].Fields = fields
			return
		}
	}
	a.forms = append(a.forms, FormAnswers{VersionID: versionID, Fields: fields})
}

// Lookup returns the value of fieldID from the first form that holds it.
func (a *AnswerSet) Lookup(fieldID string) (any, bool) {
	if a == nil {
		return nil, false
	}
	for _, f := range a.forms {
		if v, ok := f.Fields[fieldID]; ok {
			return v, true
		}
	}
	return nil, false
}

func (a *AnswerSet) Has(fieldID string) bool {
	_, ok := a.Lookup(fieldID)
	return ok
}

// Merge overlays other onto a field by field. Warnings are left alone.
func (a *AnswerSet) Merge(other *AnswerSet) {
	for _, f := range other.Forms() {
		existing, ok := a.Form(f.VersionID)
		if !ok {
			copied := make(map[string]any, len(f.Fields))
			for k, v := range f.Fields {
				copied[k] = v
			}
			a.SetForm(f.VersionID, copied)
			continue
		}
		for k, v := range f.Fields {
			existing[k] = v
		}
	}
}

func (a AnswerSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range a.forms {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.VersionID)
		buf.Write(key)
		buf.WriteByte(':')
		fields := f.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		val, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("marshal form %s: %w", f.VersionID, err)
		}
		buf.Write(val)
	}
	if len(a.Warnings) > 0 {
		if len(a.forms) > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`"` + WarningsKey + `":`)
		val, err := json.Marshal(a.Warnings)
		if err != nil {
			return nil, fmt.Errorf("marshal warnings: %w", err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *AnswerSet) UnmarshalJSON(data []byte) error {
	*a = AnswerSet{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("answers must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		if key == WarningsKey {
			if err := dec.Decode(&a.Warnings); err != nil {
				return fmt.Errorf("answers.%s: %w", WarningsKey, err)
			}
			continue
		}

		var fields map[string]any
		if err := dec.Decode(&fields); err != nil {
			return fmt.Errorf("answers.%s must be an object: %w", key, err)
		}
		a.SetForm(key, fields)
	}

	_, err = dec.Token()
	return err
}
