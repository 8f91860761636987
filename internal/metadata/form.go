package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type FormStatus string

const (
	FormDraft     FormStatus = "draft"
	FormConfirmed FormStatus = "confirmed"
)

// FormVersion is one version of a questionnaire. Answers are keyed by its
// VersionID, e.g. "S00001-V2".
type FormVersion struct {
	ID          string     `json:"id"`
	RosterID    string     `json:"roster_id"`
	FormID      string     `json:"form_id"`
	Name        string     `json:"name"`
	Version     int        `json:"version"`
	Status      FormStatus `json:"status"`
	Fields      []Field    `json:"design_data"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

func FormVersionID(formID string, version int) string {
	return fmt.Sprintf("%s-V%d", formID, version)
}

// SplitVersionID is the inverse of FormVersionID.
func SplitVersionID(id string) (formID string, version int, ok bool) {
	i := strings.LastIndex(id, "-V")
	if i <= 0 {
		return "", 0, false
	}
	version, err := strconv.Atoi(id[i+2:])
	if err != nil || version < 1 {
		return "", 0, false
	}
	return id[:i], version, true
}

func (f *FormVersion) VersionID() string {
	return FormVersionID(f.FormID, f.Version)
}

func (f *FormVersion) IsConfirmed() bool {
	return f.Status == FormConfirmed
}

// NextDraft clones the version into a new draft. Every top-level field keeps
// its logical identity in OriginID, so designers may rename ids in the draft
// and older rules still resolve through the alias table.
func (f *FormVersion) NextDraft() *FormVersion {
	fields := make([]Field, len(f.Fields))
	for i, fld := range f.Fields {
		fld.OriginID = fld.LogicalID()
		fld.Columns = append([]Field(nil), fld.Columns...)
		fld.Options = append([]Option(nil), fld.Options...)
		fields[i] = fld
	}
	return &FormVersion{
		RosterID: f.RosterID,
		FormID:   f.FormID,
		Name:     f.Name,
		Version:  f.Version + 1,
		Status:   FormDraft,
		Fields:   fields,
	}
}

// SortForms orders versions by form id, then version ascending.
func SortForms(forms []*FormVersion) {
	sort.SliceStable(forms, func(i, j int) bool {
		if forms[i].FormID != forms[j].FormID {
			return forms[i].FormID < forms[j].FormID
		}
		return forms[i].Version < forms[j].Version
	})
}

// LatestConfirmed returns the newest confirmed version of each form.
func LatestConfirmed(forms []*FormVersion) map[string]*FormVersion {
	latest := make(map[string]*FormVersion)
	for _, f := range forms {
		if !f.IsConfirmed() {
			continue
		}
		if cur, ok := latest[f.FormID]; !ok || f.Version > cur.Version {
			latest[f.FormID] = f
		}
	}
	return latest
}
