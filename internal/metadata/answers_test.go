package metadata

import (
	"encoding/json"
	"testing"
)

func TestAnswerSet_PreservesFormOrder(t *testing.T) {
	raw := `{"S00002-V1": {"age": 30}, "S00001-V1": {"age": 40, "name": "kim"}}`
	var a AnswerSet
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	forms := a.Forms()
	if len(forms) != 2 || forms[0].VersionID != "S00002-V1" || forms[1].VersionID != "S00001-V1" {
		t.Fatalf("unexpected form order: %+v", forms)
	}

	v, ok := a.Lookup("age")
	if !ok {
		t.Fatal("expected age to be found")
	}
	if v != json.Number("30") {
		t.Fatalf("expected first form to win with 30, got %v", v)
	}

	out, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again AnswerSet
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if again.Forms()[0].VersionID != "S00002-V1" {
		t.Fatalf("order lost on round trip: %s", out)
	}
}

func TestAnswerSet_WarningsRoundTrip(t *testing.T) {
	a := NewAnswerSet(FormAnswers{VersionID: "F-V1", Fields: map[string]any{"q1": "x"}})
	a.Warnings = []WarningDescriptor{{
		RuleID:      "w1",
		Message:     "check q6",
		Condition:   "has_empty({q6}[*][q6_1])",
		TargetField: "q6",
		Severity:    SeverityWarning,
	}}

	out, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(out, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if _, ok := raw[WarningsKey]; !ok {
		t.Fatalf("expected %s key in %s", WarningsKey, out)
	}

	var back AnswerSet
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(back.Warnings))
	}
	w := back.Warnings[0]
	if w.RuleID != "w1" || w.Condition != "has_empty({q6}[*][q6_1])" || w.TargetField != "q6" {
		t.Fatalf("descriptor changed on round trip: %+v", w)
	}
	if back.HasForm(WarningsKey) {
		t.Fatal("warnings key must not be treated as a form")
	}
}

func TestAnswerSet_RejectsNonObjectForm(t *testing.T) {
	var a AnswerSet
	if err := json.Unmarshal([]byte(`{"F-V1": "oops"}`), &a); err == nil {
		t.Fatal("expected error for non-object form answers")
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &a); err == nil {
		t.Fatal("expected error for array payload")
	}
	if err := json.Unmarshal([]byte(`null`), &a); err != nil || a.Len() != 0 {
		t.Fatalf("expected null to decode as empty, got %v", err)
	}
}

func TestAnswerSet_Merge(t *testing.T) {
	base := NewAnswerSet(FormAnswers{VersionID: "F-V1", Fields: map[string]any{"a": "1", "b": "2"}})
	base.Warnings = []WarningDescriptor{{RuleID: "old"}}

	base.Merge(NewAnswerSet(
		FormAnswers{VersionID: "F-V1", Fields: map[string]any{"b": "20", "c": "30"}},
		FormAnswers{VersionID: "G-V1", Fields: map[string]any{"z": "9"}},
	))

	f, _ := base.Form("F-V1")
	if f["a"] != "1" || f["b"] != "20" || f["c"] != "30" {
		t.Fatalf("unexpected merged form: %v", f)
	}
	if !base.HasForm("G-V1") {
		t.Fatal("expected new form to be appended")
	}
	if len(base.Warnings) != 1 || base.Warnings[0].RuleID != "old" {
		t.Fatal("merge must not touch warnings")
	}
}
