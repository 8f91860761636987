package metadata

import "sort"

// Area is a node of the geographic/organizational hierarchy that records and
// collectors are assigned to.
type Area struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	ParentCode string `json:"parent_code,omitempty"`
	Level      int    `json:"level"`
}

type AreaTree struct {
	byCode map[string]*Area
}

func NewAreaTree(areas []*Area) *AreaTree {
	t := &AreaTree{byCode: make(map[string]*Area, len(areas))}
	for _, a := range areas {
		t.byCode[a.Code] = a
	}
	return t
}

func (t *AreaTree) Get(code string) *Area {
	return t.byCode[code]
}

// IsWithin reports whether code equals ancestor or lies below it.
func (t *AreaTree) IsWithin(code, ancestor string) bool {
	if code == "" || ancestor == "" {
		return false
	}
	seen := make(map[string]bool)
	for cur := code; cur != ""; {
		if cur == ancestor {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		a := t.byCode[cur]
		if a == nil {
			return false
		}
		cur = a.ParentCode
	}
	return false
}

// WithinAny reports whether code lies within one of the given areas.
func (t *AreaTree) WithinAny(code string, ancestors []string) bool {
	for _, anc := range ancestors {
		if t.IsWithin(code, anc) {
			return true
		}
	}
	return false
}

// WouldCycle reports whether making parent the parent of code creates a loop.
func (t *AreaTree) WouldCycle(code, parent string) bool {
	return parent != "" && t.IsWithin(parent, code)
}

// Depth returns the level an area gets under parent (root areas are level 1).
func (t *AreaTree) Depth(parent string) int {
	if parent == "" {
		return 1
	}
	if p := t.byCode[parent]; p != nil {
		return p.Level + 1
	}
	return 1
}

// Expand returns the given codes plus every area below them, sorted.
func (t *AreaTree) Expand(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	var out []string
	for code := range t.byCode {
		if t.WithinAny(code, codes) {
			out = append(out, code)
		}
	}
	for _, c := range codes {
		if t.byCode[c] == nil {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
