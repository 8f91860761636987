package editing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	columnRef = regexp.MustCompile(`\{([^{}\[\]]+)\}\[\s*\*\s*\]\[([^\[\]]+)\]`)
	cellRef   = regexp.MustCompile(`\{([^{}\[\]]+)\}\[\s*(\d+)\s*\]\[([^\[\]]+)\]`)
	// fieldRef also swallows any bracket suffix the first two passes did not
	// accept, so a malformed reference becomes one neutral literal.
	fieldRef = regexp.MustCompile(`\{([^{}\[\]]*)\}((?:\[[^\[\]]*\]?)*)`)
	starHead = regexp.MustCompile(`^\[\s*\*\s*\]`)
)

// segment is a piece of the condition. Substituted pieces are never rescanned,
// so answer text that looks like a reference stays a plain string.
type segment struct {
	text     string
	resolved bool
}

// ReferenceError lists references Transform could not make sense of. The
// expression returned alongside it is still complete.
type ReferenceError struct {
	Refs []string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("malformed reference %s", strings.Join(e.Refs, ", "))
}

// Transform substitutes every reference in condition with a literal:
// column references first, then cell references, then plain fields.
// Malformed references become a neutral literal ([] or '') and are reported
// through a *ReferenceError. Text inside string literals is left alone.
func Transform(condition string, r *Resolver) (string, error) {
	segs := splitLiterals(condition)
	var malformed []string

	segs = substitute(segs, columnRef, func(m []string) string {
		return quoteList(r.Column(strings.TrimSpace(m[1]), strings.TrimSpace(m[2])))
	})
	segs = substitute(segs, cellRef, func(m []string) string {
		row, err := strconv.Atoi(m[2])
		if err != nil {
			malformed = append(malformed, m[0])
			return quote("")
		}
		return quote(r.Cell(strings.TrimSpace(m[1]), row, strings.TrimSpace(m[3])))
	})
	segs = substitute(segs, fieldRef, func(m []string) string {
		if m[2] != "" {
			malformed = append(malformed, m[0])
			if starHead.MatchString(m[2]) {
				return "[]"
			}
			return quote("")
		}
		return quote(r.Field(strings.TrimSpace(m[1])))
	})

	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.text)
	}
	if len(malformed) > 0 {
		return b.String(), &ReferenceError{Refs: malformed}
	}
	return b.String(), nil
}

// splitLiterals marks every quoted string of condition as resolved. An
// unterminated quote leaves the rest as plain text for the parser to reject.
func splitLiterals(condition string) []segment {
	var segs []segment
	start := 0
	for i := 0; i < len(condition); i++ {
		q := condition[i]
		if q != '\'' && q != '"' {
			continue
		}
		end := -1
		for j := i + 1; j < len(condition); j++ {
			if condition[j] == '\\' {
				j++
				continue
			}
			if condition[j] == q {
				end = j
				break
			}
		}
		if end < 0 {
			break
		}
		if i > start {
			segs = append(segs, segment{text: condition[start:i]})
		}
		segs = append(segs, segment{text: condition[i : end+1], resolved: true})
		start = end + 1
		i = end
	}
	if start < len(condition) {
		segs = append(segs, segment{text: condition[start:]})
	}
	return segs
}

func substitute(segs []segment, re *regexp.Regexp, repl func(m []string) string) []segment {
	out := make([]segment, 0, len(segs))
	for _, s := range segs {
		if s.resolved {
			out = append(out, s)
			continue
		}
		matches := re.FindAllStringSubmatchIndex(s.text, -1)
		if matches == nil {
			out = append(out, s)
			continue
		}
		last := 0
		for _, loc := range matches {
			if loc[0] > last {
				out = append(out, segment{text: s.text[last:loc[0]]})
			}
			groups := make([]string, len(loc)/2)
			for g := range groups {
				if loc[2*g] >= 0 {
					groups[g] = s.text[loc[2*g]:loc[2*g+1]]
				}
			}
			out = append(out, segment{text: repl(groups), resolved: true})
			last = loc[1]
		}
		if last < len(s.text) {
			out = append(out, segment{text: s.text[last:]})
		}
	}
	return out
}
