package editing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// A Value is what expressions evaluate to: string, float64, bool, nil or
// []Value.
type Value = any

const quoteChars = `'"`

func typeName(v Value) string {
	switch v.(type) {
	case nil:
		return "None"
	case string:
		return "str"
	case float64:
		return "number"
	case bool:
		return "bool"
	case []Value:
		return "list"
	default:
		return "unknown"
	}
}

func truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case []Value:
		return len(x) > 0
	default:
		return true
	}
}

// toNumber parses v as a number. Surrounding quotes and whitespace are
// stripped, integers are tried before floats, and failure just reports false.
func toNumber(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case string:
		s := strings.TrimSpace(strings.Trim(strings.TrimSpace(x), quoteChars))
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return float64(n), true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// unquoted is the textual form of v with surrounding quote characters removed.
func unquoted(v Value) string {
	return strings.Trim(text(v), quoteChars)
}

func isBlank(v Value) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(strings.Trim(x, quoteChars)) == ""
	case []Value:
		return len(x) == 0
	default:
		return false
	}
}

func text(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatNumber(x)
	case bool:
		return strconv.FormatBool(x)
	case []Value:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = literal(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// scalarText renders an answer value for substitution. Tables and objects are
// not scalars and render as the empty string.
func scalarText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return formatNumber(x)
	case float32:
		return formatNumber(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// quote renders s as a single-quoted literal the lexer reads back verbatim.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func quoteList(items []string) string {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = quote(s)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// literal renders a runtime value back as expression source.
func literal(v Value) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return quote(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		return text(v)
	}
}
