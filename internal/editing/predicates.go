package editing

import (
	"fmt"
	"sort"
)

type predicate struct {
	arity int
	fn    func(values []Value, args []Value) bool
}

// predicates is the whole callable surface of a condition.
var predicates = map[string]predicate{
	"all_equal":         {2, allEqual},
	"any_equal":         {2, anyEqual},
	"all_not_empty":     {1, allNotEmpty},
	"has_empty":         {1, hasEmpty},
	"all_greater":       {2, allCompare(func(a, b float64) bool { return a > b })},
	"all_greater_equal": {2, allCompare(func(a, b float64) bool { return a >= b })},
	"all_less":          {2, allCompare(func(a, b float64) bool { return a < b })},
	"all_less_equal":    {2, allCompare(func(a, b float64) bool { return a <= b })},
}

// Predicates lists the function names a condition may call.
func Predicates() []string {
	names := make([]string, 0, len(predicates))
	for name := range predicates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isPredicate(name string) bool {
	_, ok := predicates[name]
	return ok
}

func callPredicate(name string, args []Value) (Value, error) {
	p, ok := predicates[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %s", name)
	}
	if len(args) != p.arity {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", name, p.arity, len(args))
	}
	values, ok := args[0].([]Value)
	if !ok {
		return nil, fmt.Errorf("%s expects a list as first argument, got %s", name, typeName(args[0]))
	}
	return p.fn(values, args[1:]), nil
}

func allEqual(values []Value, args []Value) bool {
	if len(values) == 0 {
		return false
	}
	target := unquoted(args[0])
	for _, v := range values {
		if unquoted(v) != target {
			return false
		}
	}
	return true
}

func anyEqual(values []Value, args []Value) bool {
	target := unquoted(args[0])
	for _, v := range values {
		if unquoted(v) == target {
			return true
		}
	}
	return false
}

func allNotEmpty(values []Value, _ []Value) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if isBlank(v) {
			return false
		}
	}
	return true
}

func hasEmpty(values []Value, _ []Value) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if isBlank(v) {
			return true
		}
	}
	return false
}

// allCompare holds vacuously for an empty list. Any element or target that is
// not a number makes the whole predicate false.
func allCompare(cmp func(a, b float64) bool) func([]Value, []Value) bool {
	return func(values []Value, args []Value) bool {
		target, ok := toNumber(args[0])
		if !ok {
			return false
		}
		for _, v := range values {
			n, ok := toNumber(v)
			if !ok || !cmp(n, target) {
				return false
			}
		}
		return true
	}
}
