package editing

import (
	"fmt"
	"strings"
)

// Interpreter walks a parsed condition. It has no bindings besides the
// predicate table, so a condition can only compute over its own literals.
type Interpreter struct {
	// NumericCoercion compares a numeric-looking string with a number
	// numerically. Without it such an ordering is a type error and equality
	// is false.
	NumericCoercion bool
}

// EvalError is a runtime failure such as a type mismatch.
type EvalError struct {
	Pos int
	Msg string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation error at offset %d: %s", e.Pos, e.Msg)
}

func evalErrorf(n Node, format string, args ...any) error {
	return &EvalError{Pos: n.Pos(), Msg: fmt.Sprintf(format, args...)}
}

func (in *Interpreter) Eval(n Node) (Value, error) {
	switch n := n.(type) {
	case *Literal:
		return n.Value, nil

	case *ListExpr:
		out := make([]Value, 0, len(n.Elems))
		for _, e := range n.Elems {
			v, err := in.Eval(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case *UnaryExpr:
		x, err := in.Eval(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "not":
			return !truthy(x), nil
		case "-", "+":
			f, ok := x.(float64)
			if !ok {
				return nil, evalErrorf(n, "bad operand type for unary %s: %s", n.Op, typeName(x))
			}
			if n.Op == "-" {
				return -f, nil
			}
			return f, nil
		}
		return nil, evalErrorf(n, "unknown unary operator %s", n.Op)

	case *LogicalExpr:
		left, err := in.Eval(n.Left)
		if err != nil {
			return nil, err
		}
		if n.Op == "and" && !truthy(left) {
			return false, nil
		}
		if n.Op == "or" && truthy(left) {
			return true, nil
		}
		right, err := in.Eval(n.Right)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil

	case *CompareExpr:
		left, err := in.Eval(n.Operands[0])
		if err != nil {
			return nil, err
		}
		for i, op := range n.Ops {
			right, err := in.Eval(n.Operands[i+1])
			if err != nil {
				return nil, err
			}
			ok, err := in.compare(op, left, right)
			if err != nil {
				return nil, evalErrorf(n.Operands[i+1], "%v", err)
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil

	case *CallExpr:
		args := make([]Value, 0, len(n.Args))
		for _, a := range n.Args {
			v, err := in.Eval(a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		v, err := callPredicate(n.Name, args)
		if err != nil {
			return nil, evalErrorf(n, "%v", err)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("unknown node %T", n)
	}
}

func (in *Interpreter) compare(op string, a, b Value) (bool, error) {
	switch op {
	case "==":
		return in.equal(a, b), nil
	case "!=":
		return !in.equal(a, b), nil
	}

	x, y, ok := in.orderable(a, b)
	if !ok {
		return false, fmt.Errorf("'%s' not supported between %s and %s", op, typeName(a), typeName(b))
	}
	var c int
	switch xv := x.(type) {
	case float64:
		yv := y.(float64)
		switch {
		case xv < yv:
			c = -1
		case xv > yv:
			c = 1
		}
	case string:
		c = strings.Compare(xv, y.(string))
	}

	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %s", op)
}

// orderable returns both operands as float64 or both as string.
func (in *Interpreter) orderable(a, b Value) (Value, Value, bool) {
	switch x := a.(type) {
	case float64:
		switch y := b.(type) {
		case float64:
			return x, y, true
		case string:
			if n, ok := toNumber(y); ok && in.NumericCoercion {
				return x, n, true
			}
		}
	case string:
		switch y := b.(type) {
		case string:
			return x, y, true
		case float64:
			if n, ok := toNumber(x); ok && in.NumericCoercion {
				return n, y, true
			}
		}
	}
	return nil, nil, false
}

func (in *Interpreter) equal(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case string:
			n, ok := toNumber(y)
			return ok && in.NumericCoercion && n == x
		}
	case string:
		switch y := b.(type) {
		case string:
			return x == y
		case float64:
			n, ok := toNumber(x)
			return ok && in.NumericCoercion && n == y
		}
	case []Value:
		y, ok := b.([]Value)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !in.equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return false
}
