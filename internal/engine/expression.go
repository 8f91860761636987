package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultFilterCacheSize bounds the compiled filter programs kept in memory.
const DefaultFilterCacheSize = 256

// FilterEvaluator evaluates boolean expr-lang filters against row attributes.
// Compiled programs are kept in an LRU cache keyed by expression string.
type FilterEvaluator struct {
	cache *lru.Cache[string, *vm.Program]
}

func NewFilterEvaluator() *FilterEvaluator {
	return NewFilterEvaluatorSize(DefaultFilterCacheSize)
}

func NewFilterEvaluatorSize(size int) *FilterEvaluator {
	if size < 1 {
		size = DefaultFilterCacheSize
	}
	cache, err := lru.New[string, *vm.Program](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &FilterEvaluator{cache: cache}
}

// Compile checks an expression and caches its program.
func (e *FilterEvaluator) Compile(expression string) (*vm.Program, error) {
	if prog, ok := e.cache.Get(expression); ok {
		return prog, nil
	}

	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	e.cache.Add(expression, prog)
	return prog, nil
}

func (e *FilterEvaluator) EvaluateBool(expression string, env map[string]any) (bool, error) {
	prog, err := e.Compile(expression)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate filter: %w", err)
	}

	isTrue, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not return bool")
	}

	return isTrue, nil
}
