package editing

// Node is a parsed condition expression.
type Node interface {
	Pos() int
}

type Literal struct {
	Value  Value
	Offset int
}

type ListExpr struct {
	Elems  []Node
	Offset int
}

// UnaryExpr is "-x", "+x" or "not x".
type UnaryExpr struct {
	Op     string
	X      Node
	Offset int
}

// LogicalExpr is "and" / "or".
type LogicalExpr struct {
	Op          string
	Left, Right Node
	Offset      int
}

// CompareExpr holds a comparison chain: a < b <= c means a < b and b <= c.
type CompareExpr struct {
	Ops      []string
	Operands []Node
	Offset   int
}

type CallExpr struct {
	Name   string
	Args   []Node
	Offset int
}

func (n *Literal) Pos() int     { return n.Offset }
func (n *ListExpr) Pos() int    { return n.Offset }
func (n *UnaryExpr) Pos() int   { return n.Offset }
func (n *LogicalExpr) Pos() int { return n.Offset }
func (n *CompareExpr) Pos() int { return n.Offset }
func (n *CallExpr) Pos() int    { return n.Offset }
