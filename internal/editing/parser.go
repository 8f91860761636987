package editing

import "fmt"

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 128

// Parse turns a transformed condition into an AST.
//
//	expr       := or
//	or         := and ("or" and)*
//	and        := not ("and" not)*
//	not        := "not" not | comparison
//	comparison := unary (compop unary)*
//	unary      := ("-" | "+") unary | primary
//	primary    := NUMBER | STRING | True | False | None
//	            | "[" [expr ("," expr)* [","]] "]"
//	            | predicate "(" [expr ("," expr)*] ")"
//	            | "(" expr ")"
func Parse(src string) (Node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %s", tok)
	}
	return n, nil
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isKeyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.text == word
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(p.peek(), "expression nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseOr() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		tok := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: "or", Left: left, Right: right, Offset: tok.pos}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		tok := p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: "and", Left: left, Right: right, Offset: tok.pos}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.isKeyword("not") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		tok := p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "not", X: x, Offset: tok.pos}, nil
	}
	return p.parseComparison()
}

func isCompareOp(tok token) bool {
	if tok.kind != tokOp {
		return false
	}
	switch tok.text {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (p *parser) parseComparison() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if !isCompareOp(p.peek()) {
		return first, nil
	}
	cmp := &CompareExpr{Operands: []Node{first}, Offset: first.Pos()}
	for isCompareOp(p.peek()) {
		op := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		cmp.Ops = append(cmp.Ops, op.text)
		cmp.Operands = append(cmp.Operands, operand)
	}
	return cmp, nil
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.kind == tokOp && (tok.text == "-" || tok.text == "+") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: tok.text, X: x, Offset: tok.pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &Literal{Value: tok.num, Offset: tok.pos}, nil
	case tokString:
		return &Literal{Value: tok.str, Offset: tok.pos}, nil

	case tokIdent:
		switch tok.text {
		case "True", "true":
			return &Literal{Value: true, Offset: tok.pos}, nil
		case "False", "false":
			return &Literal{Value: false, Offset: tok.pos}, nil
		case "None":
			return &Literal{Value: nil, Offset: tok.pos}, nil
		}
		if !isPredicate(tok.text) {
			return nil, p.errorf(tok, "unknown name %q", tok.text)
		}
		if p.peek().kind != tokLParen {
			return nil, p.errorf(p.peek(), "expected ( after %s", tok.text)
		}
		p.next()
		args, err := p.parseSequence(tokRParen)
		if err != nil {
			return nil, err
		}
		return &CallExpr{Name: tok.text, Args: args, Offset: tok.pos}, nil

	case tokLBracket:
		elems, err := p.parseSequence(tokRBracket)
		if err != nil {
			return nil, err
		}
		return &ListExpr{Elems: elems, Offset: tok.pos}, nil

	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ) but found %s", closing)
		}
		return x, nil

	default:
		return nil, p.errorf(tok, "unexpected %s", tok)
	}
}

// parseSequence reads comma separated expressions up to the closing token,
// which it consumes. A trailing comma is allowed.
func (p *parser) parseSequence(closing tokenKind) ([]Node, error) {
	var items []Node
	for {
		if p.peek().kind == closing {
			p.next()
			return items, nil
		}
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		switch tok := p.next(); tok.kind {
		case tokComma:
		case closing:
			return items, nil
		default:
			return nil, p.errorf(tok, "unexpected %s in list", tok)
		}
	}
}
