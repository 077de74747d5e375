package condition

import (
	"fmt"
	"regexp"
)

// expression AST.
type exprNode interface{}

type orNode struct{ parts []exprNode }
type andNode struct{ parts []exprNode }
type notNode struct{ inner exprNode }

// compareNode is `left <op> right`. For is_null nodes right is nil; regex
// nodes precompile the pattern.
type compareNode struct {
	op      string // == != > < >= <= ~ !~ in not_in is_null not_is_null regex
	left    operand
	right   *operand
	list    []operand
	pattern *regexp.Regexp
}

// truthNode evaluates a bare operand for truthiness.
type truthNode struct{ op operand }

// operand is a path reference or a literal value.
type operand struct {
	isPath bool
	path   string
	value  any
}

type parser struct {
	tokens []token
	pos    int
	// firstPath records the first referenced path, used as the compiled
	// expression's search path for trigger bucketing.
	firstPath string
}

func (p *parser) peek() token  { return p.tokens[p.pos] }
func (p *parser) next() token  { t := p.tokens[p.pos]; p.pos++; return t }
func (p *parser) expect(k tokenKind) (token, error) {
	t := p.next()
	if t.kind != k {
		return t, fmt.Errorf("unexpected token %q at offset %d", t.text, t.pos)
	}
	return t, nil
}

// parse builds the AST for a full expression.
func parse(tokens []token) (exprNode, string, error) {
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, "", err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, "", fmt.Errorf("unexpected trailing token %q at offset %d", t.text, t.pos)
	}
	return node, p.firstPath, nil
}

func (p *parser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	parts := []exprNode{left}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return left, nil
	}
	return orNode{parts: parts}, nil
}

func (p *parser) parseAnd() (exprNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	parts := []exprNode{left}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return left, nil
	}
	return andNode{parts: parts}, nil
}

func (p *parser) parseNot() (exprNode, error) {
	if p.peek().kind == tokNot {
		// `not` directly before `in`/`is_null` belongs to the comparison;
		// that form is only reachable after an operand, so a leading `not`
		// here is always logical negation.
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (exprNode, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch t := p.peek(); t.kind {
	case tokOp:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return compareNode{op: t.text, left: left, right: &right}, nil
	case tokIn:
		p.next()
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return compareNode{op: "in", left: left, list: list}, nil
	case tokIsNull:
		p.next()
		return compareNode{op: "is_null", left: left}, nil
	case tokRegex:
		p.next()
		pat, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		s, ok := pat.value.(string)
		if !ok || pat.isPath {
			return nil, fmt.Errorf("regex pattern must be a literal string")
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", s, err)
		}
		return compareNode{op: "regex", left: left, pattern: re}, nil
	case tokNot:
		// `<operand> not in [...]` / `<operand> not is_null`
		p.next()
		switch inner := p.next(); inner.kind {
		case tokIn:
			list, err := p.parseList()
			if err != nil {
				return nil, err
			}
			return compareNode{op: "not_in", left: left, list: list}, nil
		case tokIsNull:
			return compareNode{op: "not_is_null", left: left}, nil
		default:
			return nil, fmt.Errorf("expected 'in' or 'is_null' after 'not' at offset %d", inner.pos)
		}
	}
	return truthNode{op: left}, nil
}

func (p *parser) parseList() ([]operand, error) {
	if _, err := p.expect(tokLBracket); err != nil {
		return nil, err
	}
	var items []operand
	if p.peek().kind == tokRBracket {
		p.next()
		return items, nil
	}
	for {
		item, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		switch t := p.next(); t.kind {
		case tokComma:
		case tokRBracket:
			return items, nil
		default:
			return nil, fmt.Errorf("expected ',' or ']' at offset %d", t.pos)
		}
	}
}

func (p *parser) parseOperand() (operand, error) {
	switch t := p.next(); t.kind {
	case tokPath:
		if p.firstPath == "" {
			p.firstPath = t.text
		}
		return operand{isPath: true, path: t.text}, nil
	case tokString, tokWord:
		return operand{value: t.text}, nil
	case tokInt:
		return operand{value: t.n}, nil
	case tokFloat:
		return operand{value: t.num}, nil
	case tokBool:
		return operand{value: t.b}, nil
	case tokNull:
		return operand{value: nil}, nil
	default:
		return operand{}, fmt.Errorf("expected operand, got %q at offset %d", t.text, t.pos)
	}
}
