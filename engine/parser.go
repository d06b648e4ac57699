package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Expression is an immutable formula: its source text plus the parsed,
// whitelisted tree. Parse once, evaluate many times.
type Expression struct {
	Text string
	Root Node

	vars  []string
	funcs []string
}

// Parse builds the syntax tree for a formula. It returns a *SyntaxError
// when the text is malformed and a *SecurityError when the text parses but
// steps outside the whitelisted grammar: attribute access, subscripts,
// underscore-prefixed identifiers, or a call to an unlisted function.
// A formula runs exactly this grammar or not at all.
func Parse(text string) (*Expression, error) {
	toks, err := scan(text)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &SyntaxError{Pos: tok.pos, Message: fmt.Sprintf("unexpected %q after expression", tok.text)}
	}

	expr := &Expression{Text: text, Root: root}
	expr.collect()
	return expr, nil
}

// Variables returns the sorted set of variable names the formula
// references.
func (e *Expression) Variables() []string {
	return append([]string(nil), e.vars...)
}

// Functions returns the sorted set of whitelisted functions the formula
// calls.
func (e *Expression) Functions() []string {
	return append([]string(nil), e.funcs...)
}

func (e *Expression) collect() {
	varSet := map[string]bool{}
	funcSet := map[string]bool{}
	Walk(e.Root, func(n Node) {
		switch v := n.(type) {
		case *VarRef:
			varSet[v.Name] = true
		case *Call:
			funcSet[v.Func] = true
		}
	})
	e.vars = sortedKeys(varSet)
	e.funcs = sortedKeys(funcSet)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type parser struct {
	toks []token
	pos  int
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

func (p *parser) accept(kind tokenKind, text string) bool {
	tok := p.peek()
	if tok.kind == kind && tok.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) error {
	tok := p.peek()
	if tok.kind != kind || tok.text != text {
		return &SyntaxError{Pos: tok.pos, Message: fmt.Sprintf("expected %q, got %q", text, tok.text)}
	}
	p.pos++
	return nil
}

// parseExpression parses a conditional: THEN if COND else ELSE.
// The conditional binds loosest, mirroring the formula style plan authors
// write: "base * 0.1 if tenure >= 2 else 0".
func (p *parser) parseExpression() (Node, error) {
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if !p.accept(tokKeyword, "if") {
		return then, nil
	}

	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokKeyword, "else"); err != nil {
		return nil, err
	}
	els, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &Conditional{Cond: cond, Then: then, Else: els}, nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	values := []Node{left}
	for p.accept(tokKeyword, "or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	if len(values) == 1 {
		return left, nil
	}
	return &BoolOp{Op: "or", Values: values}, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	values := []Node{left}
	for p.accept(tokKeyword, "and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	if len(values) == 1 {
		return left, nil
	}
	return &BoolOp{Op: "and", Values: values}, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.accept(tokKeyword, "not") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

var comparators = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

// parseComparison parses a comparison chain: a < b < c becomes one Compare
// node with two links.
func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}

	var ops []string
	var rights []Node
	for {
		tok := p.peek()
		if tok.kind != tokOp || !comparators[tok.text] {
			break
		}
		p.next()
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, tok.text)
		rights = append(rights, right)
	}

	if len(ops) == 0 {
		return left, nil
	}
	return &Compare{Left: left, Ops: ops, Rights: rights}, nil
}

func (p *parser) parseArith() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: tok.text, Left: left, Right: right}
	}
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || (tok.text != "*" && tok.text != "/" && tok.text != "//" && tok.text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: tok.text, Left: left, Right: right}
	}
}

func (p *parser) parseFactor() (Node, error) {
	tok := p.peek()
	if tok.kind == tokOp && (tok.text == "-" || tok.text == "+") {
		p.next()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: tok.text, Operand: operand}, nil
	}
	return p.parsePower()
}

// parsePower handles ** with right associativity: 2 ** 3 ** 2 is 2 ** 9.
func (p *parser) parsePower() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.accept(tokOp, "**") {
		exp, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: "**", Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.peek()

	switch tok.kind {
	case tokNumber:
		p.next()
		d, err := decimal.NewFromString(tok.text)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Message: fmt.Sprintf("malformed number %q", tok.text)}
		}
		return p.checkPostfix(&Literal{Value: d})

	case tokString:
		p.next()
		return p.checkPostfix(&Literal{Value: tok.text})

	case tokIdent:
		return p.parseIdent()

	case tokPunct:
		switch tok.text {
		case "(":
			return p.parseParen()
		case "[":
			return p.parseList()
		}
	}

	return nil, &SyntaxError{Pos: tok.pos, Message: fmt.Sprintf("unexpected %q", tok.text)}
}

func (p *parser) parseIdent() (Node, error) {
	tok := p.next()
	name := tok.text

	switch name {
	case "True", "true":
		return p.checkPostfix(&Literal{Value: true})
	case "False", "false":
		return p.checkPostfix(&Literal{Value: false})
	case "None", "null":
		return p.checkPostfix(&Literal{Value: nil})
	}

	if strings.HasPrefix(name, "_") {
		return nil, &SecurityError{
			Pos:       tok.pos,
			Construct: "identifier",
			Message:   fmt.Sprintf("names starting with underscore are not permitted: %q", name),
		}
	}

	if p.accept(tokPunct, "(") {
		if !IsWhitelistedFunction(name) {
			return nil, &SecurityError{
				Pos:       tok.pos,
				Construct: "function call",
				Message:   fmt.Sprintf("%q is not a permitted function", name),
			}
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return p.checkPostfix(&Call{Func: name, Args: args})
	}

	return p.checkPostfix(&VarRef{Name: name})
}

func (p *parser) parseArgs() ([]Node, error) {
	var args []Node
	if p.accept(tokPunct, ")") {
		return args, nil
	}
	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.accept(tokPunct, ",") {
			continue
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return nil, err
		}
		return args, nil
	}
}

// parseParen handles grouping and tuple literals: (a) is just a, while
// (a, b) is a list value.
func (p *parser) parseParen() (Node, error) {
	p.next() // consume "("
	first, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if !p.accept(tokPunct, ",") {
		if err := p.expect(tokPunct, ")"); err != nil {
			return nil, err
		}
		return p.checkPostfix(first)
	}

	elems := []Node{first}
	for {
		if p.accept(tokPunct, ")") {
			return p.checkPostfix(&ListLit{Elems: elems})
		}
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.accept(tokPunct, ",") {
			continue
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return nil, err
		}
		return p.checkPostfix(&ListLit{Elems: elems})
	}
}

func (p *parser) parseList() (Node, error) {
	p.next() // consume "["
	var elems []Node
	if p.accept(tokPunct, "]") {
		return p.checkPostfix(&ListLit{Elems: elems})
	}
	for {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.accept(tokPunct, ",") {
			if p.accept(tokPunct, "]") {
				return p.checkPostfix(&ListLit{Elems: elems})
			}
			continue
		}
		if err := p.expect(tokPunct, "]"); err != nil {
			return nil, err
		}
		return p.checkPostfix(&ListLit{Elems: elems})
	}
}

// checkPostfix rejects attribute access and subscripting after any value.
// These are the constructs that would expose methods or container
// internals, so they are a security rejection rather than a syntax one.
func (p *parser) checkPostfix(n Node) (Node, error) {
	tok := p.peek()
	if tok.kind == tokPunct && tok.text == "." {
		return nil, &SecurityError{
			Pos:       tok.pos,
			Construct: "attribute access",
			Message:   "attribute and method access are not permitted",
		}
	}
	if tok.kind == tokPunct && tok.text == "[" {
		return nil, &SecurityError{
			Pos:       tok.pos,
			Construct: "subscript",
			Message:   "subscript access is not permitted",
		}
	}
	return n, nil
}
