// Package filterexpr parses and evaluates boolean filter expressions
// against a nested key/value alert record.
//
// Grammar, lowest precedence first:
//
//	expr      := or_expr
//	or_expr   := and_expr ('||' and_expr)*
//	and_expr  := condition ('&' condition)*
//	condition := '(' expr ')' | field op literal
//	op        := '==' | '!=' | '>=' | '<=' | '>' | '<'
//
// Fields are dotted paths resolved by walking the record; a missing
// segment aborts evaluation of the whole expression with an error.
package filterexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is one parsed filter expression tree node.
// Params: evaluation record (nested string-keyed maps).
// Returns: boolean expression result or a field/type error.
type Expr interface {
	Eval(record map[string]any) (bool, error)
}

// Parse builds an expression tree from filter source text.
// Params: filter source.
// Returns: expression tree or a parse error with the byte offset of the
// offending token.
func Parse(input string) (Expr, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	}
	return expr, nil
}

// Eval parses and evaluates a filter in one call.
// Params: filter source and evaluation record.
// Returns: match result, or an error on parse failure or missing field.
func Eval(input string, record map[string]any) (bool, error) {
	expr, err := Parse(input)
	if err != nil {
		return false, err
	}
	return expr.Eval(record)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokOr
	tokAnd
	tokLParen
	tokRParen
	tokOp
	tokAtom
	tokString
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// operators ordered so two-character forms match before their prefixes.
var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == '|':
			if i+1 >= len(input) || input[i+1] != '|' {
				return nil, fmt.Errorf("stray '|' at offset %d", i)
			}
			tokens = append(tokens, token{tokOr, "||", i})
			i += 2
		case c == '&':
			tokens = append(tokens, token{tokAnd, "&", i})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(input[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			tokens = append(tokens, token{tokString, input[i+1 : i+1+end], i})
			i += end + 2
		case c == '=' || c == '!' || c == '<' || c == '>':
			matched := ""
			for _, op := range operators {
				if strings.HasPrefix(input[i:], op) {
					matched = op
					break
				}
			}
			if matched == "" {
				return nil, fmt.Errorf("invalid operator at offset %d", i)
			}
			tokens = append(tokens, token{tokOp, matched, i})
			i += len(matched)
		default:
			start := i
			for i < len(input) && !isAtomBoundary(input[i]) {
				i++
			}
			tokens = append(tokens, token{tokAtom, input[start:i], start})
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(input)})
	return tokens, nil
}

func isAtomBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '&', '|', '=', '!', '<', '>', '"', '\'':
		return true
	}
	return false
}

type parser struct {
	tokens []token
	idx    int
}

func (p *parser) peek() token {
	return p.tokens[p.idx]
}

func (p *parser) next() token {
	tok := p.tokens[p.idx]
	if tok.kind != tokEOF {
		p.idx++
	}
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Expr{left}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return orExpr(terms), nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	terms := []Expr{left}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return andExpr(terms), nil
}

func (p *parser) parseCondition() (Expr, error) {
	tok := p.peek()
	if tok.kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("missing ')' at offset %d", closing.pos)
		}
		return inner, nil
	}
	if tok.kind != tokAtom {
		return nil, fmt.Errorf("expected field at offset %d, got %q", tok.pos, tok.text)
	}
	p.next()

	opTok := p.next()
	if opTok.kind != tokOp {
		return nil, fmt.Errorf("expected operator at offset %d, got %q", opTok.pos, opTok.text)
	}

	valTok := p.next()
	switch valTok.kind {
	case tokString:
		return cmpExpr{path: strings.Split(tok.text, "."), op: opTok.text, str: valTok.text, isString: true}, nil
	case tokAtom:
		return newCmp(tok.text, opTok.text, valTok.text), nil
	default:
		return nil, fmt.Errorf("expected value at offset %d, got %q", valTok.pos, valTok.text)
	}
}

type orExpr []Expr

// Eval short-circuits on the first true term.
func (e orExpr) Eval(record map[string]any) (bool, error) {
	for _, term := range e {
		ok, err := term.Eval(record)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type andExpr []Expr

// Eval short-circuits on the first false term.
func (e andExpr) Eval(record map[string]any) (bool, error) {
	for _, term := range e {
		ok, err := term.Eval(record)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// cmpExpr is one field-operator-literal comparison. The literal is typed
// once at parse time: quoted text stays a string, integer-looking text
// becomes an int, float-looking text becomes a float.
type cmpExpr struct {
	path     []string
	op       string
	str      string
	num      float64
	isString bool
}

func newCmp(field, op, raw string) cmpExpr {
	cmp := cmpExpr{path: strings.Split(field, "."), op: op, str: raw}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		cmp.num = f
	} else {
		cmp.isString = true
	}
	return cmp
}

// Eval resolves the dotted field path and compares against the literal.
// Params: evaluation record.
// Returns: comparison result; missing path segments and orderings across
// mismatched types yield errors.
func (e cmpExpr) Eval(record map[string]any) (bool, error) {
	left, err := lookupPath(record, e.path)
	if err != nil {
		return false, err
	}

	if e.isString {
		return e.compareString(left)
	}
	return e.compareNumber(left)
}

func (e cmpExpr) compareString(left any) (bool, error) {
	str, ok := left.(string)
	if !ok {
		// Different types are never equal; ordering them is an error.
		switch e.op {
		case "==":
			return false, nil
		case "!=":
			return true, nil
		}
		return false, fmt.Errorf("cannot order %T against string %q", left, e.str)
	}
	switch e.op {
	case "==":
		return str == e.str, nil
	case "!=":
		return str != e.str, nil
	case ">":
		return str > e.str, nil
	case "<":
		return str < e.str, nil
	case ">=":
		return str >= e.str, nil
	case "<=":
		return str <= e.str, nil
	}
	return false, fmt.Errorf("unsupported operator %q", e.op)
}

func (e cmpExpr) compareNumber(left any) (bool, error) {
	num, ok := toFloat(left)
	if !ok {
		switch e.op {
		case "==":
			return false, nil
		case "!=":
			return true, nil
		}
		return false, fmt.Errorf("cannot order %T against number %s", left, e.str)
	}
	switch e.op {
	case "==":
		return num == e.num, nil
	case "!=":
		return num != e.num, nil
	case ">":
		return num > e.num, nil
	case "<":
		return num < e.num, nil
	case ">=":
		return num >= e.num, nil
	case "<=":
		return num <= e.num, nil
	}
	return false, fmt.Errorf("unsupported operator %q", e.op)
}

// toFloat coerces record values for numeric comparison. Strings are
// accepted when they themselves parse as numbers.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// lookupPath walks nested maps along a dotted path.
// Params: record root and split path.
// Returns: leaf value or an error naming the full path.
func lookupPath(record map[string]any, path []string) (any, error) {
	var current any = record
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q not found", strings.Join(path, "."))
		}
		current, ok = node[key]
		if !ok {
			return nil, fmt.Errorf("field %q not found", strings.Join(path, "."))
		}
	}
	return current, nil
}
