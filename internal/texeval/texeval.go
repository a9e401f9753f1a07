// Package texeval evaluates the small arithmetic expression language that
// appears inside TikZ plot commands. Only whitelisted functions and
// constants are recognized; anything else is an error, never executed.
package texeval

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Sentinel errors for expression evaluation.
var (
	ErrEmptyExpression  = errors.New("texeval: empty expression")
	ErrUnexpectedToken  = errors.New("texeval: unexpected token")
	ErrUnknownIdent     = errors.New("texeval: unknown identifier")
	ErrUnbalancedParens = errors.New("texeval: unbalanced parentheses")
)

// functions maps the allowed function names to their implementations.
// log is the natural logarithm and log10 the common one, matching TikZ's
// ln/log split handled by the caller's rewrite step.
var functions = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"exp":   math.Exp,
	"log":   math.Log,
	"log10": math.Log10,
	"abs":   math.Abs,
	"ceil":  math.Ceil,
	"floor": math.Floor,
}

// constants maps the allowed constant names to their values.
var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// Eval evaluates expr with the variable x bound to the given value.
// Supported syntax: numbers, x, pi, e, + - * / ^, unary +/-, parentheses,
// and single-argument calls to the whitelisted functions.
func Eval(expr string, x float64) (float64, error) {
	p := &parser{input: expr, x: x}
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, ErrEmptyExpression
	}

	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}

	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("%w: %q at offset %d", ErrUnexpectedToken, p.input[p.pos:], p.pos)
	}
	return v, nil
}

// parser is a recursive-descent parser over a byte offset.
// Grammar (highest binding last):
//
//	expr   = term   { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = unary  [ "^" factor ]          (right associative)
//	unary  = { "+" | "-" } primary
//	primary = number | ident | ident "(" expr ")" | "(" expr ")"
type parser struct {
	input string
	pos   int
	x     float64
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	v, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			v /= rhs
		default:
			return v, nil
		}
	}
}

func (p *parser) parseFactor() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.peek() == '^' {
		p.pos++
		exp, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return math.Pow(v, exp), nil
	}
	return v, nil
}

func (p *parser) parseUnary() (float64, error) {
	p.skipSpace()
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	case '+':
		p.pos++
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("%w: end of input", ErrUnexpectedToken)
	}

	c := p.input[p.pos]

	if c == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, ErrUnbalancedParens
		}
		p.pos++
		return v, nil
	}

	if c >= '0' && c <= '9' || c == '.' {
		return p.parseNumber()
	}

	if isIdentRune(rune(c)) {
		return p.parseIdent()
	}

	return 0, fmt.Errorf("%w: %q at offset %d", ErrUnexpectedToken, string(c), p.pos)
}

func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= '0' && c <= '9' || c == '.' {
			p.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnexpectedToken, p.input[start:p.pos])
	}
	return v, nil
}

func (p *parser) parseIdent() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && isIdentRune(rune(p.input[p.pos])) {
		p.pos++
	}
	name := strings.ToLower(p.input[start:p.pos])

	if name == "x" {
		return p.x, nil
	}
	if v, ok := constants[name]; ok {
		return v, nil
	}

	fn, ok := functions[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownIdent, name)
	}

	p.skipSpace()
	if p.peek() != '(' {
		return 0, fmt.Errorf("%w: function %q requires an argument", ErrUnexpectedToken, name)
	}
	p.pos++
	arg, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.peek() != ')' {
		return 0, ErrUnbalancedParens
	}
	p.pos++
	return fn(arg), nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || unicode.IsDigit(r)
}
