package event

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kunquat/kunquat-go/pkg/kqerr"
)

// Env resolves named variables referenced by an expression (e.g. channel
// force, master tempo). It is read-only from the evaluator's perspective.
type Env interface {
	Get(name string) (Value, bool)
}

// MapEnv is the simplest Env: a name-to-value lookup table.
type MapEnv map[string]Value

func (e MapEnv) Get(name string) (Value, bool) { v, ok := e[name]; return v, ok }

// Evaluator parses and evaluates trigger argument expressions. It is pure
// with respect to env (reads only) but advances the supplied random state
// deterministically when an expression calls rand().
type Evaluator struct{}

// NewEvaluator creates an expression evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Eval parses and evaluates expr against env, with meta bound to the name
// "m" (the triggering event's own argument, available to bind expressions).
// randState is advanced in place each time the expression calls rand().
func (ev *Evaluator) Eval(expr string, meta Value, env Env, randState *uint64) (Value, error) {
	p := &parser{lex: newLexer(expr), env: env, meta: meta, rand: randState}
	p.next()
	v, err := p.parseExpr(0)
	if err != nil {
		return Value{}, kqerr.Wrap(kqerr.KindFormat, "expression evaluation failed", err)
	}
	if p.tok.kind != tokEOF {
		return Value{}, kqerr.New(kqerr.KindFormat, fmt.Sprintf("unexpected trailing token %q in expression %q", p.tok.text, expr))
	}
	return v, nil
}

// --- tokenizer ---

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(s string) *lexer { return &lexer{src: []rune(s)} }

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) next() token {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}
	}
	c := l.src[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ","}
	case c == '"':
		return l.lexString()
	case c >= '0' && c <= '9', c == '.':
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdent()
	default:
		return l.lexOp()
	}
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (l *lexer) lexString() token {
	l.pos++ // opening quote
	start := l.pos
	var sb strings.Builder
	for l.pos < len(l.src) && l.src[l.pos] != '"' {
		if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
			l.pos++
		}
		sb.WriteRune(l.src[l.pos])
		l.pos++
	}
	_ = start
	if l.pos < len(l.src) {
		l.pos++ // closing quote
	}
	return token{kind: tokString, text: sb.String()}
}

func (l *lexer) lexNumber() token {
	start := l.pos
	for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
		l.pos++
	}
	text := string(l.src[start:l.pos])
	f, _ := strconv.ParseFloat(text, 64)
	return token{kind: tokNumber, text: text, num: f}
}

func (l *lexer) lexIdent() token {
	start := l.pos
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, text: string(l.src[start:l.pos])}
}

var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

func (l *lexer) lexOp() token {
	if l.pos+1 < len(l.src) {
		two := string(l.src[l.pos : l.pos+2])
		for _, op := range twoCharOps {
			if two == op {
				l.pos += 2
				return token{kind: tokOp, text: two}
			}
		}
	}
	c := l.src[l.pos]
	l.pos++
	return token{kind: tokOp, text: string(c)}
}

// --- parser (precedence climbing) ---

type parser struct {
	lex  *lexer
	tok  token
	env  Env
	meta Value
	rand *uint64
}

func (p *parser) next() { p.tok = p.lex.next() }

var precedence = map[string]int{
	"||": 1, "&&": 2,
	"==": 3, "!=": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"+": 4, "-": 4,
	"*": 5, "/": 5, "%": 5,
}

func (p *parser) parseExpr(minPrec int) (Value, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return Value{}, err
	}
	for p.tok.kind == tokOp {
		prec, ok := precedence[p.tok.text]
		if !ok || prec < minPrec {
			break
		}
		op := p.tok.text
		p.next()
		rhs, err := p.parseExpr(prec + 1)
		if err != nil {
			return Value{}, err
		}
		lhs, err = applyBinOp(op, lhs, rhs)
		if err != nil {
			return Value{}, err
		}
	}
	return lhs, nil
}

func (p *parser) parseUnary() (Value, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "!") {
		op := p.tok.text
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		if op == "-" {
			f, ok := v.AsFloat()
			if !ok {
				return Value{}, fmt.Errorf("cannot negate %s", v.Kind)
			}
			return FromFloat(-f), nil
		}
		return FromBool(!truthy(v)), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Value, error) {
	switch p.tok.kind {
	case tokNumber:
		v := FromFloat(p.tok.num)
		p.next()
		return v, nil
	case tokString:
		v := FromString(p.tok.text)
		p.next()
		return v, nil
	case tokLParen:
		p.next()
		v, err := p.parseExpr(0)
		if err != nil {
			return Value{}, err
		}
		if p.tok.kind != tokRParen {
			return Value{}, fmt.Errorf("expected ')'")
		}
		p.next()
		return v, nil
	case tokIdent:
		name := p.tok.text
		p.next()
		if p.tok.kind == tokLParen {
			return p.parseCall(name)
		}
		return p.resolveIdent(name)
	default:
		return Value{}, fmt.Errorf("unexpected token %q", p.tok.text)
	}
}

func (p *parser) parseCall(name string) (Value, error) {
	p.next() // consume '('
	var args []Value
	for p.tok.kind != tokRParen {
		v, err := p.parseExpr(0)
		if err != nil {
			return Value{}, err
		}
		args = append(args, v)
		if p.tok.kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if p.tok.kind != tokRParen {
		return Value{}, fmt.Errorf("expected ')' after call to %s", name)
	}
	p.next()
	return p.callFunc(name, args)
}

func (p *parser) callFunc(name string, args []Value) (Value, error) {
	switch name {
	case "rand":
		if p.rand == nil {
			return FromFloat(0), nil
		}
		x := *p.rand
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		*p.rand = x
		return FromFloat(float64(x%1000000) / 1000000.0), nil
	case "abs":
		if len(args) != 1 {
			return Value{}, fmt.Errorf("abs() takes 1 argument")
		}
		f, _ := args[0].AsFloat()
		if f < 0 {
			f = -f
		}
		return FromFloat(f), nil
	case "min":
		return reduceNumeric(args, func(a, b float64) float64 {
			if a < b {
				return a
			}
			return b
		})
	case "max":
		return reduceNumeric(args, func(a, b float64) float64 {
			if a > b {
				return a
			}
			return b
		})
	default:
		return Value{}, fmt.Errorf("unknown function %q", name)
	}
}

func reduceNumeric(args []Value, combine func(a, b float64) float64) (Value, error) {
	if len(args) == 0 {
		return Value{}, fmt.Errorf("expected at least one argument")
	}
	acc, ok := args[0].AsFloat()
	if !ok {
		return Value{}, fmt.Errorf("non-numeric argument")
	}
	for _, a := range args[1:] {
		f, ok := a.AsFloat()
		if !ok {
			return Value{}, fmt.Errorf("non-numeric argument")
		}
		acc = combine(acc, f)
	}
	return FromFloat(acc), nil
}

func (p *parser) resolveIdent(name string) (Value, error) {
	switch name {
	case "m":
		return p.meta, nil
	case "true":
		return FromBool(true), nil
	case "false":
		return FromBool(false), nil
	case "null":
		return Null(), nil
	}
	if p.env != nil {
		if v, ok := p.env.Get(name); ok {
			return v, nil
		}
	}
	return Value{}, fmt.Errorf("undefined variable %q", name)
}

func truthy(v Value) bool {
	switch v.Kind {
	case KindBool:
		return v.B
	case KindNull:
		return false
	default:
		f, ok := v.AsFloat()
		return ok && f != 0
	}
}

func applyBinOp(op string, a, b Value) (Value, error) {
	switch op {
	case "==":
		return FromBool(valuesEqual(a, b)), nil
	case "!=":
		return FromBool(!valuesEqual(a, b)), nil
	case "&&":
		return FromBool(truthy(a) && truthy(b)), nil
	case "||":
		return FromBool(truthy(a) || truthy(b)), nil
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if !aok || !bok {
		if op == "+" && a.Kind == KindString && b.Kind == KindString {
			return FromString(a.S + b.S), nil
		}
		return Value{}, fmt.Errorf("operator %q requires numeric operands", op)
	}
	switch op {
	case "+":
		return FromFloat(af + bf), nil
	case "-":
		return FromFloat(af - bf), nil
	case "*":
		return FromFloat(af * bf), nil
	case "/":
		if bf == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return FromFloat(af / bf), nil
	case "%":
		if bf == 0 {
			return Value{}, fmt.Errorf("modulo by zero")
		}
		return FromFloat(float64(int64(af) % int64(bf))), nil
	case "<":
		return FromBool(af < bf), nil
	case "<=":
		return FromBool(af <= bf), nil
	case ">":
		return FromBool(af > bf), nil
	case ">=":
		return FromBool(af >= bf), nil
	default:
		return Value{}, fmt.Errorf("unknown operator %q", op)
	}
}

func valuesEqual(a, b Value) bool {
	if a.Kind == KindString && b.Kind == KindString {
		return a.S == b.S
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if aok && bok {
		return af == bf
	}
	return a.Kind == KindNull && b.Kind == KindNull
}
