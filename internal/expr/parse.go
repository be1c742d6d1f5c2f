package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Program is a parsed expression function: header metadata plus one
// expression tree per output slot.
type Program struct {
	Name     string
	NumState int
	NumInput int
	Sp       *Sparsity

	outs []node

	usesY, usesP, usesV, usesCJ bool
}

func (p *Program) outLen() int {
	if p.Sp != nil {
		return p.Sp.NNZ
	}
	return len(p.outs)
}

// expression tree

type opCode uint8

const (
	opAdd opCode = iota
	opSub
	opMul
	opDiv
	opPow
	opNeg
	opSqrt
	opExp
	opLog
	opSin
	opCos
	opTanh
	opAbs
	opMin
	opMax
)

var fnNames = map[string]struct {
	op    opCode
	arity int
}{
	"sqrt": {opSqrt, 1},
	"exp":  {opExp, 1},
	"log":  {opLog, 1},
	"sin":  {opSin, 1},
	"cos":  {opCos, 1},
	"tanh": {opTanh, 1},
	"abs":  {opAbs, 1},
	"min":  {opMin, 2},
	"max":  {opMax, 2},
	"pow":  {opPow, 2},
}

type nodeKind uint8

const (
	kindConst nodeKind = iota
	kindT
	kindY
	kindP
	kindV
	kindCJ
	kindUnary
	kindBinary
)

type node struct {
	kind  nodeKind
	op    opCode
	idx   int
	val   float64
	left  *node
	right *node
}

// Parse reads the serialized expression format and validates it. The
// returned Program is immutable and shared by every Function built on it.
func Parse(src string) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ErrEmptySource
	}

	p := &Program{}
	var (
		sawHeader bool
		nnz       = -1
		assigned  []bool
		outName   = "out"
	)

	for lineNo, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		ln := lineNo + 1

		switch {
		case strings.HasPrefix(line, "fn "):
			if sawHeader {
				return nil, lineErr(ln, "duplicate fn header")
			}
			var err error
			nnz, err = p.parseHeader(line)
			if err != nil {
				return nil, lineErr(ln, "%v", err)
			}
			sawHeader = true
			if nnz >= 0 {
				outName = "nz"
				p.Sp = &Sparsity{N: p.NumState, NNZ: nnz}
				assigned = make([]bool, nnz)
				p.outs = make([]node, nnz)
			}

		case strings.HasPrefix(line, "colptr"), strings.HasPrefix(line, "rowval"):
			if p.Sp == nil {
				return nil, lineErr(ln, "%s without nnz declaration", line[:6])
			}
			ints, err := parseInts(line[6:])
			if err != nil {
				return nil, lineErr(ln, "%v", err)
			}
			if line[0] == 'c' {
				p.Sp.ColPtr = ints
			} else {
				p.Sp.RowVal = ints
			}

		default:
			if !sawHeader {
				return nil, lineErr(ln, "expected fn header, got %q", line)
			}
			idx, rhs, err := splitAssign(line, outName)
			if err != nil {
				return nil, lineErr(ln, "%v", err)
			}
			if p.Sp == nil {
				for idx >= len(p.outs) {
					p.outs = append(p.outs, node{})
					assigned = append(assigned, false)
				}
			} else if idx >= nnz {
				return nil, lineErr(ln, "nz[%d] out of range (nnz = %d)", idx, nnz)
			}
			if assigned[idx] {
				return nil, lineErr(ln, "%s[%d] assigned twice", outName, idx)
			}
			tree, err := p.parseExpr(rhs)
			if err != nil {
				return nil, lineErr(ln, "%v", err)
			}
			p.outs[idx] = *tree
			assigned[idx] = true
		}
	}

	if !sawHeader {
		return nil, fmt.Errorf("%w: missing fn header", ErrSyntax)
	}
	for i, ok := range assigned {
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] never assigned", ErrSyntax, outName, i)
		}
	}
	if len(assigned) == 0 {
		return nil, fmt.Errorf("%w: function %q has no outputs", ErrSyntax, p.Name)
	}
	if p.Sp != nil {
		if err := p.Sp.validate(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func lineErr(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, line, fmt.Sprintf(format, args...))
}

// parseHeader handles `fn name(n=N, k=K)` with an optional ` nnz=NNZ`
// suffix. It returns the declared nnz, or -1 for dense output.
func (p *Program) parseHeader(line string) (nnz int, err error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "fn "))
	open := strings.IndexByte(rest, '(')
	closing := strings.IndexByte(rest, ')')
	if open <= 0 || closing < open {
		return -1, fmt.Errorf("malformed header %q", line)
	}
	p.Name = strings.TrimSpace(rest[:open])

	nnz = -1
	for _, field := range strings.Split(rest[open+1:closing], ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			return -1, fmt.Errorf("malformed header field %q", field)
		}
		iv, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || iv < 0 {
			return -1, fmt.Errorf("bad value in header field %q", field)
		}
		switch strings.TrimSpace(key) {
		case "n":
			p.NumState = iv
		case "k":
			p.NumInput = iv
		default:
			return -1, fmt.Errorf("unknown header field %q", key)
		}
	}
	if p.NumState <= 0 {
		return -1, fmt.Errorf("header must declare n > 0")
	}

	tail := strings.TrimSpace(rest[closing+1:])
	if tail != "" {
		key, val, ok := strings.Cut(tail, "=")
		if !ok || strings.TrimSpace(key) != "nnz" {
			return -1, fmt.Errorf("unexpected header suffix %q", tail)
		}
		nnz, err = strconv.Atoi(strings.TrimSpace(val))
		if err != nil || nnz < 0 {
			return -1, fmt.Errorf("bad nnz value %q", val)
		}
	}
	return nnz, nil
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty index list")
	}
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad index %q", f)
		}
		out[i] = v
	}
	return out, nil
}

func splitAssign(line, outName string) (idx int, rhs string, err error) {
	lhs, rhs, ok := strings.Cut(line, "=")
	if !ok {
		return 0, "", fmt.Errorf("expected assignment, got %q", line)
	}
	lhs = strings.TrimSpace(lhs)
	prefix := outName + "["
	if !strings.HasPrefix(lhs, prefix) || !strings.HasSuffix(lhs, "]") {
		return 0, "", fmt.Errorf("expected %s[i] on left-hand side, got %q", outName, lhs)
	}
	idx, err = strconv.Atoi(lhs[len(prefix) : len(lhs)-1])
	if err != nil || idx < 0 {
		return 0, "", fmt.Errorf("bad output index in %q", lhs)
	}
	return idx, strings.TrimSpace(rhs), nil
}

// tokenizer

type tokKind uint8

const (
	tokNum tokKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokEOF
)

type token struct {
	kind tokKind
	text string
	val  float64
}

type lexer struct {
	src string
	pos int
	cur token
}

func (l *lexer) next() error {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		l.cur = token{kind: tokEOF}
		return nil
	}
	c := l.src[l.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		start := l.pos
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.' ||
			l.src[l.pos] == 'e' || l.src[l.pos] == 'E' ||
			((l.src[l.pos] == '+' || l.src[l.pos] == '-') && l.pos > start &&
				(l.src[l.pos-1] == 'e' || l.src[l.pos-1] == 'E'))) {
			l.pos++
		}
		text := l.src[start:l.pos]
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("bad number %q", text)
		}
		l.cur = token{kind: tokNum, text: text, val: v}
	case isAlpha(c):
		start := l.pos
		for l.pos < len(l.src) && (isAlpha(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.pos++
		}
		l.cur = token{kind: tokIdent, text: l.src[start:l.pos]}
	case c == '(':
		l.pos++
		l.cur = token{kind: tokLParen, text: "("}
	case c == ')':
		l.pos++
		l.cur = token{kind: tokRParen, text: ")"}
	case c == ',':
		l.pos++
		l.cur = token{kind: tokComma, text: ","}
	case strings.IndexByte("+-*/^", c) >= 0:
		l.pos++
		l.cur = token{kind: tokOp, text: string(c)}
	default:
		return fmt.Errorf("unexpected character %q", string(c))
	}
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

// precedence-climbing parser

var binPrec = map[string]int{"+": 1, "-": 1, "*": 2, "/": 2, "^": 3}

func (p *Program) parseExpr(src string) (*node, error) {
	l := &lexer{src: src}
	if err := l.next(); err != nil {
		return nil, err
	}
	tree, err := p.parseBinary(l, 0)
	if err != nil {
		return nil, err
	}
	if l.cur.kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing token %q", l.cur.text)
	}
	return tree, nil
}

func (p *Program) parseBinary(l *lexer, minPrec int) (*node, error) {
	left, err := p.parseUnary(l)
	if err != nil {
		return nil, err
	}
	for l.cur.kind == tokOp {
		prec := binPrec[l.cur.text]
		if prec < minPrec {
			break
		}
		op := l.cur.text
		if err := l.next(); err != nil {
			return nil, err
		}
		// ^ is right-associative, the rest left
		nextMin := prec + 1
		if op == "^" {
			nextMin = prec
		}
		right, err := p.parseBinary(l, nextMin)
		if err != nil {
			return nil, err
		}
		var oc opCode
		switch op {
		case "+":
			oc = opAdd
		case "-":
			oc = opSub
		case "*":
			oc = opMul
		case "/":
			oc = opDiv
		case "^":
			oc = opPow
		}
		left = &node{kind: kindBinary, op: oc, left: left, right: right}
	}
	return left, nil
}

func (p *Program) parseUnary(l *lexer) (*node, error) {
	if l.cur.kind == tokOp && l.cur.text == "-" {
		if err := l.next(); err != nil {
			return nil, err
		}
		child, err := p.parseUnary(l)
		if err != nil {
			return nil, err
		}
		return &node{kind: kindUnary, op: opNeg, left: child}, nil
	}
	if l.cur.kind == tokOp && l.cur.text == "+" {
		if err := l.next(); err != nil {
			return nil, err
		}
		return p.parseUnary(l)
	}
	return p.parsePrimary(l)
}

func (p *Program) parsePrimary(l *lexer) (*node, error) {
	switch l.cur.kind {
	case tokNum:
		n := &node{kind: kindConst, val: l.cur.val}
		return n, l.next()

	case tokLParen:
		if err := l.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseBinary(l, 0)
		if err != nil {
			return nil, err
		}
		if l.cur.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, l.next()

	case tokIdent:
		name := l.cur.text
		if err := l.next(); err != nil {
			return nil, err
		}
		if l.cur.kind == tokLParen {
			return p.parseCall(l, name)
		}
		return p.parseVar(name)

	default:
		return nil, fmt.Errorf("unexpected token %q", l.cur.text)
	}
}

func (p *Program) parseCall(l *lexer, name string) (*node, error) {
	info, ok := fnNames[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	if err := l.next(); err != nil { // consume (
		return nil, err
	}
	first, err := p.parseBinary(l, 0)
	if err != nil {
		return nil, err
	}
	var second *node
	if info.arity == 2 {
		if l.cur.kind != tokComma {
			return nil, fmt.Errorf("%s expects 2 arguments", name)
		}
		if err := l.next(); err != nil {
			return nil, err
		}
		second, err = p.parseBinary(l, 0)
		if err != nil {
			return nil, err
		}
	}
	if l.cur.kind != tokRParen {
		return nil, fmt.Errorf("missing closing parenthesis in %s call", name)
	}
	if err := l.next(); err != nil {
		return nil, err
	}
	kind := nodeKind(kindUnary)
	if info.arity == 2 {
		kind = kindBinary
	}
	return &node{kind: kind, op: info.op, left: first, right: second}, nil
}

func (p *Program) parseVar(name string) (*node, error) {
	switch {
	case name == "t":
		return &node{kind: kindT}, nil
	case name == "cj":
		p.usesCJ = true
		return &node{kind: kindCJ}, nil
	case len(name) > 1 && (name[0] == 'y' || name[0] == 'p' || name[0] == 'v'):
		idx, err := strconv.Atoi(name[1:])
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("unknown identifier %q", name)
		}
		switch name[0] {
		case 'y':
			if idx >= p.NumState {
				return nil, fmt.Errorf("y%d out of range (n = %d)", idx, p.NumState)
			}
			p.usesY = true
			return &node{kind: kindY, idx: idx}, nil
		case 'p':
			if idx >= p.NumInput {
				return nil, fmt.Errorf("p%d out of range (k = %d)", idx, p.NumInput)
			}
			p.usesP = true
			return &node{kind: kindP, idx: idx}, nil
		default:
			if idx >= p.NumState {
				return nil, fmt.Errorf("v%d out of range (n = %d)", idx, p.NumState)
			}
			p.usesV = true
			return &node{kind: kindV, idx: idx}, nil
		}
	default:
		return nil, fmt.Errorf("unknown identifier %q", name)
	}
}
