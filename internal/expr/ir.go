package expr

import (
	"fmt"
	"math"
	"sync"
)

// The IR backend flattens each expression tree into a register program
// executed without tree traversal or per-node dispatch on interface
// values. Binary pow/min/max are outside its operator set: the compile
// step fails on them instead of deferring the error to evaluation.

type irOp uint8

const (
	irConst irOp = iota
	irLoadT
	irLoadY
	irLoadP
	irLoadV
	irLoadCJ
	irAdd
	irSub
	irMul
	irDiv
	irNeg
	irSqrt
	irExp
	irLog
	irSin
	irCos
	irTanh
	irAbs
	irStore
)

type instr struct {
	op   irOp
	dst  uint16
	a, b uint16
	imm  float64
}

type irFunction struct {
	prog *Program
	code []instr
	regs int

	scratch sync.Pool
}

// compile lowers every output expression of prog to the register program.
func compile(p *Program) (*irFunction, error) {
	c := &compiler{}
	for i := range p.outs {
		reg, err := c.lower(&p.outs[i])
		if err != nil {
			return nil, fmt.Errorf("%w (function %q, output %d)", err, p.Name, i)
		}
		c.code = append(c.code, instr{op: irStore, dst: uint16(i), a: reg})
	}
	f := &irFunction{prog: p, code: c.code, regs: c.nextReg}
	f.scratch.New = func() any {
		s := make([]float64, f.regs)
		return &s
	}
	return f, nil
}

type compiler struct {
	code    []instr
	nextReg int
}

func (c *compiler) alloc() uint16 {
	r := c.nextReg
	c.nextReg++
	return uint16(r)
}

func (c *compiler) lower(n *node) (uint16, error) {
	switch n.kind {
	case kindConst:
		r := c.alloc()
		c.code = append(c.code, instr{op: irConst, dst: r, imm: n.val})
		return r, nil
	case kindT:
		r := c.alloc()
		c.code = append(c.code, instr{op: irLoadT, dst: r})
		return r, nil
	case kindY:
		r := c.alloc()
		c.code = append(c.code, instr{op: irLoadY, dst: r, a: uint16(n.idx)})
		return r, nil
	case kindP:
		r := c.alloc()
		c.code = append(c.code, instr{op: irLoadP, dst: r, a: uint16(n.idx)})
		return r, nil
	case kindV:
		r := c.alloc()
		c.code = append(c.code, instr{op: irLoadV, dst: r, a: uint16(n.idx)})
		return r, nil
	case kindCJ:
		r := c.alloc()
		c.code = append(c.code, instr{op: irLoadCJ, dst: r})
		return r, nil
	case kindUnary:
		var op irOp
		switch n.op {
		case opNeg:
			op = irNeg
		case opSqrt:
			op = irSqrt
		case opExp:
			op = irExp
		case opLog:
			op = irLog
		case opSin:
			op = irSin
		case opCos:
			op = irCos
		case opTanh:
			op = irTanh
		case opAbs:
			op = irAbs
		default:
			return 0, ErrUnsupportedOp
		}
		a, err := c.lower(n.left)
		if err != nil {
			return 0, err
		}
		r := c.alloc()
		c.code = append(c.code, instr{op: op, dst: r, a: a})
		return r, nil
	case kindBinary:
		var op irOp
		switch n.op {
		case opAdd:
			op = irAdd
		case opSub:
			op = irSub
		case opMul:
			op = irMul
		case opDiv:
			op = irDiv
		default:
			// pow, min, max
			return 0, ErrUnsupportedOp
		}
		a, err := c.lower(n.left)
		if err != nil {
			return 0, err
		}
		b, err := c.lower(n.right)
		if err != nil {
			return 0, err
		}
		r := c.alloc()
		c.code = append(c.code, instr{op: op, dst: r, a: a, b: b})
		return r, nil
	}
	return 0, ErrUnsupportedOp
}

func (f *irFunction) Name() string        { return f.prog.Name }
func (f *irFunction) Backend() Backend    { return BackendIR }
func (f *irFunction) StateDim() int       { return f.prog.NumState }
func (f *irFunction) InputDim() int       { return f.prog.NumInput }
func (f *irFunction) OutLen() int         { return f.prog.outLen() }
func (f *irFunction) Sparsity() *Sparsity { return f.prog.Sp }

func (f *irFunction) Eval(a Args, out []float64) error {
	if err := f.prog.checkArgs(a, out); err != nil {
		return err
	}
	rp := f.scratch.Get().(*[]float64)
	regs := *rp
	for _, in := range f.code {
		switch in.op {
		case irConst:
			regs[in.dst] = in.imm
		case irLoadT:
			regs[in.dst] = a.T
		case irLoadY:
			regs[in.dst] = a.Y[in.a]
		case irLoadP:
			regs[in.dst] = a.P[in.a]
		case irLoadV:
			regs[in.dst] = a.V[in.a]
		case irLoadCJ:
			regs[in.dst] = a.CJ
		case irAdd:
			regs[in.dst] = regs[in.a] + regs[in.b]
		case irSub:
			regs[in.dst] = regs[in.a] - regs[in.b]
		case irMul:
			regs[in.dst] = regs[in.a] * regs[in.b]
		case irDiv:
			regs[in.dst] = regs[in.a] / regs[in.b]
		case irNeg:
			regs[in.dst] = -regs[in.a]
		case irSqrt:
			regs[in.dst] = math.Sqrt(regs[in.a])
		case irExp:
			regs[in.dst] = math.Exp(regs[in.a])
		case irLog:
			regs[in.dst] = math.Log(regs[in.a])
		case irSin:
			regs[in.dst] = math.Sin(regs[in.a])
		case irCos:
			regs[in.dst] = math.Cos(regs[in.a])
		case irTanh:
			regs[in.dst] = math.Tanh(regs[in.a])
		case irAbs:
			regs[in.dst] = math.Abs(regs[in.a])
		case irStore:
			out[in.dst] = regs[in.a]
		}
	}
	f.scratch.Put(rp)
	return nil
}
