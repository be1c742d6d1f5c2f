package expr

import "math"

// graphFunction evaluates by walking the parsed expression trees.
type graphFunction struct {
	prog *Program
}

func newGraphFunction(p *Program) *graphFunction {
	return &graphFunction{prog: p}
}

func (g *graphFunction) Name() string        { return g.prog.Name }
func (g *graphFunction) Backend() Backend    { return BackendGraph }
func (g *graphFunction) StateDim() int       { return g.prog.NumState }
func (g *graphFunction) InputDim() int       { return g.prog.NumInput }
func (g *graphFunction) OutLen() int         { return g.prog.outLen() }
func (g *graphFunction) Sparsity() *Sparsity { return g.prog.Sp }

func (g *graphFunction) Eval(a Args, out []float64) error {
	if err := g.prog.checkArgs(a, out); err != nil {
		return err
	}
	for i := range g.prog.outs {
		out[i] = evalNode(&g.prog.outs[i], a)
	}
	return nil
}

func evalNode(n *node, a Args) float64 {
	switch n.kind {
	case kindConst:
		return n.val
	case kindT:
		return a.T
	case kindY:
		return a.Y[n.idx]
	case kindP:
		return a.P[n.idx]
	case kindV:
		return a.V[n.idx]
	case kindCJ:
		return a.CJ
	case kindUnary:
		x := evalNode(n.left, a)
		switch n.op {
		case opNeg:
			return -x
		case opSqrt:
			return math.Sqrt(x)
		case opExp:
			return math.Exp(x)
		case opLog:
			return math.Log(x)
		case opSin:
			return math.Sin(x)
		case opCos:
			return math.Cos(x)
		case opTanh:
			return math.Tanh(x)
		case opAbs:
			return math.Abs(x)
		}
	case kindBinary:
		x := evalNode(n.left, a)
		y := evalNode(n.right, a)
		switch n.op {
		case opAdd:
			return x + y
		case opSub:
			return x - y
		case opMul:
			return x * y
		case opDiv:
			return x / y
		case opPow:
			return math.Pow(x, y)
		case opMin:
			return math.Min(x, y)
		case opMax:
			return math.Max(x, y)
		}
	}
	return math.NaN()
}
