package solver

import (
	"fmt"

	"github.com/san-kum/daekit/internal/expr"
)

// Problem is one validated system shape: dimensions, tolerances and the
// expression functions shared read-only by every solve. Construct it
// with NewProblem.
//
// The residual function computes F(t, y, p); the full DAE residual
// F(t, y, p) - M*yp is assembled by the solver using the mass action.
// The Jacobian function computes dF/dy - cj*M fused over its fixed
// sparsity pattern.
type Problem struct {
	NumStates int // n
	NumInputs int // k
	NumEvents int // m
	NumSens   int // p

	RTol float64
	// ATol is scalar (length 1, broadcast) or per-state (length n).
	ATol []float64
	// ID flags each state: 1 differential, 0 algebraic.
	ID []float64

	Residual   expr.Function // out: n
	Jacobian   expr.Function // nz over fixed n x n pattern, may use cj
	JacAction  expr.Function // out: n, (dF/dy)*v
	MassAction expr.Function // out: n, M*v
	SensRes    expr.Function // out: n*p column-major, dF/dp
	Events     expr.Function // out: m

	Outputs     []expr.Function // each dense, arbitrary OutLen
	OutputsDy   []expr.Function // d(output)/dy, out: OutLen*n row-major
	OutputsDp   []expr.Function // d(output)/dp, out: OutLen*p row-major
	OutputNames []string
}

// NewProblem validates p and returns a normalized copy with ATol
// expanded to per-state length.
func NewProblem(p Problem) (*Problem, error) {
	n := p.NumStates
	if n <= 0 {
		return nil, fmt.Errorf("%w: NumStates = %d", ErrProblem, n)
	}
	if p.NumInputs < 0 || p.NumEvents < 0 || p.NumSens < 0 {
		return nil, fmt.Errorf("%w: negative dimension", ErrProblem)
	}
	if p.RTol <= 0 {
		return nil, fmt.Errorf("%w: rtol = %g", ErrProblem, p.RTol)
	}
	switch len(p.ATol) {
	case 1:
		atol := make([]float64, n)
		for i := range atol {
			atol[i] = p.ATol[0]
		}
		p.ATol = atol
	case n:
		p.ATol = append([]float64(nil), p.ATol...)
	default:
		return nil, fmt.Errorf("%w: atol length %d, want 1 or %d", ErrProblem, len(p.ATol), n)
	}
	for i, a := range p.ATol {
		if a <= 0 {
			return nil, fmt.Errorf("%w: atol[%d] = %g", ErrProblem, i, a)
		}
	}
	if len(p.ID) != n {
		return nil, fmt.Errorf("%w: id length %d, want %d", ErrProblem, len(p.ID), n)
	}
	for i, id := range p.ID {
		if id != 0 && id != 1 {
			return nil, fmt.Errorf("%w: id[%d] = %g, want 0 or 1", ErrProblem, i, id)
		}
	}

	if err := requireFn(p.Residual, "residual", n); err != nil {
		return nil, err
	}
	if p.Jacobian == nil {
		return nil, fmt.Errorf("%w: jacobian function missing", ErrProblem)
	}
	sp := p.Jacobian.Sparsity()
	if sp == nil {
		return nil, fmt.Errorf("%w: jacobian function has no sparsity pattern", ErrProblem)
	}
	if sp.N != n {
		return nil, fmt.Errorf("%w: jacobian pattern is %dx%d, system is %d", ErrProblem, sp.N, sp.N, n)
	}
	if err := requireFn(p.JacAction, "jacobian action", n); err != nil {
		return nil, err
	}
	if err := requireFn(p.MassAction, "mass action", n); err != nil {
		return nil, err
	}
	if p.NumSens > 0 {
		if p.SensRes == nil {
			return nil, fmt.Errorf("%w: sensitivity residual missing with p = %d", ErrProblem, p.NumSens)
		}
		if got := p.SensRes.OutLen(); got != n*p.NumSens {
			return nil, fmt.Errorf("%w: sensitivity residual outputs %d, want %d", ErrProblem, got, n*p.NumSens)
		}
	}
	if p.NumEvents > 0 {
		if p.Events == nil {
			return nil, fmt.Errorf("%w: event function missing with m = %d", ErrProblem, p.NumEvents)
		}
		if got := p.Events.OutLen(); got != p.NumEvents {
			return nil, fmt.Errorf("%w: event function outputs %d, want %d", ErrProblem, got, p.NumEvents)
		}
	}

	for i, f := range p.Outputs {
		if f == nil || f.OutLen() < 1 {
			return nil, fmt.Errorf("%w: output %d invalid", ErrProblem, i)
		}
	}
	if len(p.Outputs) > 0 && p.NumSens > 0 {
		if len(p.OutputsDy) != len(p.Outputs) || len(p.OutputsDp) != len(p.Outputs) {
			return nil, fmt.Errorf("%w: outputs with sensitivities need matching d/dy and d/dp functions", ErrProblem)
		}
		for i := range p.Outputs {
			if got, want := p.OutputsDy[i].OutLen(), p.Outputs[i].OutLen()*n; got != want {
				return nil, fmt.Errorf("%w: output %d d/dy outputs %d, want %d", ErrProblem, i, got, want)
			}
			if got, want := p.OutputsDp[i].OutLen(), p.Outputs[i].OutLen()*p.NumSens; got != want {
				return nil, fmt.Errorf("%w: output %d d/dp outputs %d, want %d", ErrProblem, i, got, want)
			}
		}
	}
	if len(p.OutputNames) != 0 && len(p.OutputNames) != len(p.Outputs) {
		return nil, fmt.Errorf("%w: %d output names for %d outputs", ErrProblem, len(p.OutputNames), len(p.Outputs))
	}

	p.ID = append([]float64(nil), p.ID...)
	return &p, nil
}

func requireFn(f expr.Function, what string, wantOut int) error {
	if f == nil {
		return fmt.Errorf("%w: %s function missing", ErrProblem, what)
	}
	if got := f.OutLen(); got != wantOut {
		return fmt.Errorf("%w: %s outputs %d, want %d", ErrProblem, what, got, wantOut)
	}
	return nil
}

// OutputDim is the total width of one projected output row, zero when no
// output functions are configured.
func (p *Problem) OutputDim() int {
	total := 0
	for _, f := range p.Outputs {
		total += f.OutLen()
	}
	return total
}

// StateRowLen is the expected length of one initial-state row:
// the state vector followed by one sensitivity block per parameter.
func (p *Problem) StateRowLen() int {
	return p.NumStates * (1 + p.NumSens)
}
