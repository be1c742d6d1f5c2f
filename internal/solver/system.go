package solver

import (
	"fmt"
	"math"
	"sync"

	"github.com/san-kum/daekit/internal/expr"
	"github.com/san-kum/daekit/internal/linsolve"
	"github.com/san-kum/daekit/internal/par"
)

// system binds a Problem and one input row to the callbacks the
// integrator needs: residual assembly, fused Jacobian setup/solve over
// the chosen linear solver, events and sensitivity residuals. One system
// belongs to one group solve and is not shared.
type system struct {
	pb     *Problem
	opts   *Options
	inputs []float64

	ls linsolve.Solver
	mf *linsolve.MatrixFree // non-nil for the matrix-free variant

	jacVals []float64
	massTmp []float64
	actTmp  []float64
	sensTmp []float64 // n*p column-major dF/dp

	// current linearization point for the matrix-free operator
	curT, curCJ  float64
	curY, curYP  []float64
	baseRes      []float64
	diffY, diffP []float64
}

func newSystem(pb *Problem, opts *Options, inputs []float64) (*system, error) {
	if len(inputs) != pb.NumInputs {
		return nil, fmt.Errorf("%w: %d inputs, want %d", ErrUsage, len(inputs), pb.NumInputs)
	}
	n := pb.NumStates
	s := &system{
		pb:      pb,
		opts:    opts,
		inputs:  inputs,
		jacVals: make([]float64, pb.Jacobian.Sparsity().NNZ),
		massTmp: make([]float64, n),
		actTmp:  make([]float64, n),
		curY:    make([]float64, n),
		curYP:   make([]float64, n),
	}
	if pb.NumSens > 0 {
		s.sensTmp = make([]float64, n*pb.NumSens)
	}

	sp := pb.Jacobian.Sparsity()
	switch opts.LinearSolver {
	case LinSolDense:
		s.ls = linsolve.NewDense()
	case LinSolBanded:
		s.ls = linsolve.NewBand(0, 0)
	case LinSolSparse:
		s.ls = linsolve.NewSparse()
	case LinSolMatrixFree:
		var precon linsolve.Solver
		if opts.Preconditioner == PreconBanded {
			hb := opts.PreconHalfBandwidth
			precon = linsolve.NewBand(hb, hb)
		}
		s.mf = linsolve.NewMatrixFree(opts.LinsolMaxIterations, opts.EpsilonLinearTolerance, precon)
		s.ls = s.mf
		s.baseRes = make([]float64, n)
		s.diffY = make([]float64, n)
		s.diffP = make([]float64, n)
	default:
		return nil, fmt.Errorf("%w: linear_solver %q", ErrOptions, opts.LinearSolver)
	}
	if err := s.ls.Init(n, sp); err != nil {
		return nil, err
	}
	return s, nil
}

// residual assembles rr = F(t, y, p) - M*yp.
func (s *system) residual(t float64, y, yp, rr []float64) error {
	if err := s.pb.Residual.Eval(expr.Args{T: t, Y: y, P: s.inputs}, rr); err != nil {
		return err
	}
	if err := s.pb.MassAction.Eval(expr.Args{T: t, Y: y, P: s.inputs, V: yp}, s.massTmp); err != nil {
		return err
	}
	for i := range rr {
		rr[i] -= s.massTmp[i]
	}
	return nil
}

// jacSetup refreshes the Newton matrix dF/dy - cj*M at the given point.
func (s *system) jacSetup(t float64, y, yp []float64, cj float64) error {
	if s.mf != nil {
		return s.setupMatrixFree(t, y, yp, cj)
	}
	args := expr.Args{T: t, Y: y, P: s.inputs, CJ: cj}
	if err := s.pb.Jacobian.Eval(args, s.jacVals); err != nil {
		return err
	}
	return s.ls.Factorize(s.jacVals)
}

func (s *system) jacSolve(b []float64) error {
	return s.ls.Solve(b)
}

func (s *system) setupMatrixFree(t float64, y, yp []float64, cj float64) error {
	s.curT, s.curCJ = t, cj
	copy(s.curY, y)
	copy(s.curYP, yp)

	if s.opts.Jacobian == JacNone {
		// difference-quotient operator needs the base residual
		if err := s.residual(t, y, yp, s.baseRes); err != nil {
			return err
		}
		s.mf.SetOperator(s.dqOperator)
	} else {
		s.mf.SetOperator(s.actionOperator)
	}

	if s.opts.Preconditioner == PreconBanded && s.opts.Jacobian != JacNone {
		args := expr.Args{T: t, Y: y, P: s.inputs, CJ: cj}
		if err := s.pb.Jacobian.Eval(args, s.jacVals); err != nil {
			return err
		}
		return s.mf.Factorize(s.jacVals)
	}
	return s.mf.Factorize(nil)
}

// actionOperator applies (dF/dy - cj*M) via the action functions.
func (s *system) actionOperator(v, out []float64) error {
	args := expr.Args{T: s.curT, Y: s.curY, P: s.inputs, V: v}
	if err := s.pb.JacAction.Eval(args, out); err != nil {
		return err
	}
	if err := s.pb.MassAction.Eval(args, s.actTmp); err != nil {
		return err
	}
	for i := range out {
		out[i] -= s.curCJ * s.actTmp[i]
	}
	return nil
}

// dqOperator approximates the same product by a forward difference of
// the residual, scaled by the configured increment factor.
func (s *system) dqOperator(v, out []float64) error {
	vn := 0.0
	for _, x := range v {
		vn += x * x
	}
	vn = math.Sqrt(vn)
	if vn == 0 {
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	yn := 0.0
	for _, x := range s.curY {
		yn += x * x
	}
	sigma := s.opts.IncrementFactor * 1e-7 * math.Max(1, math.Sqrt(yn)) / vn

	for i := range s.diffY {
		s.diffY[i] = s.curY[i] + sigma*v[i]
		s.diffP[i] = s.curYP[i] + sigma*s.curCJ*v[i]
	}
	if err := s.residual(s.curT, s.diffY, s.diffP, out); err != nil {
		return err
	}
	for i := range out {
		out[i] = (out[i] - s.baseRes[i]) / sigma
	}
	return nil
}

func (s *system) roots(t float64, y, yp, g []float64) error {
	return s.pb.Events.Eval(expr.Args{T: t, Y: y, P: s.inputs}, g)
}

// sensResidual assembles, for each parameter i,
// resS[i] = dF/dp_i + (dF/dy)*yS[i] - M*ypS[i],
// fanning the independent columns over the configured thread count.
func (s *system) sensResidual(t float64, y, yp []float64, yS, ypS, resS [][]float64) error {
	if err := s.pb.SensRes.Eval(expr.Args{T: t, Y: y, P: s.inputs}, s.sensTmp); err != nil {
		return err
	}
	n := s.pb.NumStates
	var (
		mu       sync.Mutex
		firstErr error
	)
	par.ForRange(s.opts.NumThreads, s.pb.NumSens, func(lo, hi int) {
		act := make([]float64, n)
		mv := make([]float64, n)
		for p := lo; p < hi; p++ {
			args := expr.Args{T: t, Y: y, P: s.inputs, V: yS[p]}
			err := s.pb.JacAction.Eval(args, act)
			if err == nil {
				args.V = ypS[p]
				err = s.pb.MassAction.Eval(args, mv)
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			col := s.sensTmp[p*n : (p+1)*n]
			for i := 0; i < n; i++ {
				resS[p][i] = col[i] + act[i] - mv[i]
			}
		}
	})
	return firstErr
}
