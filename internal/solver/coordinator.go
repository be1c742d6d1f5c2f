package solver

import (
	"fmt"

	"github.com/san-kum/daekit/internal/par"
)

// SolverGroup fans a batch of parameter sets over a bounded pool of
// independent group solvers. The Problem and Options are shared
// read-only; every group gets its own integrator and linear solver.
type SolverGroup struct {
	pb   *Problem
	opts *Options
}

func New(pb *Problem, opts *Options) (*SolverGroup, error) {
	if pb == nil || opts == nil {
		return nil, fmt.Errorf("%w: nil problem or options", ErrUsage)
	}
	if opts.LinearSolver == LinSolMatrixFree && opts.Jacobian == JacMatrixFree && pb.JacAction == nil {
		return nil, fmt.Errorf("%w: matrix-free jacobian needs a jacobian action function", ErrProblem)
	}
	return &SolverGroup{pb: pb, opts: opts}, nil
}

// Solve integrates every batch row over tEval, sampling at tInterp when
// non-empty. The returned slice preserves input order; per-group
// numerical failures are flags on the corresponding Solution, never an
// error for the whole batch. An error is returned only for malformed
// arguments, before any integration starts.
func (sg *SolverGroup) Solve(tEval, tInterp []float64, y0, yp0, inputs [][]float64) ([]Solution, error) {
	if err := sg.validateArgs(tEval, tInterp, y0, yp0, inputs); err != nil {
		return nil, err
	}

	groups := len(y0)
	sols := make([]Solution, groups)
	par.ForEach(sg.opts.NumSolvers, groups, func(i int) {
		var in []float64
		if len(inputs) > 0 {
			in = inputs[i]
		}
		gs, err := newGroupSolver(sg.pb, sg.opts, in)
		if err != nil {
			sols[i] = Solution{Flag: FlagSetupFail}
			return
		}
		sols[i] = gs.Solve(tEval, tInterp, y0[i], yp0[i])
	})
	return sols, nil
}

func (sg *SolverGroup) validateArgs(tEval, tInterp []float64, y0, yp0, inputs [][]float64) error {
	if len(tEval) < 2 {
		return fmt.Errorf("%w: t_eval needs at least 2 entries, got %d", ErrUsage, len(tEval))
	}
	for i := 1; i < len(tEval); i++ {
		if tEval[i] < tEval[i-1] {
			return fmt.Errorf("%w: t_eval decreases at index %d", ErrUsage, i)
		}
	}
	t0, tEnd := tEval[0], tEval[len(tEval)-1]
	for i, t := range tInterp {
		if i > 0 && t < tInterp[i-1] {
			return fmt.Errorf("%w: t_interp decreases at index %d", ErrUsage, i)
		}
		if t < t0 || t > tEnd {
			return fmt.Errorf("%w: t_interp[%d] = %g outside [%g, %g]", ErrUsage, i, t, t0, tEnd)
		}
	}

	groups := len(y0)
	if groups == 0 {
		return fmt.Errorf("%w: empty batch", ErrUsage)
	}
	if len(yp0) != groups {
		return fmt.Errorf("%w: %d yp0 rows for %d y0 rows", ErrUsage, len(yp0), groups)
	}
	if len(inputs) != groups && !(sg.pb.NumInputs == 0 && len(inputs) == 0) {
		return fmt.Errorf("%w: %d input rows for %d groups", ErrUsage, len(inputs), groups)
	}
	rowLen := sg.pb.StateRowLen()
	for i := 0; i < groups; i++ {
		if len(y0[i]) != rowLen {
			return fmt.Errorf("%w: y0 row %d has length %d, want %d", ErrUsage, i, len(y0[i]), rowLen)
		}
		if len(yp0[i]) != rowLen {
			return fmt.Errorf("%w: yp0 row %d has length %d, want %d", ErrUsage, i, len(yp0[i]), rowLen)
		}
		if len(inputs) > 0 && len(inputs[i]) != sg.pb.NumInputs {
			return fmt.Errorf("%w: input row %d has length %d, want %d", ErrUsage, i, len(inputs[i]), sg.pb.NumInputs)
		}
	}
	return nil
}
