package solver

import (
	"errors"

	"github.com/san-kum/daekit/internal/expr"
	"github.com/san-kum/daekit/internal/ida"
)

// State is the lifecycle position of one group solve.
type State int

const (
	StateUninitialized State = iota
	StateConsistentIC
	StateStepping
	StateSucceeded
	StateEventStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConsistentIC:
		return "consistent-ic"
	case StateStepping:
		return "stepping"
	case StateSucceeded:
		return "succeeded"
	case StateEventStopped:
		return "event-stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// GroupSolver runs one parameter set of a batch through the integrator,
// driving the one-step loop across the requested output boundaries.
type GroupSolver struct {
	pb    *Problem
	opts  *Options
	sys   *system
	ig    *ida.Integrator
	state State

	y, yp    []float64
	yS, ypS  [][]float64
	outBuf   []float64
	dyBuf    []float64
	dpBuf    []float64
	lastY    []float64
	saveOuts bool
}

func newGroupSolver(pb *Problem, opts *Options, inputs []float64) (*GroupSolver, error) {
	sys, err := newSystem(pb, opts, inputs)
	if err != nil {
		return nil, err
	}
	cfg := ida.Config{
		NumStates: pb.NumStates,
		Residual:  sys.residual,
		JacSetup:  sys.jacSetup,
		JacSolve:  sys.jacSolve,

		RelTol:      pb.RTol,
		AbsTol:      pb.ATol,
		ID:          pb.ID,
		SuppressAlg: opts.SuppressAlgebraicError,

		MaxOrder:        opts.MaxOrderBDF,
		MaxSteps:        opts.MaxNumSteps,
		InitStep:        opts.DtInit,
		MinStep:         opts.DtMin,
		MaxStep:         opts.DtMax,
		MaxNonlinIters:  opts.MaxNonlinearIterations,
		MaxConvFails:    opts.MaxConvergenceFailures,
		MaxErrTestFails: opts.MaxErrorTestFailures,
		NonlinConvCoef:  opts.NonlinConvCoef,

		CalcICConvCoef:      opts.NonlinConvCoefIC,
		CalcICMaxIters:      opts.MaxNumIterationsIC,
		CalcICMaxBacktracks: opts.MaxLinesearchBacktrIC,
		CalcICNoLineSearch:  opts.LinesearchOffIC,

		NoProgressWindow:    opts.NoProgressWindow,
		NoProgressThreshold: opts.NoProgressThreshold,
	}
	if pb.NumEvents > 0 {
		cfg.NumRoots = pb.NumEvents
		cfg.Roots = sys.roots
	}
	if pb.NumSens > 0 {
		cfg.NumSens = pb.NumSens
		cfg.SensResidual = sys.sensResidual
	}
	ig, err := ida.New(cfg)
	if err != nil {
		return nil, err
	}

	n := pb.NumStates
	g := &GroupSolver{
		pb:       pb,
		opts:     opts,
		sys:      sys,
		ig:       ig,
		y:        make([]float64, n),
		yp:       make([]float64, n),
		lastY:    make([]float64, n),
		saveOuts: len(pb.Outputs) > 0,
	}
	if pb.NumSens > 0 {
		g.yS = make([][]float64, pb.NumSens)
		g.ypS = make([][]float64, pb.NumSens)
		for i := range g.yS {
			g.yS[i] = make([]float64, n)
			g.ypS[i] = make([]float64, n)
		}
	}
	if g.saveOuts {
		g.outBuf = make([]float64, pb.OutputDim())
		if len(pb.OutputsDy) > 0 {
			g.dyBuf = make([]float64, maxOutLen(pb.OutputsDy))
			g.dpBuf = make([]float64, maxOutLen(pb.OutputsDp))
		}
	}
	return g, nil
}

func maxOutLen(fns []expr.Function) int {
	m := 0
	for _, f := range fns {
		if f.OutLen() > m {
			m = f.OutLen()
		}
	}
	return m
}

// State reports the current lifecycle state.
func (g *GroupSolver) State() State { return g.state }

func flagFor(err error) Flag {
	switch {
	case errors.Is(err, ida.ErrTooMuchWork):
		return FlagMaxSteps
	case errors.Is(err, ida.ErrErrTestFail):
		return FlagErrTestFail
	case errors.Is(err, ida.ErrConvFail):
		return FlagConvFail
	case errors.Is(err, ida.ErrResidual):
		return FlagResidualFail
	case errors.Is(err, ida.ErrLinearSetup):
		return FlagLinSetupFail
	case errors.Is(err, ida.ErrICFail):
		return FlagICFail
	case errors.Is(err, ida.ErrStepTooSmall):
		return FlagStepTooSmall
	case errors.Is(err, ida.ErrNoProgress):
		return FlagNoProgress
	default:
		return FlagSetupFail
	}
}

// Solve integrates one batch row across tEval. The start time and every
// tEval boundary are always recorded; between them samples land at
// tInterp when provided and at every internal step otherwise. It never
// returns a Go error; failures are terminal flags on the Solution.
func (g *GroupSolver) Solve(tEval, tInterp []float64, y0row, yp0row []float64) Solution {
	n := g.pb.NumStates
	np := g.pb.NumSens

	y0 := y0row[:n]
	yp0 := yp0row[:n]
	var yS0, ypS0 [][]float64
	if np > 0 {
		yS0 = make([][]float64, np)
		ypS0 = make([][]float64, np)
		for i := 0; i < np; i++ {
			yS0[i] = y0row[n*(1+i) : n*(2+i)]
			ypS0[i] = yp0row[n*(1+i) : n*(2+i)]
		}
	}

	sol := Solution{Flag: FlagStopBoundary}
	fail := func(err error) Solution {
		g.state = StateFailed
		sol.Flag = flagFor(err)
		g.finalize(&sol)
		return sol
	}

	if err := g.ig.Init(tEval[0], y0, yp0, yS0, ypS0); err != nil {
		return fail(err)
	}
	g.state = StateConsistentIC
	if g.opts.CalcIC {
		if err := g.ig.CalcIC(tEval[0], tEval[1], g.opts.InitAllYIC); err != nil {
			return fail(err)
		}
	}

	adaptive := len(tInterp) == 0
	interpIdx := 0
	// the consistent-IC state at t0 is always the first sample; query
	// points sitting on t0 collapse into it
	g.sample(&sol, tEval[0], true)
	for interpIdx < len(tInterp) && tInterp[interpIdx] <= tEval[0] {
		interpIdx++
	}

	g.state = StateStepping
	for bi := 1; bi < len(tEval); bi++ {
		g.ig.SetStopTime(tEval[bi])
	stepping:
		for {
			st, err := g.ig.Step()
			if err != nil {
				return fail(err)
			}
			t := g.ig.Time()
			for interpIdx < len(tInterp) && tInterp[interpIdx] <= t {
				g.sample(&sol, tInterp[interpIdx], false)
				interpIdx++
			}
			switch st {
			case ida.StatusRoot:
				// append the crossing once, then stop
				if len(sol.T) == 0 || sol.T[len(sol.T)-1] != t {
					g.sample(&sol, t, true)
				}
				g.captureEvent(&sol, t)
				g.state = StateEventStopped
				sol.Flag = FlagRoot
				g.finalize(&sol)
				return sol
			case ida.StatusTstop:
				// boundaries are recorded in both modes; a query point
				// equal to the boundary was already consumed above
				if len(sol.T) == 0 || sol.T[len(sol.T)-1] != t {
					g.sample(&sol, t, true)
				}
				break stepping
			default:
				if adaptive {
					g.sample(&sol, t, true)
				}
			}
		}
		if bi < len(tEval)-1 {
			// interior boundary: restart the integrator so a
			// discontinuity in the inputs at the boundary is handled
			g.ig.State(g.y)
			g.ig.Deriv(g.yp)
			if err := g.ig.Reinit(tEval[bi], g.y, g.yp); err != nil {
				return fail(err)
			}
			if g.opts.CalcIC {
				if err := g.ig.CalcIC(tEval[bi], tEval[bi+1], g.opts.InitAllYIC); err != nil {
					return fail(err)
				}
			}
		}
	}

	g.state = StateSucceeded
	g.finalize(&sol)
	return sol
}

// sample records one output row at time t, exact from the current state
// or through dense output inside the last step.
func (g *GroupSolver) sample(sol *Solution, t float64, exact bool) {
	if exact {
		g.ig.State(g.y)
		g.ig.Deriv(g.yp)
		if g.pb.NumSens > 0 {
			g.ig.Sens(g.yS)
			g.ig.SensDeriv(g.ypS)
		}
	} else {
		g.ig.Interpolate(t, g.y, g.yp)
		if g.pb.NumSens > 0 {
			g.ig.InterpolateSens(t, g.yS, g.ypS)
		}
	}
	copy(g.lastY, g.y)

	sol.T = append(sol.T, t)
	if g.saveOuts {
		g.appendOutputs(sol, t)
		return
	}
	sol.Y = append(sol.Y, clone(g.y))
	if g.opts.HermiteInterpolation {
		sol.YP = append(sol.YP, clone(g.yp))
	}
	if g.pb.NumSens > 0 {
		sol.YS = append(sol.YS, cloneRows(g.yS))
		if g.opts.HermiteInterpolation {
			sol.YPS = append(sol.YPS, cloneRows(g.ypS))
		}
	}
}

// appendOutputs projects the state through the output functions and, if
// sensitivities are carried, chains them through d/dy and d/dp.
func (g *GroupSolver) appendOutputs(sol *Solution, t float64) {
	args := expr.Args{T: t, Y: g.y, P: g.sys.inputs}
	row := make([]float64, 0, g.pb.OutputDim())
	for _, f := range g.pb.Outputs {
		out := g.outBuf[:f.OutLen()]
		if err := f.Eval(args, out); err != nil {
			// projection failures leave zeros in the row
			for i := range out {
				out[i] = 0
			}
		}
		row = append(row, out...)
	}
	sol.Y = append(sol.Y, row)

	if g.pb.NumSens == 0 || len(g.pb.OutputsDy) == 0 {
		return
	}
	n := g.pb.NumStates
	np := g.pb.NumSens
	sens := make([][]float64, np)
	for p := range sens {
		sens[p] = make([]float64, 0, g.pb.OutputDim())
	}
	for fi, f := range g.pb.Outputs {
		w := f.OutLen()
		dy := g.dyBuf[:w*n]
		dp := g.dpBuf[:w*np]
		if err := g.pb.OutputsDy[fi].Eval(args, dy); err != nil {
			continue
		}
		if err := g.pb.OutputsDp[fi].Eval(args, dp); err != nil {
			continue
		}
		for p := 0; p < np; p++ {
			for q := 0; q < w; q++ {
				v := dp[q*np+p]
				for s := 0; s < n; s++ {
					v += dy[q*n+s] * g.yS[p][s]
				}
				sens[p] = append(sens[p], v)
			}
		}
	}
	sol.YS = append(sol.YS, sens)
}

func (g *GroupSolver) captureEvent(sol *Solution, t float64) {
	sol.HasEvent = true
	sol.TEvent = t
	sol.YEvent = clone(g.y)
}

// finalize stamps the terminal observables and statistics.
func (g *GroupSolver) finalize(sol *Solution) {
	sol.Stats = g.ig.Stats()
	if !g.saveOuts || len(sol.T) == 0 {
		return
	}
	args := expr.Args{T: sol.T[len(sol.T)-1], Y: g.lastY, P: g.sys.inputs}
	term := make([]float64, 0, g.pb.OutputDim())
	for _, f := range g.pb.Outputs {
		out := make([]float64, f.OutLen())
		if err := f.Eval(args, out); err == nil {
			term = append(term, out...)
		} else {
			term = append(term, make([]float64, f.OutLen())...)
		}
	}
	sol.YTerm = term
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

func cloneRows(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = clone(m[i])
	}
	return out
}
