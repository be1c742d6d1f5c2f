package main

import (
	"fmt"
	"sort"

	"github.com/san-kum/daekit/internal/expr"
	"github.com/san-kum/daekit/internal/solver"
)

// demo is one built-in problem: its expression sources, default batch
// and initial conditions.
type demo struct {
	desc       string
	stateNames []string
	inputs     [][]float64
	y0, yp0    []float64
	build      func() (*solver.Problem, error)
}

func fn(src string) expr.Function {
	f, err := expr.New(src, expr.BackendGraph)
	if err != nil {
		panic(fmt.Sprintf("bad builtin expression: %v", err))
	}
	return f
}

var demos = map[string]demo{
	"decay": {
		desc:       "exponential decay dy/dt = -p0*y",
		stateNames: []string{"y"},
		inputs:     [][]float64{{0.3}, {1.0}, {2.5}},
		y0:         []float64{1},
		yp0:        []float64{0},
		build: func() (*solver.Problem, error) {
			return solver.NewProblem(solver.Problem{
				NumStates: 1,
				NumInputs: 1,
				RTol:      1e-6,
				ATol:      []float64{1e-9},
				ID:        []float64{1},
				Residual:  fn("fn rhs(n=1, k=1)\nout[0] = -p0 * y0"),
				Jacobian: fn(`fn jac(n=1, k=1) nnz=1
colptr 0 1
rowval 0
nz[0] = -p0 - cj`),
				JacAction:  fn("fn jacv(n=1, k=1)\nout[0] = -p0 * v0"),
				MassAction: fn("fn massv(n=1, k=1)\nout[0] = v0"),
			})
		},
	},

	"decay-event": {
		desc:       "decay terminated when y crosses 0.5",
		stateNames: []string{"y"},
		inputs:     [][]float64{{1.0}},
		y0:         []float64{1},
		yp0:        []float64{0},
		build: func() (*solver.Problem, error) {
			return solver.NewProblem(solver.Problem{
				NumStates: 1,
				NumInputs: 1,
				NumEvents: 1,
				RTol:      1e-6,
				ATol:      []float64{1e-9},
				ID:        []float64{1},
				Residual:  fn("fn rhs(n=1, k=1)\nout[0] = -p0 * y0"),
				Jacobian: fn(`fn jac(n=1, k=1) nnz=1
colptr 0 1
rowval 0
nz[0] = -p0 - cj`),
				JacAction:  fn("fn jacv(n=1, k=1)\nout[0] = -p0 * v0"),
				MassAction: fn("fn massv(n=1, k=1)\nout[0] = v0"),
				Events:     fn("fn ev(n=1, k=1)\nout[0] = y0 - 0.5"),
			})
		},
	},

	"robertson": {
		desc:       "Robertson chemical kinetics, semi-explicit DAE",
		stateNames: []string{"y0", "y1", "y2"},
		inputs:     [][]float64{{0.04, 1e4, 3e7}},
		y0:         []float64{1, 0, 0},
		yp0:        []float64{-0.04, 0.04, 0},
		build: func() (*solver.Problem, error) {
			return solver.NewProblem(solver.Problem{
				NumStates: 3,
				NumInputs: 3,
				RTol:      1e-5,
				ATol:      []float64{1e-8, 1e-12, 1e-8},
				ID:        []float64{1, 1, 0},
				Residual: fn(`fn rhs(n=3, k=3)
out[0] = -p0 * y0 + p1 * y1 * y2
out[1] = p0 * y0 - p1 * y1 * y2 - p2 * y1 * y1
out[2] = y0 + y1 + y2 - 1`),
				Jacobian: fn(`fn jac(n=3, k=3) nnz=9
colptr 0 3 6 9
rowval 0 1 2 0 1 2 0 1 2
nz[0] = -p0 - cj
nz[1] = p0
nz[2] = 1
nz[3] = p1 * y2
nz[4] = -p1 * y2 - 2 * p2 * y1 - cj
nz[5] = 1
nz[6] = p1 * y1
nz[7] = -p1 * y1
nz[8] = 1`),
				JacAction: fn(`fn jacv(n=3, k=3)
out[0] = -p0 * v0 + p1 * y2 * v1 + p1 * y1 * v2
out[1] = p0 * v0 - p1 * y2 * v1 - 2 * p2 * y1 * v1 - p1 * y1 * v2
out[2] = v0 + v1 + v2`),
				MassAction: fn(`fn massv(n=3, k=3)
out[0] = v0
out[1] = v1
out[2] = 0`),
			})
		},
	},
}

func demoNames() []string {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
