package solver

import (
	"testing"

	"github.com/san-kum/daekit/internal/expr"
	"github.com/stretchr/testify/require"
)

func mustFn(t *testing.T, src string) expr.Function {
	t.Helper()
	f, err := expr.New(src, expr.BackendGraph)
	require.NoError(t, err)
	return f
}

func decayProblem(t *testing.T) Problem {
	t.Helper()
	return Problem{
		NumStates: 1,
		NumInputs: 1,
		RTol:      1e-6,
		ATol:      []float64{1e-9},
		ID:        []float64{1},
		Residual:  mustFn(t, "fn rhs(n=1, k=1)\nout[0] = -p0 * y0"),
		Jacobian: mustFn(t, `fn jac(n=1, k=1) nnz=1
colptr 0 1
rowval 0
nz[0] = -p0 - cj`),
		JacAction:  mustFn(t, "fn jacv(n=1, k=1)\nout[0] = -p0 * v0"),
		MassAction: mustFn(t, "fn massv(n=1, k=1)\nout[0] = v0"),
	}
}

func TestNewProblem_ATolBroadcast(t *testing.T) {
	def := decayProblem(t)
	def.ATol = []float64{1e-8}
	pb, err := NewProblem(def)
	require.NoError(t, err)
	require.Len(t, pb.ATol, 1)
	require.Equal(t, 1e-8, pb.ATol[0])

	three := decayProblem(t)
	three.ATol = []float64{1e-8, 1e-9}
	_, err = NewProblem(three)
	require.ErrorIs(t, err, ErrProblem)
}

func TestNewProblem_Rejects(t *testing.T) {
	cases := map[string]func(*Problem){
		"zero states":      func(p *Problem) { p.NumStates = 0 },
		"zero rtol":        func(p *Problem) { p.RTol = 0 },
		"missing residual": func(p *Problem) { p.Residual = nil },
		"missing jacobian": func(p *Problem) { p.Jacobian = nil },
		"missing mass":     func(p *Problem) { p.MassAction = nil },
		"bad id value":     func(p *Problem) { p.ID = []float64{2} },
		"bad id length":    func(p *Problem) { p.ID = []float64{1, 0} },
		"negative atol":    func(p *Problem) { p.ATol = []float64{-1e-9} },
		"dense jacobian": func(p *Problem) {
			p.Jacobian = mustFn(t, "fn jac(n=1, k=1)\nout[0] = -p0")
		},
		"sens without fn": func(p *Problem) { p.NumSens = 1 },
		"events without fn": func(p *Problem) {
			p.NumEvents = 1
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			def := decayProblem(t)
			mutate(&def)
			_, err := NewProblem(def)
			require.ErrorIs(t, err, ErrProblem)
		})
	}
}

func TestProblem_RowLen(t *testing.T) {
	def := decayProblem(t)
	def.NumSens = 1
	def.SensRes = mustFn(t, "fn sens(n=1, k=1)\nout[0] = -y0")
	pb, err := NewProblem(def)
	require.NoError(t, err)
	require.Equal(t, 2, pb.StateRowLen())
	require.Equal(t, 0, pb.OutputDim())
}
