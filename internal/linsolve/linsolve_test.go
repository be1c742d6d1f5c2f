package linsolve

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/daekit/internal/expr"
)

// tridiagPattern builds the CSC pattern of an n x n tridiagonal matrix.
func tridiagPattern(n int) *expr.Sparsity {
	sp := &expr.Sparsity{N: n}
	sp.ColPtr = make([]int, n+1)
	for j := 0; j < n; j++ {
		sp.ColPtr[j] = len(sp.RowVal)
		for i := j - 1; i <= j+1; i++ {
			if i >= 0 && i < n {
				sp.RowVal = append(sp.RowVal, i)
			}
		}
	}
	sp.ColPtr[n] = len(sp.RowVal)
	sp.NNZ = len(sp.RowVal)
	return sp
}

func tridiagValues(sp *expr.Sparsity, rng *rand.Rand) []float64 {
	vals := make([]float64, sp.NNZ)
	for j := 0; j < sp.N; j++ {
		for k := sp.ColPtr[j]; k < sp.ColPtr[j+1]; k++ {
			if sp.RowVal[k] == j {
				vals[k] = 4 + rng.Float64()
			} else {
				vals[k] = -1 + 0.5*rng.Float64()
			}
		}
	}
	return vals
}

func residualNorm(sp *expr.Sparsity, vals, x, b []float64) float64 {
	n := sp.N
	r := make([]float64, n)
	copy(r, b)
	for j := 0; j < n; j++ {
		for k := sp.ColPtr[j]; k < sp.ColPtr[j+1]; k++ {
			r[sp.RowVal[k]] -= vals[k] * x[j]
		}
	}
	var s float64
	for _, v := range r {
		s += v * v
	}
	return math.Sqrt(s)
}

func TestDirectSolvers_AgreeWithDense(t *testing.T) {
	const n = 40
	rng := rand.New(rand.NewSource(1))
	sp := tridiagPattern(n)
	vals := tridiagValues(sp, rng)

	b := make([]float64, n)
	for i := range b {
		b[i] = rng.NormFloat64()
	}

	solvers := map[string]Solver{
		"dense":  NewDense(),
		"banded": NewBand(0, 0),
		"sparse": NewSparse(),
	}
	want := make([]float64, n)
	copy(want, b)
	ref := NewDense()
	if err := ref.Init(n, sp); err != nil {
		t.Fatalf("ref Init: %v", err)
	}
	if err := ref.Factorize(vals); err != nil {
		t.Fatalf("ref Factorize: %v", err)
	}
	if err := ref.Solve(want); err != nil {
		t.Fatalf("ref Solve: %v", err)
	}

	for name, s := range solvers {
		t.Run(name, func(t *testing.T) {
			got := make([]float64, n)
			copy(got, b)
			if err := s.Init(n, sp); err != nil {
				t.Fatalf("Init: %v", err)
			}
			if err := s.Factorize(vals); err != nil {
				t.Fatalf("Factorize: %v", err)
			}
			if err := s.Solve(got); err != nil {
				t.Fatalf("Solve: %v", err)
			}
			for i := range got {
				if math.Abs(got[i]-want[i]) > 1e-10 {
					t.Fatalf("x[%d] = %v, want %v", i, got[i], want[i])
				}
			}
			if rn := residualNorm(sp, vals, got, b); rn > 1e-10 {
				t.Errorf("residual norm %v", rn)
			}
		})
	}
}

func TestSparse_Refactorize(t *testing.T) {
	const n = 25
	rng := rand.New(rand.NewSource(7))
	sp := tridiagPattern(n)
	s := NewSparse()
	if err := s.Init(n, sp); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// the symbolic structures must survive repeated numeric refreshes
	for trial := 0; trial < 5; trial++ {
		vals := tridiagValues(sp, rng)
		b := make([]float64, n)
		for i := range b {
			b[i] = rng.NormFloat64()
		}
		x := make([]float64, n)
		copy(x, b)
		if err := s.Factorize(vals); err != nil {
			t.Fatalf("trial %d Factorize: %v", trial, err)
		}
		if err := s.Solve(x); err != nil {
			t.Fatalf("trial %d Solve: %v", trial, err)
		}
		if rn := residualNorm(sp, vals, x, b); rn > 1e-9 {
			t.Errorf("trial %d: residual norm %v", trial, rn)
		}
	}
}

func TestSingularDetected(t *testing.T) {
	sp := &expr.Sparsity{N: 2, NNZ: 2, ColPtr: []int{0, 1, 2}, RowVal: []int{0, 1}}
	vals := []float64{1, 0} // zero pivot in column 1

	for name, s := range map[string]Solver{"banded": NewBand(0, 0), "sparse": NewSparse()} {
		if err := s.Init(2, sp); err != nil {
			t.Fatalf("%s Init: %v", name, err)
		}
		if err := s.Factorize(vals); !errors.Is(err, ErrSingular) {
			t.Errorf("%s Factorize error = %v, want ErrSingular", name, err)
		}
	}
}

func TestSolveBeforeFactorize(t *testing.T) {
	s := NewSparse()
	if err := s.Init(2, tridiagPattern(2)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Solve(make([]float64, 2)); !errors.Is(err, ErrNotFactorized) {
		t.Errorf("Solve error = %v, want ErrNotFactorized", err)
	}
}

func TestMatrixFree_SolvesOperatorSystem(t *testing.T) {
	const n = 30
	rng := rand.New(rand.NewSource(3))
	sp := tridiagPattern(n)
	vals := tridiagValues(sp, rng)

	apply := func(v, out []float64) error {
		for i := range out {
			out[i] = 0
		}
		for j := 0; j < n; j++ {
			for k := sp.ColPtr[j]; k < sp.ColPtr[j+1]; k++ {
				out[sp.RowVal[k]] += vals[k] * v[j]
			}
		}
		return nil
	}

	m := NewMatrixFree(200, 1e-12, nil)
	if err := m.Init(n, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.SetOperator(apply)

	b := make([]float64, n)
	for i := range b {
		b[i] = rng.NormFloat64()
	}
	x := make([]float64, n)
	copy(x, b)
	if err := m.Factorize(nil); err != nil {
		t.Fatalf("Factorize: %v", err)
	}
	if err := m.Solve(x); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if rn := residualNorm(sp, vals, x, b); rn > 1e-8 {
		t.Errorf("residual norm %v", rn)
	}
}

func TestMatrixFree_BandedPreconditioner(t *testing.T) {
	const n = 30
	rng := rand.New(rand.NewSource(11))
	sp := tridiagPattern(n)
	vals := tridiagValues(sp, rng)

	apply := func(v, out []float64) error {
		for i := range out {
			out[i] = 0
		}
		for j := 0; j < n; j++ {
			for k := sp.ColPtr[j]; k < sp.ColPtr[j+1]; k++ {
				out[sp.RowVal[k]] += vals[k] * v[j]
			}
		}
		return nil
	}

	m := NewMatrixFree(50, 1e-12, NewBand(1, 1))
	if err := m.Init(n, sp); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.SetOperator(apply)
	if err := m.Factorize(vals); err != nil {
		t.Fatalf("Factorize: %v", err)
	}

	b := make([]float64, n)
	for i := range b {
		b[i] = rng.NormFloat64()
	}
	x := make([]float64, n)
	copy(x, b)
	if err := m.Solve(x); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if rn := residualNorm(sp, vals, x, b); rn > 1e-8 {
		t.Errorf("residual norm %v", rn)
	}
}
