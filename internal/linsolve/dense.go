package linsolve

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/daekit/internal/expr"
)

// Dense scatters the patterned values into a dense matrix and uses an LU
// factorization with partial pivoting.
type Dense struct {
	n          int
	sp         *expr.Sparsity
	a          *mat.Dense
	lu         mat.LU
	factorized bool
}

func NewDense() *Dense { return &Dense{} }

func (d *Dense) Init(n int, sp *expr.Sparsity) error {
	if n <= 0 {
		return fmt.Errorf("%w: n = %d", ErrShape, n)
	}
	if sp != nil && sp.N != n {
		return fmt.Errorf("%w: sparsity is %dx%d, system is %d", ErrShape, sp.N, sp.N, n)
	}
	d.n = n
	d.sp = sp
	d.a = mat.NewDense(n, n, nil)
	d.factorized = false
	return nil
}

func (d *Dense) Factorize(vals []float64) error {
	if d.a == nil {
		return ErrNotFactorized
	}
	d.a.Zero()
	if d.sp != nil {
		if len(vals) != d.sp.NNZ {
			return fmt.Errorf("%w: %d values for nnz %d", ErrShape, len(vals), d.sp.NNZ)
		}
		for j := 0; j < d.n; j++ {
			for k := d.sp.ColPtr[j]; k < d.sp.ColPtr[j+1]; k++ {
				d.a.Set(d.sp.RowVal[k], j, vals[k])
			}
		}
	} else {
		if len(vals) != d.n*d.n {
			return fmt.Errorf("%w: %d values for dense %dx%d", ErrShape, len(vals), d.n, d.n)
		}
		// column-major on the wire, same as the sparse pattern
		for j := 0; j < d.n; j++ {
			for i := 0; i < d.n; i++ {
				d.a.Set(i, j, vals[j*d.n+i])
			}
		}
	}
	d.lu.Factorize(d.a)
	d.factorized = true
	return nil
}

func (d *Dense) Solve(b []float64) error {
	if !d.factorized {
		return ErrNotFactorized
	}
	if len(b) != d.n {
		return fmt.Errorf("%w: rhs length %d, want %d", ErrShape, len(b), d.n)
	}
	v := mat.NewVecDense(d.n, b)
	if err := d.lu.SolveVecTo(v, false, v); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return ErrSingular
		}
	}
	return nil
}
