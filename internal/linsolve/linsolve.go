// Package linsolve provides the linear solvers used by the Newton
// corrector: dense LU, banded LU, a sparse-direct LU over a fixed
// compressed-sparse-column pattern, and a matrix-free Krylov variant.
//
// All variants separate the one-time structural setup (Init) from the
// per-Newton-iteration numeric refresh (Factorize) so the structural work
// is paid once per problem, matching the symbolic/numeric split of a
// sparse direct factorization.
package linsolve

import (
	"errors"

	"github.com/san-kum/daekit/internal/expr"
)

var (
	// ErrSingular indicates a numerically singular system matrix.
	ErrSingular = errors.New("linsolve: matrix is singular")

	// ErrNotFactorized indicates Solve was called before Factorize.
	ErrNotFactorized = errors.New("linsolve: matrix not factorized")

	// ErrShape indicates mismatched dimensions.
	ErrShape = errors.New("linsolve: dimension mismatch")

	// ErrNoConvergence indicates the iterative solver exhausted its
	// iteration budget.
	ErrNoConvergence = errors.New("linsolve: iterative solver did not converge")
)

// Solver factorizes and solves the Newton system. Factorize receives the
// Jacobian values aligned to the sparsity pattern passed to Init; each
// variant scatters them into its own storage.
type Solver interface {
	Init(n int, sp *expr.Sparsity) error
	Factorize(vals []float64) error
	Solve(b []float64) error
}
