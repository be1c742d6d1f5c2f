package linsolve

import (
	"fmt"
	"math"

	"github.com/san-kum/daekit/internal/expr"
)

// Operator applies the system matrix to v without materializing it.
type Operator func(v, out []float64) error

// MatrixFree solves the Newton system with BiCGStab using only
// matrix-vector products. An optional inner solver acts as a left
// preconditioner; its Factorize is fed the patterned Jacobian values so a
// banded approximation can be refreshed alongside the operator.
type MatrixFree struct {
	n       int
	apply   Operator
	precon  Solver
	maxIter int
	tol     float64

	r, rhat, p, v, sv, t, z []float64
	ready                   bool
}

func NewMatrixFree(maxIter int, tol float64, precon Solver) *MatrixFree {
	if maxIter <= 0 {
		maxIter = 100
	}
	if tol <= 0 {
		tol = 1e-8
	}
	return &MatrixFree{maxIter: maxIter, tol: tol, precon: precon}
}

// SetOperator installs the current-step operator. The Newton coefficient
// changes every integrator step, so this is called at each setup.
func (m *MatrixFree) SetOperator(apply Operator) { m.apply = apply }

func (m *MatrixFree) Init(n int, sp *expr.Sparsity) error {
	if n <= 0 {
		return fmt.Errorf("%w: n = %d", ErrShape, n)
	}
	m.n = n
	m.r = make([]float64, n)
	m.rhat = make([]float64, n)
	m.p = make([]float64, n)
	m.v = make([]float64, n)
	m.sv = make([]float64, n)
	m.t = make([]float64, n)
	m.z = make([]float64, n)
	if m.precon != nil {
		if err := m.precon.Init(n, sp); err != nil {
			return err
		}
	}
	m.ready = true
	return nil
}

func (m *MatrixFree) Factorize(vals []float64) error {
	if !m.ready {
		return ErrNotFactorized
	}
	if m.precon != nil && vals != nil {
		return m.precon.Factorize(vals)
	}
	return nil
}

func (m *MatrixFree) precondition(x []float64) error {
	if m.precon == nil {
		return nil
	}
	return m.precon.Solve(x)
}

func (m *MatrixFree) Solve(b []float64) error {
	if !m.ready || m.apply == nil {
		return ErrNotFactorized
	}
	if len(b) != m.n {
		return fmt.Errorf("%w: rhs length %d, want %d", ErrShape, len(b), m.n)
	}

	x := make([]float64, m.n) // x0 = 0, so r0 = b
	copy(m.r, b)
	if err := m.precondition(m.r); err != nil {
		return err
	}
	copy(m.rhat, m.r)
	bnorm := norm2(m.r)
	if bnorm == 0 {
		copy(b, x)
		return nil
	}

	rho, alpha, omega := 1.0, 1.0, 1.0
	zero(m.p)
	zero(m.v)

	for iter := 0; iter < m.maxIter; iter++ {
		rhoNew := dot(m.rhat, m.r)
		if rhoNew == 0 {
			return ErrNoConvergence
		}
		beta := (rhoNew / rho) * (alpha / omega)
		for i := range m.p {
			m.p[i] = m.r[i] + beta*(m.p[i]-omega*m.v[i])
		}
		rho = rhoNew

		if err := m.apply(m.p, m.v); err != nil {
			return err
		}
		if err := m.precondition(m.v); err != nil {
			return err
		}
		d := dot(m.rhat, m.v)
		if d == 0 {
			return ErrNoConvergence
		}
		alpha = rho / d
		for i := range m.sv {
			m.sv[i] = m.r[i] - alpha*m.v[i]
		}
		if norm2(m.sv)/bnorm < m.tol {
			for i := range x {
				x[i] += alpha * m.p[i]
			}
			copy(b, x)
			return nil
		}

		if err := m.apply(m.sv, m.t); err != nil {
			return err
		}
		if err := m.precondition(m.t); err != nil {
			return err
		}
		tt := dot(m.t, m.t)
		if tt == 0 {
			return ErrNoConvergence
		}
		omega = dot(m.t, m.sv) / tt
		for i := range x {
			x[i] += alpha*m.p[i] + omega*m.sv[i]
		}
		for i := range m.r {
			m.r[i] = m.sv[i] - omega*m.t[i]
		}
		if norm2(m.r)/bnorm < m.tol {
			copy(b, x)
			return nil
		}
		if omega == 0 {
			return ErrNoConvergence
		}
	}
	return ErrNoConvergence
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm2(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func zero(a []float64) {
	for i := range a {
		a[i] = 0
	}
}
