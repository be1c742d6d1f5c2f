package linsolve

import (
	"fmt"
	"math"

	"github.com/san-kum/daekit/internal/expr"
)

// Sparse is a left-looking sparse LU with partial pivoting over the fixed
// compressed-sparse-column pattern. The reach of each column is computed
// by depth-first search on the partially built L, so only entries that
// can be nonzero are touched; the numeric factorization is refreshed at
// every Newton setup while the pattern and workspaces persist.
type Sparse struct {
	n  int
	sp *expr.Sparsity

	// L has its unit diagonal stored first per column, U its diagonal last.
	lp, li []int
	lx     []float64
	up, ui []int
	ux     []float64
	pinv   []int

	x      []float64
	xi     []int
	stack  []int
	pstack []int
	marked []bool

	factorized bool
}

func NewSparse() *Sparse { return &Sparse{} }

func (s *Sparse) Init(n int, sp *expr.Sparsity) error {
	if n <= 0 {
		return fmt.Errorf("%w: n = %d", ErrShape, n)
	}
	if sp == nil {
		return fmt.Errorf("%w: sparse solver needs a sparsity pattern", ErrShape)
	}
	if sp.N != n {
		return fmt.Errorf("%w: sparsity is %dx%d, system is %d", ErrShape, sp.N, sp.N, n)
	}
	s.n = n
	s.sp = sp
	s.lp = make([]int, n+1)
	s.up = make([]int, n+1)
	s.pinv = make([]int, n)
	s.x = make([]float64, n)
	s.xi = make([]int, n)
	s.stack = make([]int, n)
	s.pstack = make([]int, n)
	s.marked = make([]bool, n)
	cap0 := 4 * sp.NNZ
	s.li = make([]int, 0, cap0)
	s.lx = make([]float64, 0, cap0)
	s.ui = make([]int, 0, cap0)
	s.ux = make([]float64, 0, cap0)
	s.factorized = false
	return nil
}

func (s *Sparse) Factorize(vals []float64) error {
	if s.pinv == nil {
		return ErrNotFactorized
	}
	if len(vals) != s.sp.NNZ {
		return fmt.Errorf("%w: %d values for nnz %d", ErrShape, len(vals), s.sp.NNZ)
	}
	n := s.n
	s.li = s.li[:0]
	s.lx = s.lx[:0]
	s.ui = s.ui[:0]
	s.ux = s.ux[:0]
	for i := 0; i < n; i++ {
		s.pinv[i] = -1
		s.x[i] = 0
		s.marked[i] = false
	}

	for k := 0; k < n; k++ {
		s.lp[k] = len(s.li)
		s.up[k] = len(s.ui)

		top := s.spSolve(k, vals)

		// partial pivoting: largest nonpivotal entry of the solved column
		ipiv, amax := -1, -1.0
		for p := top; p < n; p++ {
			i := s.xi[p]
			if s.pinv[i] < 0 {
				if t := math.Abs(s.x[i]); t > amax {
					amax = t
					ipiv = i
				}
			} else {
				s.ui = append(s.ui, s.pinv[i])
				s.ux = append(s.ux, s.x[i])
			}
		}
		if ipiv == -1 || amax <= 0 {
			return ErrSingular
		}
		pivot := s.x[ipiv]
		s.ui = append(s.ui, k)
		s.ux = append(s.ux, pivot)
		s.pinv[ipiv] = k
		s.li = append(s.li, ipiv)
		s.lx = append(s.lx, 1)
		for p := top; p < n; p++ {
			i := s.xi[p]
			if s.pinv[i] < 0 {
				s.li = append(s.li, i)
				s.lx = append(s.lx, s.x[i]/pivot)
			}
			s.x[i] = 0
		}
	}
	s.lp[n] = len(s.li)
	s.up[n] = len(s.ui)

	// remap L's row indices into pivotal order
	for p := range s.li {
		s.li[p] = s.pinv[s.li[p]]
	}
	s.factorized = true
	return nil
}

// spSolve computes x = L \ A(:,k) for the partially built L, returning
// the start index of the reach in xi (xi[top:n] holds the nonzero rows in
// topological order).
func (s *Sparse) spSolve(k int, vals []float64) int {
	n := s.n
	top := n
	for p := s.sp.ColPtr[k]; p < s.sp.ColPtr[k+1]; p++ {
		if !s.marked[s.sp.RowVal[p]] {
			top = s.dfs(s.sp.RowVal[p], top)
		}
	}
	for p := top; p < n; p++ {
		s.marked[s.xi[p]] = false
		s.x[s.xi[p]] = 0
	}
	for p := s.sp.ColPtr[k]; p < s.sp.ColPtr[k+1]; p++ {
		s.x[s.sp.RowVal[p]] = vals[p]
	}
	for px := top; px < n; px++ {
		j := s.xi[px]
		jc := s.pinv[j]
		if jc < 0 {
			continue
		}
		xj := s.x[j] // L's diagonal is one
		for p := s.lp[jc] + 1; p < s.lp[jc+1]; p++ {
			s.x[s.li[p]] -= s.lx[p] * xj
		}
	}
	return top
}

// dfs walks the graph of the partially built L from row j, pushing the
// visited rows onto xi[top:] in topological order.
func (s *Sparse) dfs(j, top int) int {
	head := 0
	s.stack[0] = j
	for head >= 0 {
		j = s.stack[head]
		jc := s.pinv[j]
		if !s.marked[j] {
			s.marked[j] = true
			if jc < 0 {
				s.pstack[head] = 0
			} else {
				s.pstack[head] = s.lp[jc] + 1
			}
		}
		var pEnd int
		if jc >= 0 {
			pEnd = s.lp[jc+1]
		}
		done := true
		for p := s.pstack[head]; p < pEnd; p++ {
			i := s.li[p]
			if s.marked[i] {
				continue
			}
			s.pstack[head] = p + 1
			head++
			s.stack[head] = i
			done = false
			break
		}
		if done {
			head--
			top--
			s.xi[top] = j
		}
	}
	return top
}

func (s *Sparse) Solve(b []float64) error {
	if !s.factorized {
		return ErrNotFactorized
	}
	if len(b) != s.n {
		return fmt.Errorf("%w: rhs length %d, want %d", ErrShape, len(b), s.n)
	}
	n := s.n
	// permute into pivotal order
	for i := 0; i < n; i++ {
		s.x[s.pinv[i]] = b[i]
	}
	// forward solve Lx = b (unit diagonal first per column)
	for j := 0; j < n; j++ {
		xj := s.x[j]
		for p := s.lp[j] + 1; p < s.lp[j+1]; p++ {
			s.x[s.li[p]] -= s.lx[p] * xj
		}
	}
	// back solve Ux = y (diagonal last per column)
	for j := n - 1; j >= 0; j-- {
		d := s.ux[s.up[j+1]-1]
		if d == 0 {
			return ErrSingular
		}
		s.x[j] /= d
		xj := s.x[j]
		for p := s.up[j]; p < s.up[j+1]-1; p++ {
			s.x[s.ui[p]] -= s.ux[p] * xj
		}
	}
	copy(b, s.x[:n])
	for i := range s.x {
		s.x[i] = 0
	}
	return nil
}
