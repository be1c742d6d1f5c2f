package linsolve

import (
	"fmt"
	"math"

	"github.com/san-kum/daekit/internal/expr"
)

// Band is an LU factorization for banded matrices with partial pivoting,
// using the conventional packed storage with kl extra superdiagonals for
// pivoting fill. Bandwidths come from the sparsity pattern unless set
// explicitly before Init.
type Band struct {
	n      int
	kl, ku int
	sp     *expr.Sparsity

	// ab has 2*kl+ku+1 rows; A(i,j) lives at ab[kl+ku+i-j][j].
	ab         [][]float64
	ipiv       []int
	clip       bool
	factorized bool
}

// NewBand with explicit bandwidths acts as a banded approximation:
// pattern entries outside the band are dropped at Factorize. With both
// bandwidths zero they are derived from the sparsity pattern instead,
// which then covers every entry.
func NewBand(lower, upper int) *Band {
	return &Band{kl: lower, ku: upper, clip: lower != 0 || upper != 0}
}

func (s *Band) Init(n int, sp *expr.Sparsity) error {
	if n <= 0 {
		return fmt.Errorf("%w: n = %d", ErrShape, n)
	}
	if sp == nil {
		return fmt.Errorf("%w: banded solver needs a sparsity pattern", ErrShape)
	}
	if sp.N != n {
		return fmt.Errorf("%w: sparsity is %dx%d, system is %d", ErrShape, sp.N, sp.N, n)
	}
	if s.kl == 0 && s.ku == 0 {
		s.kl, s.ku = sp.Bandwidths()
	}
	s.n = n
	s.sp = sp
	rows := 2*s.kl + s.ku + 1
	s.ab = make([][]float64, rows)
	for i := range s.ab {
		s.ab[i] = make([]float64, n)
	}
	s.ipiv = make([]int, n)
	s.factorized = false
	return nil
}

func (s *Band) Factorize(vals []float64) error {
	if s.ab == nil {
		return ErrNotFactorized
	}
	if len(vals) != s.sp.NNZ {
		return fmt.Errorf("%w: %d values for nnz %d", ErrShape, len(vals), s.sp.NNZ)
	}
	kv := s.kl + s.ku
	for i := range s.ab {
		for j := range s.ab[i] {
			s.ab[i][j] = 0
		}
	}
	for j := 0; j < s.n; j++ {
		for k := s.sp.ColPtr[j]; k < s.sp.ColPtr[j+1]; k++ {
			i := s.sp.RowVal[k]
			if i-j > s.kl || j-i > s.ku {
				if s.clip {
					continue
				}
				return fmt.Errorf("%w: entry (%d,%d) outside band (%d,%d)",
					ErrShape, i, j, s.kl, s.ku)
			}
			s.ab[kv+i-j][j] = vals[k]
		}
	}

	// unblocked banded LU with partial pivoting
	for j := 0; j < s.n; j++ {
		km := s.kl
		if s.n-1-j < km {
			km = s.n - 1 - j
		}
		jp := 0
		amax := math.Abs(s.ab[kv][j])
		for l := 1; l <= km; l++ {
			if a := math.Abs(s.ab[kv+l][j]); a > amax {
				amax = a
				jp = l
			}
		}
		s.ipiv[j] = j + jp
		if amax == 0 {
			return ErrSingular
		}
		jmax := j + kv
		if jmax > s.n-1 {
			jmax = s.n - 1
		}
		if jp != 0 {
			for jj := j; jj <= jmax; jj++ {
				s.ab[kv+j-jj][jj], s.ab[kv+j+jp-jj][jj] =
					s.ab[kv+j+jp-jj][jj], s.ab[kv+j-jj][jj]
			}
		}
		piv := s.ab[kv][j]
		for l := 1; l <= km; l++ {
			m := s.ab[kv+l][j] / piv
			s.ab[kv+l][j] = m
			for jj := j + 1; jj <= jmax; jj++ {
				s.ab[kv+l+j-jj][jj] -= m * s.ab[kv+j-jj][jj]
			}
		}
	}
	s.factorized = true
	return nil
}

func (s *Band) Solve(b []float64) error {
	if !s.factorized {
		return ErrNotFactorized
	}
	if len(b) != s.n {
		return fmt.Errorf("%w: rhs length %d, want %d", ErrShape, len(b), s.n)
	}
	kv := s.kl + s.ku

	// apply L and the row interchanges
	for j := 0; j < s.n-1; j++ {
		if l := s.ipiv[j]; l != j {
			b[l], b[j] = b[j], b[l]
		}
		lm := s.kl
		if s.n-1-j < lm {
			lm = s.n - 1 - j
		}
		for i := 1; i <= lm; i++ {
			b[j+i] -= s.ab[kv+i][j] * b[j]
		}
	}

	// back substitution with U
	for j := s.n - 1; j >= 0; j-- {
		b[j] /= s.ab[kv][j]
		lm := kv
		if j < lm {
			lm = j
		}
		for i := 1; i <= lm; i++ {
			b[j-i] -= s.ab[kv-i][j] * b[j]
		}
	}
	return nil
}
