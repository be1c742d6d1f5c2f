package expr

import "fmt"

// Sparsity is a fixed compressed-sparse-column pattern for a square
// Jacobian-class function. It is established at parse time and never
// resized; evaluation writes only to the declared nonzero slots.
type Sparsity struct {
	N      int
	NNZ    int
	ColPtr []int
	RowVal []int
}

func (s *Sparsity) validate() error {
	if s.N <= 0 {
		return fmt.Errorf("%w: n = %d", ErrBadSparsity, s.N)
	}
	if len(s.ColPtr) != s.N+1 {
		return fmt.Errorf("%w: colptr length %d, want %d", ErrBadSparsity, len(s.ColPtr), s.N+1)
	}
	if s.ColPtr[0] != 0 || s.ColPtr[s.N] != s.NNZ {
		return fmt.Errorf("%w: colptr bounds [%d, %d], want [0, %d]",
			ErrBadSparsity, s.ColPtr[0], s.ColPtr[s.N], s.NNZ)
	}
	if len(s.RowVal) != s.NNZ {
		return fmt.Errorf("%w: rowval length %d, want nnz %d", ErrBadSparsity, len(s.RowVal), s.NNZ)
	}
	for j := 0; j < s.N; j++ {
		if s.ColPtr[j+1] < s.ColPtr[j] {
			return fmt.Errorf("%w: colptr not non-decreasing at column %d", ErrBadSparsity, j)
		}
		for k := s.ColPtr[j]; k < s.ColPtr[j+1]; k++ {
			if r := s.RowVal[k]; r < 0 || r >= s.N {
				return fmt.Errorf("%w: row %d out of range in column %d", ErrBadSparsity, r, j)
			}
		}
	}
	return nil
}

// Bandwidths returns the lower and upper bandwidth of the pattern.
func (s *Sparsity) Bandwidths() (lower, upper int) {
	for j := 0; j < s.N; j++ {
		for k := s.ColPtr[j]; k < s.ColPtr[j+1]; k++ {
			i := s.RowVal[k]
			if i-j > lower {
				lower = i - j
			}
			if j-i > upper {
				upper = j - i
			}
		}
	}
	return lower, upper
}

// Scatter expands pattern-aligned values into the dense column-major
// matrix dst, which must have length N*N. Entries outside the pattern
// are zeroed.
func (s *Sparsity) Scatter(vals, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for j := 0; j < s.N; j++ {
		for k := s.ColPtr[j]; k < s.ColPtr[j+1]; k++ {
			dst[j*s.N+s.RowVal[k]] = vals[k]
		}
	}
}
