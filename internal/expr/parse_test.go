package expr

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"empty", "", ErrEmptySource},
		{"whitespace", "  \n\t\n", ErrEmptySource},
		{"no header", "out[0] = t", ErrSyntax},
		{"bad header", "fn rhs(n=2", ErrSyntax},
		{"zero states", "fn rhs(n=0, k=0)\nout[0] = t", ErrSyntax},
		{"unknown field", "fn rhs(n=1, q=2)\nout[0] = y0", ErrSyntax},
		{"missing output", "fn rhs(n=1, k=0) nnz=2\ncolptr 0 1 2\nrowval 0 0\nnz[0] = y0", ErrSyntax},
		{"double assign", "fn rhs(n=1, k=0)\nout[0] = y0\nout[0] = t", ErrSyntax},
		{"y out of range", "fn rhs(n=2, k=0)\nout[0] = y2", ErrSyntax},
		{"p out of range", "fn rhs(n=1, k=1)\nout[0] = p1", ErrSyntax},
		{"unknown ident", "fn rhs(n=1, k=0)\nout[0] = q0", ErrSyntax},
		{"unknown call", "fn rhs(n=1, k=0)\nout[0] = foo(y0)", ErrSyntax},
		{"trailing tokens", "fn rhs(n=1, k=0)\nout[0] = y0 y0", ErrSyntax},
		{"unbalanced paren", "fn rhs(n=1, k=0)\nout[0] = (y0", ErrSyntax},
		{"bad colptr", "fn j(n=1, k=0) nnz=1\ncolptr 0 2\nrowval 0\nnz[0] = cj", ErrBadSparsity},
		{"rowval range", "fn j(n=1, k=0) nnz=1\ncolptr 0 1\nrowval 3\nnz[0] = cj", ErrBadSparsity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.src); !errors.Is(err, tc.want) {
				t.Errorf("Parse() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParse_Sparsity(t *testing.T) {
	src := `
fn jac(n=3, k=1) nnz=5
colptr 0 2 4 5
rowval 0 1 1 2 2
nz[0] = -p0 - cj
nz[1] = p0
nz[2] = -1 - cj
nz[3] = 1
nz[4] = -cj
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sp := prog.Sp
	if sp == nil {
		t.Fatal("expected sparsity pattern")
	}
	if sp.N != 3 || sp.NNZ != 5 {
		t.Errorf("got n=%d nnz=%d, want 3, 5", sp.N, sp.NNZ)
	}
	lower, upper := sp.Bandwidths()
	if lower != 1 || upper != 0 {
		t.Errorf("Bandwidths() = (%d, %d), want (1, 0)", lower, upper)
	}
}

func TestParse_CommentsAndBlankLines(t *testing.T) {
	src := strings.Join([]string{
		"# residual of the decay model",
		"fn rhs(n=1, k=1)",
		"",
		"out[0] = -p0 * y0  # dy/dt",
	}, "\n")
	if _, err := Parse(src); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
}
