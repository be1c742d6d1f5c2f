package expr

import "fmt"

// Backend selects the evaluation strategy for a Function.
type Backend int

const (
	// BackendGraph interprets the parsed expression tree directly.
	BackendGraph Backend = iota
	// BackendIR compiles the tree to a flat register program first.
	// It supports a narrower operator set than the graph backend.
	BackendIR
)

func (b Backend) String() string {
	switch b {
	case BackendGraph:
		return "graph"
	case BackendIR:
		return "ir"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Args carries the evaluation-point arguments. Y, P and V may be nil when
// the function does not reference them.
type Args struct {
	T  float64
	Y  []float64
	P  []float64
	V  []float64
	CJ float64
}

// Function is one evaluatable expression function. Implementations are
// safe for concurrent use: evaluation writes only to the caller's out
// slice.
type Function interface {
	Name() string
	Backend() Backend

	// StateDim and InputDim are the declared y and p arities.
	StateDim() int
	InputDim() int

	// OutLen is the number of output slots. For sparse functions this
	// equals Sparsity().NNZ.
	OutLen() int

	// Sparsity returns the fixed nonzero pattern, or nil for dense
	// output functions.
	Sparsity() *Sparsity

	// Eval computes all outputs into out, which must have length OutLen.
	Eval(a Args, out []float64) error
}

// New parses src and constructs a Function on the requested backend.
// Empty or malformed input fails with a parse error; the IR backend can
// additionally fail its compile step on unsupported operators.
func New(src string, backend Backend) (Function, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendGraph:
		return newGraphFunction(prog), nil
	case BackendIR:
		return compile(prog)
	default:
		return nil, fmt.Errorf("expr: unknown backend %d", int(backend))
	}
}

func (p *Program) checkArgs(a Args, out []float64) error {
	if len(out) != p.outLen() {
		return fmt.Errorf("%w: out length %d, want %d", ErrArgShape, len(out), p.outLen())
	}
	if p.usesY && len(a.Y) < p.NumState {
		return fmt.Errorf("%w: y length %d, want %d", ErrArgShape, len(a.Y), p.NumState)
	}
	if p.usesP && len(a.P) < p.NumInput {
		return fmt.Errorf("%w: p length %d, want %d", ErrArgShape, len(a.P), p.NumInput)
	}
	if p.usesV && len(a.V) < p.NumState {
		return fmt.Errorf("%w: v length %d, want %d", ErrArgShape, len(a.V), p.NumState)
	}
	return nil
}
