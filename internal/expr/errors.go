package expr

import "errors"

var (
	// ErrEmptySource indicates an empty or whitespace-only expression blob.
	ErrEmptySource = errors.New("expr: empty source")

	// ErrSyntax indicates a malformed expression or header line.
	ErrSyntax = errors.New("expr: syntax error")

	// ErrBadSparsity indicates an inconsistent colptr/rowval declaration.
	ErrBadSparsity = errors.New("expr: invalid sparsity pattern")

	// ErrUnsupportedOp indicates an operator outside the compiled backend's set.
	ErrUnsupportedOp = errors.New("expr: operator not supported by compiled backend")

	// ErrArgShape indicates evaluation arguments shorter than the function requires.
	ErrArgShape = errors.New("expr: argument shape mismatch")
)
