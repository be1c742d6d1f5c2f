// Package expr provides evaluatable mathematical functions parsed from a
// serialized expression format.
//
// A function is a small text blob with a header, an optional sparsity
// declaration, and one assignment per output slot:
//
//	fn rhs(n=2, k=1)
//	out[0] = -p0 * y0
//	out[1] = y0 - y1
//
// Jacobian-class functions declare a fixed compressed-sparse-column
// pattern and may reference the linear-combination coefficient cj:
//
//	fn jac(n=1, k=1) nnz=1
//	colptr 0 1
//	rowval 0
//	nz[0] = -p0 - cj
//
// Two evaluation backends implement the same Function interface: a graph
// interpreter that walks the parsed tree, and a compiled register program
// with a narrower operator set. The backend is chosen explicitly at
// construction and both produce identical results for the operators they
// share.
package expr
