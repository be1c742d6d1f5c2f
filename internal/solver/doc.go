// Package solver orchestrates batched solves of differential-algebraic
// systems. A Problem bundles the expression functions and tolerances of
// one system shape, Options carries the validated solver settings, and a
// SolverGroup fans a batch of parameter sets out over a bounded worker
// pool, returning one Solution per set in input order.
//
// Numerical failures never surface as Go errors from a solve: each
// Solution carries a Flag, and a failed group keeps the partial
// trajectory accumulated up to the failure.
package solver
