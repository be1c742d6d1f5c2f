// Package ida is an implicit integrator for differential-algebraic
// systems res(t, y, y') = 0, using variable-order, variable-step
// backward differentiation formulas with a Newton corrector.
//
// The caller supplies the residual, a fused evaluate-and-factor hook for
// the Newton matrix dres/dy + cj*dres/dy', optional event (root) and
// forward-sensitivity hooks, and drives the integrator one internal step
// at a time. Consistent initial conditions can be computed before
// stepping when the supplied derivative does not satisfy the algebraic
// constraints.
package ida
