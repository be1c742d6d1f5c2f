package solver

import (
	"fmt"
	"math"
)

// Jacobian and linear-solver selections.
const (
	JacSparse     = "sparse"
	JacBanded     = "banded"
	JacDense      = "dense"
	JacMatrixFree = "matrix-free"
	JacNone       = "none"

	LinSolDense      = "dense"
	LinSolBanded     = "banded"
	LinSolSparse     = "sparse"
	LinSolMatrixFree = "matrix-free"

	PreconNone   = "none"
	PreconBanded = "banded"
)

// Options is the validated, immutable solver configuration. Construct it
// with NewOptions; a zero Options is not usable.
type Options struct {
	Jacobian            string
	LinearSolver        string
	Preconditioner      string
	PreconHalfBandwidth int
	NumThreads          int
	NumSolvers          int
	LinsolMaxIterations int

	PrintStats             bool
	MaxOrderBDF            int
	MaxNumSteps            int
	DtInit                 float64
	DtMin                  float64
	DtMax                  float64
	MaxErrorTestFailures   int
	MaxNonlinearIterations int
	MaxConvergenceFailures int
	NonlinConvCoef         float64
	NonlinConvCoefIC       float64
	SuppressAlgebraicError bool
	HermiteInterpolation   bool
	CalcIC                 bool
	InitAllYIC bool
	// MaxNumStepsIC and MaxNumJacobiansIC are accepted for
	// compatibility but have no effect: the initialization Newton
	// refreshes the Jacobian every iteration and takes no inner steps,
	// so MaxNumIterationsIC is the only binding budget.
	MaxNumStepsIC         int
	MaxNumJacobiansIC     int
	MaxNumIterationsIC    int
	MaxLinesearchBacktrIC int
	LinesearchOffIC       bool
	// LinearSolutionScaling is accepted for compatibility but has no
	// effect: the Jacobian is refactorized on every step attempt, so
	// the step-ratio correction it would apply is always 1.
	LinearSolutionScaling  bool
	EpsilonLinearTolerance float64
	IncrementFactor        float64
	NoProgressWindow       int
	NoProgressThreshold    float64
}

func defaultOptions() Options {
	return Options{
		Jacobian:            JacSparse,
		LinearSolver:        LinSolSparse,
		Preconditioner:      PreconNone,
		PreconHalfBandwidth: 5,
		NumThreads:          1,
		NumSolvers:          1,
		LinsolMaxIterations: 100,

		MaxOrderBDF:            5,
		MaxNumSteps:            100000,
		MaxErrorTestFailures:   10,
		MaxNonlinearIterations: 40,
		MaxConvergenceFailures: 100,
		NonlinConvCoef:         0.33,
		NonlinConvCoefIC:       0.0033,
		CalcIC:                 true,
		MaxNumStepsIC:          50,
		MaxNumJacobiansIC:      40,
		MaxNumIterationsIC:     10,
		MaxLinesearchBacktrIC:  100,
		LinearSolutionScaling:  true,
		EpsilonLinearTolerance: 0.05,
		IncrementFactor:        1.0,
	}
}

// NewOptions builds Options from a flat key/value map, starting from the
// defaults. Unknown keys, wrong value types, out-of-range values and
// incompatible combinations all fail construction.
func NewOptions(raw map[string]any) (*Options, error) {
	o := defaultOptions()
	for key, v := range raw {
		var err error
		switch key {
		case "jacobian":
			o.Jacobian, err = asString(key, v)
		case "linear_solver":
			o.LinearSolver, err = asString(key, v)
		case "preconditioner":
			o.Preconditioner, err = asString(key, v)
		case "precon_half_bandwidth":
			o.PreconHalfBandwidth, err = asInt(key, v)
		case "num_threads":
			o.NumThreads, err = asInt(key, v)
		case "num_solvers":
			o.NumSolvers, err = asInt(key, v)
		case "linsol_max_iterations":
			o.LinsolMaxIterations, err = asInt(key, v)
		case "print_stats":
			o.PrintStats, err = asBool(key, v)
		case "max_order_bdf":
			o.MaxOrderBDF, err = asInt(key, v)
		case "max_num_steps":
			o.MaxNumSteps, err = asInt(key, v)
		case "dt_init":
			o.DtInit, err = asFloat(key, v)
		case "dt_min":
			o.DtMin, err = asFloat(key, v)
		case "dt_max":
			o.DtMax, err = asFloat(key, v)
		case "max_error_test_failures":
			o.MaxErrorTestFailures, err = asInt(key, v)
		case "max_nonlinear_iterations":
			o.MaxNonlinearIterations, err = asInt(key, v)
		case "max_convergence_failures":
			o.MaxConvergenceFailures, err = asInt(key, v)
		case "nonlinear_convergence_coefficient":
			o.NonlinConvCoef, err = asFloat(key, v)
		case "nonlinear_convergence_coefficient_ic":
			o.NonlinConvCoefIC, err = asFloat(key, v)
		case "suppress_algebraic_error":
			o.SuppressAlgebraicError, err = asBool(key, v)
		case "hermite_interpolation":
			o.HermiteInterpolation, err = asBool(key, v)
		case "calc_ic":
			o.CalcIC, err = asBool(key, v)
		case "init_all_y_ic":
			o.InitAllYIC, err = asBool(key, v)
		case "max_num_steps_ic":
			o.MaxNumStepsIC, err = asInt(key, v)
		case "max_num_jacobians_ic":
			o.MaxNumJacobiansIC, err = asInt(key, v)
		case "max_num_iterations_ic":
			o.MaxNumIterationsIC, err = asInt(key, v)
		case "max_linesearch_backtracks_ic":
			o.MaxLinesearchBacktrIC, err = asInt(key, v)
		case "linesearch_off_ic":
			o.LinesearchOffIC, err = asBool(key, v)
		case "linear_solution_scaling":
			o.LinearSolutionScaling, err = asBool(key, v)
		case "epsilon_linear_tolerance":
			o.EpsilonLinearTolerance, err = asFloat(key, v)
		case "increment_factor":
			o.IncrementFactor, err = asFloat(key, v)
		case "no_progress_window":
			o.NoProgressWindow, err = asInt(key, v)
		case "no_progress_threshold":
			o.NoProgressThreshold, err = asFloat(key, v)
		default:
			return nil, fmt.Errorf("%w: unknown option %q", ErrOptions, key)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *Options) validate() error {
	switch o.Jacobian {
	case JacSparse, JacBanded, JacDense, JacMatrixFree, JacNone:
	default:
		return fmt.Errorf("%w: jacobian %q", ErrOptions, o.Jacobian)
	}
	switch o.LinearSolver {
	case LinSolDense, LinSolBanded, LinSolSparse, LinSolMatrixFree:
	default:
		return fmt.Errorf("%w: linear_solver %q", ErrOptions, o.LinearSolver)
	}
	switch o.Preconditioner {
	case PreconNone, PreconBanded:
	default:
		return fmt.Errorf("%w: preconditioner %q", ErrOptions, o.Preconditioner)
	}

	compatible := map[string][]string{
		JacSparse:     {LinSolSparse, LinSolBanded, LinSolDense},
		JacBanded:     {LinSolBanded, LinSolDense},
		JacDense:      {LinSolDense},
		JacMatrixFree: {LinSolMatrixFree},
		JacNone:       {LinSolMatrixFree},
	}
	ok := false
	for _, ls := range compatible[o.Jacobian] {
		if ls == o.LinearSolver {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: jacobian %q cannot drive linear_solver %q",
			ErrOptions, o.Jacobian, o.LinearSolver)
	}
	if o.Preconditioner != PreconNone && o.LinearSolver != LinSolMatrixFree {
		return fmt.Errorf("%w: preconditioner %q needs linear_solver %q",
			ErrOptions, o.Preconditioner, LinSolMatrixFree)
	}
	if o.Preconditioner == PreconBanded && o.PreconHalfBandwidth < 1 {
		return fmt.Errorf("%w: precon_half_bandwidth = %d", ErrOptions, o.PreconHalfBandwidth)
	}

	intRanges := []struct {
		name     string
		val, min int
	}{
		{"num_threads", o.NumThreads, 1},
		{"num_solvers", o.NumSolvers, 1},
		{"linsol_max_iterations", o.LinsolMaxIterations, 1},
		{"max_num_steps", o.MaxNumSteps, 1},
		{"max_error_test_failures", o.MaxErrorTestFailures, 1},
		{"max_nonlinear_iterations", o.MaxNonlinearIterations, 1},
		{"max_convergence_failures", o.MaxConvergenceFailures, 1},
		{"max_num_steps_ic", o.MaxNumStepsIC, 1},
		{"max_num_jacobians_ic", o.MaxNumJacobiansIC, 1},
		{"max_num_iterations_ic", o.MaxNumIterationsIC, 1},
		{"max_linesearch_backtracks_ic", o.MaxLinesearchBacktrIC, 1},
	}
	for _, r := range intRanges {
		if r.val < r.min {
			return fmt.Errorf("%w: %s = %d, want >= %d", ErrOptions, r.name, r.val, r.min)
		}
	}
	if o.MaxOrderBDF < 1 || o.MaxOrderBDF > 5 {
		return fmt.Errorf("%w: max_order_bdf = %d, want 1..5", ErrOptions, o.MaxOrderBDF)
	}

	floats := []struct {
		name string
		val  float64
	}{
		{"dt_init", o.DtInit},
		{"dt_min", o.DtMin},
		{"dt_max", o.DtMax},
		{"no_progress_threshold", o.NoProgressThreshold},
	}
	for _, f := range floats {
		if f.val < 0 || math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return fmt.Errorf("%w: %s = %g", ErrOptions, f.name, f.val)
		}
	}
	positives := []struct {
		name string
		val  float64
	}{
		{"nonlinear_convergence_coefficient", o.NonlinConvCoef},
		{"nonlinear_convergence_coefficient_ic", o.NonlinConvCoefIC},
		{"epsilon_linear_tolerance", o.EpsilonLinearTolerance},
		{"increment_factor", o.IncrementFactor},
	}
	for _, f := range positives {
		if f.val <= 0 || math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return fmt.Errorf("%w: %s = %g, want > 0", ErrOptions, f.name, f.val)
		}
	}
	if o.DtMin > 0 && o.DtMax > 0 && o.DtMin > o.DtMax {
		return fmt.Errorf("%w: dt_min %g exceeds dt_max %g", ErrOptions, o.DtMin, o.DtMax)
	}
	if o.NoProgressWindow < 0 {
		return fmt.Errorf("%w: no_progress_window = %d", ErrOptions, o.NoProgressWindow)
	}
	return nil
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: option %q wants a string, got %T", ErrOptions, key, v)
	}
	return s, nil
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: option %q wants a bool, got %T", ErrOptions, key, v)
	}
	return b, nil
}

func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: option %q wants an integer, got %T(%v)", ErrOptions, key, v, v)
}

func asFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: option %q wants a number, got %T", ErrOptions, key, v)
}
