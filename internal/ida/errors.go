package ida

import "errors"

// Terminal failure kinds. Each maps to a distinct negative Solution flag
// at the orchestration layer.
var (
	// ErrTooMuchWork indicates the configured step budget was exhausted.
	ErrTooMuchWork = errors.New("ida: maximum number of steps taken")

	// ErrErrTestFail indicates repeated local error test failures.
	ErrErrTestFail = errors.New("ida: repeated error test failures")

	// ErrConvFail indicates repeated Newton convergence failures.
	ErrConvFail = errors.New("ida: repeated nonlinear convergence failures")

	// ErrResidual indicates the residual callback returned an error.
	ErrResidual = errors.New("ida: residual evaluation failed")

	// ErrLinearSetup indicates the Jacobian setup or factorization failed.
	ErrLinearSetup = errors.New("ida: linear solver setup failed")

	// ErrICFail indicates the consistent-initial-condition calculation
	// did not converge within its iteration or backtrack budget.
	ErrICFail = errors.New("ida: consistent initialization failed")

	// ErrStepTooSmall indicates the step size underflowed dt_min.
	ErrStepTooSmall = errors.New("ida: step size below minimum")

	// ErrNoProgress indicates the no-progress guard tripped: the sum of
	// recent step sizes stayed below the configured threshold.
	ErrNoProgress = errors.New("ida: integration is not progressing")

	// ErrConfig indicates an invalid integrator configuration.
	ErrConfig = errors.New("ida: invalid configuration")
)
