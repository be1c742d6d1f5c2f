package solver

import "github.com/san-kum/daekit/internal/ida"

// Flag classifies how a group solve ended. Non-negative flags are
// successful terminations; negative flags are failure kinds, and the
// Solution then holds the partial trajectory up to the failure.
type Flag int

const (
	FlagSuccess      Flag = 0
	FlagStopBoundary Flag = 1
	FlagRoot         Flag = 2

	FlagMaxSteps     Flag = -1
	FlagErrTestFail  Flag = -2
	FlagConvFail     Flag = -3
	FlagResidualFail Flag = -4
	FlagLinSetupFail Flag = -5
	FlagICFail       Flag = -6
	FlagStepTooSmall Flag = -7
	FlagNoProgress   Flag = -8
	FlagSetupFail    Flag = -9
)

// Success reports whether the solve ran to a normal termination.
func (f Flag) Success() bool { return f >= 0 }

func (f Flag) String() string {
	switch f {
	case FlagSuccess:
		return "success"
	case FlagStopBoundary:
		return "reached final time"
	case FlagRoot:
		return "stopped on event"
	case FlagMaxSteps:
		return "maximum steps exceeded"
	case FlagErrTestFail:
		return "repeated error test failures"
	case FlagConvFail:
		return "repeated convergence failures"
	case FlagResidualFail:
		return "residual evaluation failed"
	case FlagLinSetupFail:
		return "linear solver setup failed"
	case FlagICFail:
		return "consistent initialization failed"
	case FlagStepTooSmall:
		return "step size below minimum"
	case FlagNoProgress:
		return "no progress"
	case FlagSetupFail:
		return "solver setup failed"
	default:
		return "unknown flag"
	}
}

// Solution is the result of one group solve. It is immutable once
// returned; rows are owned by the Solution, not aliased to solver
// internals.
//
// Y rows hold the state vector, or the concatenated observable outputs
// when the problem configures output functions. YP is retained only in
// Hermite mode. YS and YPS are absent when the problem has no
// sensitivity parameters.
type Solution struct {
	T  []float64
	Y  [][]float64
	YP [][]float64

	// YS[i][p] is the sensitivity of row i with respect to parameter p.
	YS  [][][]float64
	YPS [][][]float64

	// YTerm holds the observables evaluated at the final retained time.
	YTerm []float64

	HasEvent bool
	TEvent   float64
	YEvent   []float64

	Flag  Flag
	Stats ida.Stats
}
