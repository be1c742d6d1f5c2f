package solver

import "errors"

var (
	// ErrOptions indicates an unknown, mistyped, out-of-range or
	// incompatible solver option.
	ErrOptions = errors.New("solver: invalid options")

	// ErrProblem indicates an inconsistent problem definition.
	ErrProblem = errors.New("solver: invalid problem")

	// ErrUsage indicates malformed solve-call arguments (time grids or
	// batch shapes); nothing has been integrated when it is returned.
	ErrUsage = errors.New("solver: invalid solve arguments")
)
