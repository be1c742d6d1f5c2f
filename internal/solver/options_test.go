package solver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewOptions_Defaults(t *testing.T) {
	o, err := NewOptions(nil)
	require.NoError(t, err)
	require.Equal(t, JacSparse, o.Jacobian)
	require.Equal(t, LinSolSparse, o.LinearSolver)
	require.Equal(t, 1, o.NumSolvers)
	require.Equal(t, 5, o.MaxOrderBDF)
	require.True(t, o.CalcIC)
	require.False(t, o.HermiteInterpolation)
}

func TestNewOptions_Overrides(t *testing.T) {
	o, err := NewOptions(map[string]any{
		"jacobian":          "dense",
		"linear_solver":     "dense",
		"num_solvers":       4,
		"dt_max":            0.5,
		"hermite_interpolation": true,
		"max_order_bdf":     3,
	})
	require.NoError(t, err)
	require.Equal(t, JacDense, o.Jacobian)
	require.Equal(t, 4, o.NumSolvers)
	require.Equal(t, 0.5, o.DtMax)
	require.True(t, o.HermiteInterpolation)
	require.Equal(t, 3, o.MaxOrderBDF)
}

func TestNewOptions_Rejects(t *testing.T) {
	cases := map[string]map[string]any{
		"unknown key":        {"jacobain": "sparse"},
		"wrong type":         {"num_threads": "two"},
		"fractional int":     {"max_num_steps": 1.5},
		"bad jacobian":       {"jacobian": "magic"},
		"bad linear solver":  {"linear_solver": "qr"},
		"order too high":     {"max_order_bdf": 6},
		"order too low":      {"max_order_bdf": 0},
		"zero solvers":       {"num_solvers": 0},
		"negative dt":        {"dt_min": -1.0},
		"dt min above max":   {"dt_min": 1.0, "dt_max": 0.5},
		"zero conv coef":     {"nonlinear_convergence_coefficient": 0.0},
		"mf with dense":      {"jacobian": "matrix-free", "linear_solver": "dense"},
		"dense with sparse":  {"jacobian": "dense", "linear_solver": "sparse"},
		"none with banded":   {"jacobian": "none", "linear_solver": "banded"},
		"precon with direct": {"preconditioner": "banded"},
		"bad precon":         {"preconditioner": "ilu", "linear_solver": "matrix-free", "jacobian": "matrix-free"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewOptions(raw)
			require.ErrorIs(t, err, ErrOptions)
		})
	}
}

func TestNewOptions_MatrixFreeCombos(t *testing.T) {
	_, err := NewOptions(map[string]any{
		"jacobian":      "matrix-free",
		"linear_solver": "matrix-free",
		"preconditioner": "banded",
		"precon_half_bandwidth": 2,
	})
	require.NoError(t, err)

	_, err = NewOptions(map[string]any{
		"jacobian":      "none",
		"linear_solver": "matrix-free",
	})
	require.NoError(t, err)
}
