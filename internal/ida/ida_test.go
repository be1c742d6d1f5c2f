package ida

import (
	"errors"
	"math"
	"testing"
)

// scalarCfg builds a config for the scalar problem yp + rate*y = 0.
func scalarCfg(rate float64) Config {
	var cj float64
	return Config{
		NumStates: 1,
		Residual: func(t float64, y, yp, rr []float64) error {
			rr[0] = yp[0] + rate*y[0]
			return nil
		},
		JacSetup: func(t float64, y, yp []float64, c float64) error {
			cj = c
			return nil
		},
		JacSolve: func(b []float64) error {
			b[0] /= rate + cj
			return nil
		},
		RelTol:   1e-6,
		AbsTol:   []float64{1e-9},
		ID:       []float64{1},
		MaxOrder: 5,
	}
}

func runToStop(t *testing.T, s *Integrator, tstop float64) {
	t.Helper()
	s.SetStopTime(tstop)
	for i := 0; i < 100000; i++ {
		st, err := s.Step()
		if err != nil {
			t.Fatalf("Step at t = %g: %v", s.Time(), err)
		}
		if st == StatusTstop {
			return
		}
	}
	t.Fatalf("no StatusTstop before step limit, t = %g", s.Time())
}

func TestStep_ExponentialDecay(t *testing.T) {
	s, err := New(scalarCfg(0.5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(0, []float64{1}, []float64{-0.5}, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	runToStop(t, s, 5)

	y := make([]float64, 1)
	s.State(y)
	want := math.Exp(-0.5 * 5)
	if diff := math.Abs(y[0] - want); diff > 1e-4 {
		t.Errorf("y(5) = %v, want %v (diff %v)", y[0], want, diff)
	}
	st := s.Stats()
	if st.Steps == 0 || st.ResEvals == 0 {
		t.Errorf("counters not accumulated: %+v", st)
	}
}

func TestStep_RegrowsAfterTightStop(t *testing.T) {
	// An early stop time packs the history with small steps; continuing
	// to a far boundary then forces aggressive step regrowth, where a
	// marginal error-test failure must shrink the estimate with the
	// retry step instead of stalling on the stale history spacing.
	s, err := New(scalarCfg(0.5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(0, []float64{1}, []float64{-0.5}, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	runToStop(t, s, 0.05)
	runToStop(t, s, 5)

	y := make([]float64, 1)
	s.State(y)
	want := math.Exp(-0.5 * 5)
	if diff := math.Abs(y[0] - want); diff > 1e-4 {
		t.Errorf("y(5) = %v, want %v (diff %v)", y[0], want, diff)
	}
}

func TestStep_NoProgressGuard(t *testing.T) {
	cfg := scalarCfg(0.5)
	cfg.MaxStep = 0.01
	cfg.NoProgressWindow = 4
	cfg.NoProgressThreshold = 1.0
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(0, []float64{1}, []float64{-0.5}, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.SetStopTime(100)
	for i := 0; i < 1000; i++ {
		if _, err := s.Step(); err != nil {
			if !errors.Is(err, ErrNoProgress) {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}
	}
	t.Fatal("guard never tripped with capped steps")
}

func TestCalcIC_AlgebraicConstraint(t *testing.T) {
	// y0' = -y0 with the algebraic mirror y1 = y0
	var cj float64
	cfg := Config{
		NumStates: 2,
		Residual: func(tt float64, y, yp, rr []float64) error {
			rr[0] = yp[0] + y[0]
			rr[1] = y[1] - y[0]
			return nil
		},
		JacSetup: func(tt float64, y, yp []float64, c float64) error {
			cj = c
			return nil
		},
		JacSolve: func(b []float64) error {
			// [[1+cj, 0], [-1, 1]]
			b[0] /= 1 + cj
			b[1] += b[0]
			return nil
		},
		RelTol:   1e-6,
		AbsTol:   []float64{1e-9, 1e-9},
		ID:       []float64{1, 0},
		MaxOrder: 5,
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// inconsistent y1 and yp0 on purpose
	if err := s.Init(0, []float64{1, 0.3}, []float64{0, 0}, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.CalcIC(0, 1, false); err != nil {
		t.Fatalf("CalcIC: %v", err)
	}
	y := make([]float64, 2)
	yp := make([]float64, 2)
	s.State(y)
	s.Deriv(yp)
	if math.Abs(y[1]-1) > 1e-4 {
		t.Errorf("algebraic y1 = %v, want 1", y[1])
	}
	if math.Abs(yp[0]+1) > 1e-3 {
		t.Errorf("yp0 = %v, want -1", yp[0])
	}

	runToStop(t, s, 1)
	s.State(y)
	want := math.Exp(-1)
	if math.Abs(y[0]-want) > 1e-4 {
		t.Errorf("y0(1) = %v, want %v", y[0], want)
	}
	if math.Abs(y[1]-y[0]) > 1e-6 {
		t.Errorf("constraint drift: y1 = %v, y0 = %v", y[1], y[0])
	}
}

func TestStep_EventLocated(t *testing.T) {
	cfg := scalarCfg(0) // yp = 0 residual would be singular; use yp - 1
	cfg.Residual = func(tt float64, y, yp, rr []float64) error {
		rr[0] = yp[0] - 1
		return nil
	}
	var cj float64
	cfg.JacSetup = func(tt float64, y, yp []float64, c float64) error {
		cj = c
		return nil
	}
	cfg.JacSolve = func(b []float64) error {
		b[0] /= cj
		return nil
	}
	cfg.NumRoots = 1
	cfg.Roots = func(tt float64, y, yp, g []float64) error {
		g[0] = y[0] - 0.5
		return nil
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(0, []float64{0}, []float64{1}, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.SetStopTime(1)
	for i := 0; i < 100000; i++ {
		st, err := s.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if st == StatusRoot {
			if math.Abs(s.RootTime()-0.5) > 1e-9 {
				t.Errorf("root at t = %v, want 0.5", s.RootTime())
			}
			y := make([]float64, 1)
			s.State(y)
			if math.Abs(y[0]-0.5) > 1e-9 {
				t.Errorf("y at root = %v, want 0.5", y[0])
			}
			return
		}
		if st == StatusTstop {
			t.Fatal("reached stop time without detecting the event")
		}
	}
	t.Fatal("step limit exceeded")
}

func TestStep_ResumeAfterRoot(t *testing.T) {
	cfg := scalarCfg(0)
	cfg.Residual = func(tt float64, y, yp, rr []float64) error {
		rr[0] = yp[0] - 1
		return nil
	}
	var cj float64
	cfg.JacSetup = func(tt float64, y, yp []float64, c float64) error {
		cj = c
		return nil
	}
	cfg.JacSolve = func(b []float64) error {
		b[0] /= cj
		return nil
	}
	cfg.NumRoots = 1
	cfg.Roots = func(tt float64, y, yp, g []float64) error {
		g[0] = y[0] - 0.5
		return nil
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(0, []float64{0}, []float64{1}, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.SetStopTime(2)
	sawRoot := false
	for i := 0; i < 100000; i++ {
		st, err := s.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		switch st {
		case StatusRoot:
			// the single crossing must not fire a second time once the
			// integration continues past it
			if sawRoot {
				t.Fatalf("event re-fired at t = %v", s.RootTime())
			}
			sawRoot = true
		case StatusTstop:
			if !sawRoot {
				t.Fatal("reached stop time without detecting the event")
			}
			y := make([]float64, 1)
			s.State(y)
			if math.Abs(y[0]-2) > 1e-6 {
				t.Errorf("y(2) = %v, want 2", y[0])
			}
			return
		}
	}
	t.Fatal("step limit exceeded")
}

func TestStep_Sensitivities(t *testing.T) {
	// yp + p*y = 0, dy/dp = -t*exp(-p*t)
	const p = 0.5
	var cj float64
	cfg := Config{
		NumStates: 1,
		Residual: func(tt float64, y, yp, rr []float64) error {
			rr[0] = yp[0] + p*y[0]
			return nil
		},
		JacSetup: func(tt float64, y, yp []float64, c float64) error {
			cj = c
			return nil
		},
		JacSolve: func(b []float64) error {
			b[0] /= p + cj
			return nil
		},
		NumSens: 1,
		SensResidual: func(tt float64, y, yp []float64, yS, ypS, resS [][]float64) error {
			resS[0][0] = ypS[0][0] + p*yS[0][0] + y[0]
			return nil
		},
		RelTol:   1e-7,
		AbsTol:   []float64{1e-10},
		ID:       []float64{1},
		MaxOrder: 5,
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	yS0 := [][]float64{{0}}
	ypS0 := [][]float64{{-1}} // d(yp)/dp at t=0: -y(0)
	if err := s.Init(0, []float64{1}, []float64{-p}, yS0, ypS0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	runToStop(t, s, 2)

	yS := [][]float64{{0}}
	s.Sens(yS)
	want := -2 * math.Exp(-p*2)
	if diff := math.Abs(yS[0][0] - want); diff > 5e-4 {
		t.Errorf("dy/dp(2) = %v, want %v (diff %v)", yS[0][0], want, diff)
	}
}

func TestInterpolate_WithinLastStep(t *testing.T) {
	s, err := New(scalarCfg(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(0, []float64{1}, []float64{-1}, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.SetStopTime(1)
	var tPrev float64
	for {
		tPrev = s.Time()
		st, err := s.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if s.Time() > 0.5 || st == StatusTstop {
			break
		}
	}
	tm := 0.5 * (tPrev + s.Time())
	y := make([]float64, 1)
	yp := make([]float64, 1)
	s.Interpolate(tm, y, yp)
	if diff := math.Abs(y[0] - math.Exp(-tm)); diff > 1e-4 {
		t.Errorf("interpolated y(%v) off by %v", tm, diff)
	}
	if diff := math.Abs(yp[0] + math.Exp(-tm)); diff > 1e-3 {
		t.Errorf("interpolated yp(%v) off by %v", tm, diff)
	}
}

func TestDerivWeights_KnownStencils(t *testing.T) {
	const h = 0.1
	d := make([]float64, 3)

	derivWeights([]float64{h, 0}, d[:2])
	if math.Abs(d[0]-1/h) > 1e-12 || math.Abs(d[1]+1/h) > 1e-12 {
		t.Errorf("order 1 weights = %v", d[:2])
	}

	derivWeights([]float64{2 * h, h, 0}, d)
	want := []float64{3 / (2 * h), -2 / h, 1 / (2 * h)}
	for i := range want {
		if math.Abs(d[i]-want[i]) > 1e-9 {
			t.Errorf("order 2 weights = %v, want %v", d, want)
			break
		}
	}
}

func TestNew_ConfigValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"zero states":     func(c *Config) { c.NumStates = 0 },
		"nil residual":    func(c *Config) { c.Residual = nil },
		"bad rtol":        func(c *Config) { c.RelTol = 0 },
		"atol length":     func(c *Config) { c.AbsTol = nil },
		"id length":       func(c *Config) { c.ID = []float64{1, 0} },
		"order range":     func(c *Config) { c.MaxOrder = 9 },
		"roots no cb":     func(c *Config) { c.NumRoots = 2; c.Roots = nil },
		"sens no cb":      func(c *Config) { c.NumSens = 1 },
		"jacsolve absent": func(c *Config) { c.JacSolve = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := scalarCfg(1)
			mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrConfig) {
				t.Errorf("New error = %v, want ErrConfig", err)
			}
		})
	}
}

func TestStep_MaxStepsExceeded(t *testing.T) {
	cfg := scalarCfg(1)
	cfg.MaxSteps = 3
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(0, []float64{1}, []float64{-1}, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.SetStopTime(100)
	var last error
	for i := 0; i < 10; i++ {
		if _, last = s.Step(); last != nil {
			break
		}
	}
	if !errors.Is(last, ErrTooMuchWork) {
		t.Errorf("error = %v, want ErrTooMuchWork", last)
	}
}
