package ida

import (
	"fmt"
	"math"
)

// Status reports the outcome of one successful internal step.
type Status int

const (
	// StatusStep is an ordinary accepted step.
	StatusStep Status = iota
	// StatusTstop means the step landed on the configured stop time.
	StatusTstop
	// StatusRoot means an event function changed sign during the step;
	// the integrator state is positioned at the crossing.
	StatusRoot
)

// Config wires the integrator to a problem. Residual and JacSetup /
// JacSolve are required; the rest is optional.
type Config struct {
	NumStates int

	// Residual computes rr = res(t, y, yp).
	Residual func(t float64, y, yp, rr []float64) error

	// JacSetup evaluates and factorizes the Newton matrix
	// dres/dy + cj*dres/dyp at the given point. JacSolve then solves
	// against that factorization in place. The factorization is also
	// reused for the sensitivity corrections of the same step.
	JacSetup func(t float64, y, yp []float64, cj float64) error
	JacSolve func(b []float64) error

	// Roots computes the event functions g(t, y, yp). NumRoots may be 0.
	Roots    func(t float64, y, yp, g []float64) error
	NumRoots int

	// SensResidual computes the sensitivity residuals for all parameters:
	// resS[i] = d(res)/dp_i + (dres/dy)·yS[i] + (dres/dyp)·ypS[i].
	SensResidual func(t float64, y, yp []float64, yS, ypS, resS [][]float64) error
	NumSens      int

	// Tolerances. AbsTol must have length NumStates.
	RelTol float64
	AbsTol []float64

	// ID flags each state: 1 differential, 0 algebraic.
	ID          []float64
	SuppressAlg bool

	MaxOrder        int
	MaxSteps        int
	InitStep        float64
	MinStep         float64
	MaxStep         float64
	MaxNonlinIters  int
	MaxConvFails    int
	MaxErrTestFails int
	NonlinConvCoef  float64

	// Consistent-initialization controls.
	CalcICConvCoef      float64
	CalcICMaxIters      int
	CalcICMaxBacktracks int
	CalcICNoLineSearch  bool

	// No-progress guard; window 0 or threshold 0 disables it.
	NoProgressWindow    int
	NoProgressThreshold float64
}

func (c *Config) validate() error {
	if c.NumStates <= 0 {
		return fmt.Errorf("%w: NumStates = %d", ErrConfig, c.NumStates)
	}
	if c.Residual == nil || c.JacSetup == nil || c.JacSolve == nil {
		return fmt.Errorf("%w: Residual, JacSetup and JacSolve are required", ErrConfig)
	}
	if c.NumRoots > 0 && c.Roots == nil {
		return fmt.Errorf("%w: NumRoots > 0 without a Roots callback", ErrConfig)
	}
	if c.NumSens > 0 && c.SensResidual == nil {
		return fmt.Errorf("%w: NumSens > 0 without a SensResidual callback", ErrConfig)
	}
	if c.RelTol <= 0 {
		return fmt.Errorf("%w: RelTol = %g", ErrConfig, c.RelTol)
	}
	if len(c.AbsTol) != c.NumStates {
		return fmt.Errorf("%w: AbsTol length %d, want %d", ErrConfig, len(c.AbsTol), c.NumStates)
	}
	if len(c.ID) != c.NumStates {
		return fmt.Errorf("%w: ID length %d, want %d", ErrConfig, len(c.ID), c.NumStates)
	}
	if c.MaxOrder < 1 || c.MaxOrder > 5 {
		return fmt.Errorf("%w: MaxOrder = %d, want 1..5", ErrConfig, c.MaxOrder)
	}
	return nil
}

// Stats accumulates integrator counters across reinitializations.
type Stats struct {
	Steps           int64
	ResEvals        int64
	JacSetups       int64
	ErrTestFails    int64
	NonlinIters     int64
	NonlinConvFails int64
	RootEvals       int64
	LastOrder       int
	LastStep        float64
	CurrentTime     float64
}

// Integrator holds the mutable integration state for one problem
// instance. It is not safe for concurrent use.
type Integrator struct {
	cfg Config
	n   int

	t float64
	h float64
	k int // current BDF order

	// history of accepted points, most recent first
	tHist []float64
	yHist [][]float64
	nHist int

	y, yp  []float64
	ewt    []float64
	stopT  float64
	hasTst bool

	// sensitivity state, parallel to the primary history
	ySHist [][][]float64
	yS     [][]float64
	ypS    [][]float64

	// previous accepted point, for dense output and root bracketing
	tPrev   float64
	yPrev   []float64
	ypPrev  []float64
	ySPrev  [][]float64
	ypSPrev [][]float64

	gPrev, gCur []float64
	rootT       float64

	// scratch
	pred, predP, rr, acc, ypAcc []float64
	nodes, dwts                 []float64
	predS, predPS, resS         [][]float64

	stepsTaken  int
	orderStreak int
	guard       progressGuard
	stats       Stats
}

// New validates cfg and allocates an integrator. Init must be called
// before stepping.
func New(cfg Config) (*Integrator, error) {
	if cfg.MaxOrder == 0 {
		cfg.MaxOrder = 5
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 10000
	}
	if cfg.MaxNonlinIters == 0 {
		cfg.MaxNonlinIters = 4
	}
	if cfg.MaxConvFails == 0 {
		cfg.MaxConvFails = 10
	}
	if cfg.MaxErrTestFails == 0 {
		cfg.MaxErrTestFails = 10
	}
	if cfg.NonlinConvCoef == 0 {
		cfg.NonlinConvCoef = 0.33
	}
	if cfg.CalcICConvCoef == 0 {
		cfg.CalcICConvCoef = 0.0033
	}
	if cfg.CalcICMaxIters == 0 {
		cfg.CalcICMaxIters = 10
	}
	if cfg.CalcICMaxBacktracks == 0 {
		cfg.CalcICMaxBacktracks = 100
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := cfg.NumStates
	s := &Integrator{
		cfg:   cfg,
		n:     n,
		y:     make([]float64, n),
		yp:    make([]float64, n),
		ewt:   make([]float64, n),
		yPrev: make([]float64, n),

		ypPrev: make([]float64, n),
		pred:   make([]float64, n),
		predP:  make([]float64, n),
		rr:     make([]float64, n),
		acc:    make([]float64, n),
		ypAcc:  make([]float64, n),
	}
	hist := cfg.MaxOrder + 2
	s.tHist = make([]float64, hist)
	s.yHist = make([][]float64, hist)
	for i := range s.yHist {
		s.yHist[i] = make([]float64, n)
	}
	s.nodes = make([]float64, hist)
	s.dwts = make([]float64, hist)
	if cfg.NumRoots > 0 {
		s.gPrev = make([]float64, cfg.NumRoots)
		s.gCur = make([]float64, cfg.NumRoots)
	}
	if cfg.NumSens > 0 {
		s.yS = newMatrix(cfg.NumSens, n)
		s.ypS = newMatrix(cfg.NumSens, n)
		s.ySPrev = newMatrix(cfg.NumSens, n)
		s.ypSPrev = newMatrix(cfg.NumSens, n)
		s.predS = newMatrix(cfg.NumSens, n)
		s.predPS = newMatrix(cfg.NumSens, n)
		s.resS = newMatrix(cfg.NumSens, n)
		s.ySHist = make([][][]float64, hist)
		for i := range s.ySHist {
			s.ySHist[i] = newMatrix(cfg.NumSens, n)
		}
	}
	s.guard = newProgressGuard(cfg.NoProgressWindow, cfg.NoProgressThreshold)
	return s, nil
}

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// Init positions the integrator at (t0, y0, yp0) and resets the step and
// order history. Sensitivity blocks may be nil when NumSens is 0.
func (s *Integrator) Init(t0 float64, y0, yp0 []float64, yS0, ypS0 [][]float64) error {
	if len(y0) != s.n || len(yp0) != s.n {
		return fmt.Errorf("%w: state length %d/%d, want %d", ErrConfig, len(y0), len(yp0), s.n)
	}
	s.t = t0
	copy(s.y, y0)
	copy(s.yp, yp0)
	s.k = 1
	s.nHist = 1
	s.tHist[0] = t0
	copy(s.yHist[0], y0)
	s.tPrev = t0
	copy(s.yPrev, y0)
	copy(s.ypPrev, yp0)
	for i := 0; i < s.cfg.NumSens; i++ {
		copy(s.yS[i], yS0[i])
		copy(s.ypS[i], ypS0[i])
		copy(s.ySPrev[i], yS0[i])
		copy(s.ypSPrev[i], ypS0[i])
		copy(s.ySHist[0][i], yS0[i])
	}
	s.h = 0
	s.hasTst = false
	s.stepsTaken = 0
	s.orderStreak = 0
	s.guard.reset()
	s.updateEwt()
	if s.cfg.NumRoots > 0 {
		if err := s.cfg.Roots(t0, s.y, s.yp, s.gPrev); err != nil {
			return fmt.Errorf("%w: %v", ErrResidual, err)
		}
		s.stats.RootEvals++
	}
	return nil
}

// Reinit repositions at (t, y, yp) keeping accumulated statistics,
// used to restart across a requested output boundary.
func (s *Integrator) Reinit(t float64, y, yp []float64) error {
	if s.cfg.NumSens > 0 {
		return s.reinitKeepSens(t, y, yp)
	}
	return s.Init(t, y, yp, nil, nil)
}

func (s *Integrator) reinitKeepSens(t float64, y, yp []float64) error {
	yS := newMatrix(s.cfg.NumSens, s.n)
	ypS := newMatrix(s.cfg.NumSens, s.n)
	for i := range yS {
		copy(yS[i], s.yS[i])
		copy(ypS[i], s.ypS[i])
	}
	return s.Init(t, y, yp, yS, ypS)
}

// SetStopTime sets the hard boundary the integrator will not step past.
func (s *Integrator) SetStopTime(t float64) {
	s.stopT = t
	s.hasTst = true
}

// Time returns the current internal time.
func (s *Integrator) Time() float64 { return s.t }

// State copies the current state into out.
func (s *Integrator) State(out []float64) { copy(out, s.y) }

// Deriv copies the current derivative into out.
func (s *Integrator) Deriv(out []float64) { copy(out, s.yp) }

// Sens copies the current sensitivity block into out.
func (s *Integrator) Sens(out [][]float64) {
	for i := range s.yS {
		copy(out[i], s.yS[i])
	}
}

// SensDeriv copies the current sensitivity derivative block into out.
func (s *Integrator) SensDeriv(out [][]float64) {
	for i := range s.ypS {
		copy(out[i], s.ypS[i])
	}
}

// RootTime returns the located event crossing after a StatusRoot step.
func (s *Integrator) RootTime() float64 { return s.rootT }

// Stats returns a copy of the accumulated counters.
func (s *Integrator) Stats() Stats {
	st := s.stats
	st.LastOrder = s.k
	st.LastStep = s.h
	st.CurrentTime = s.t
	return st
}

// wrmsNorm is the weighted root-mean-square norm with the current error
// weights. With maskAlg, algebraic components are excluded.
func (s *Integrator) wrmsNorm(v []float64, maskAlg bool) float64 {
	var sum float64
	count := 0
	for i := 0; i < s.n; i++ {
		if maskAlg && s.cfg.ID[i] < 0.5 {
			continue
		}
		w := v[i] * s.ewt[i]
		sum += w * w
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

func (s *Integrator) updateEwt() {
	for i := 0; i < s.n; i++ {
		s.ewt[i] = 1.0 / (s.cfg.RelTol*math.Abs(s.y[i]) + s.cfg.AbsTol[i])
	}
}

// progressGuard tracks lack of progress over a sliding window of
// accepted step sizes.
type progressGuard struct {
	window    []float64
	threshold float64
	idx       int
}

func newProgressGuard(size int, threshold float64) progressGuard {
	g := progressGuard{threshold: threshold}
	if size > 0 && threshold > 0 {
		g.window = make([]float64, size)
	}
	return g
}

func (g *progressGuard) disabled() bool { return g.window == nil }

func (g *progressGuard) reset() {
	for i := range g.window {
		g.window[i] = g.threshold
	}
	g.idx = 0
}

func (g *progressGuard) add(dt float64) {
	if g.disabled() {
		return
	}
	g.window[g.idx] = dt
	g.idx = (g.idx + 1) % len(g.window)
}

func (g *progressGuard) violated() bool {
	if g.disabled() {
		return false
	}
	var sum float64
	for _, dt := range g.window {
		sum += dt
		if sum >= g.threshold {
			return false
		}
	}
	return true
}
