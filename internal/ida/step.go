package ida

import (
	"errors"
	"fmt"
	"math"
)

const (
	stepSafety = 0.9
	maxGrowth  = 2.0
	minShrink  = 0.25
)

// errNewtonDiverged signals a recoverable corrector failure; the step
// retries with a smaller h.
var errNewtonDiverged = errors.New("ida: newton corrector diverged")

// Step advances the integration by one internal step, retrying with
// reduced step size on corrector or error-test failures.
func (s *Integrator) Step() (Status, error) {
	if s.stepsTaken >= s.cfg.MaxSteps {
		return 0, fmt.Errorf("%w: %d steps at t = %g", ErrTooMuchWork, s.stepsTaken, s.t)
	}
	if s.h == 0 {
		s.h = s.initialStep()
	}

	errFails, convFails := 0, 0
	for {
		h := s.h
		if s.cfg.MaxStep > 0 && h > s.cfg.MaxStep {
			h = s.cfg.MaxStep
		}
		landTstop := false
		if s.hasTst {
			if s.t+h >= s.stopT {
				h = s.stopT - s.t
				landTstop = true
			} else if s.t+2*h >= s.stopT {
				// split the remainder so the final step is not microscopic
				h = (s.stopT - s.t) / 2
			}
		}
		if h <= 0 || s.hasTst && s.stopT-s.t <= math.Abs(s.stopT)*1e-14 {
			s.t = s.stopT
			return StatusTstop, nil
		}

		k := s.k
		if k > s.nHist {
			k = s.nHist
		}

		est, err := s.attempt(h, k)
		switch {
		case err == nil && est <= 1:
			return s.accept(h, k, est, landTstop)

		case err == nil:
			errFails++
			s.stats.ErrTestFails++
			if errFails >= s.cfg.MaxErrTestFails {
				return 0, fmt.Errorf("%w at t = %g", ErrErrTestFail, s.t)
			}
			if s.k > 1 {
				s.k--
			}
			fac := stepSafety * math.Pow(est, -1.0/float64(k+1))
			fac = math.Max(minShrink, math.Min(fac, 0.9))
			s.h = h * fac
			if err := s.checkMinStep(); err != nil {
				return 0, err
			}

		case errors.Is(err, errNewtonDiverged):
			convFails++
			s.stats.NonlinConvFails++
			if convFails >= s.cfg.MaxConvFails {
				return 0, fmt.Errorf("%w at t = %g", ErrConvFail, s.t)
			}
			s.h = h * minShrink
			if err := s.checkMinStep(); err != nil {
				return 0, err
			}

		default:
			return 0, err
		}
	}
}

func (s *Integrator) checkMinStep() error {
	floor := 1e-14 * math.Max(1, math.Abs(s.t))
	if s.cfg.MinStep > floor {
		floor = s.cfg.MinStep
	}
	if s.h < floor {
		return fmt.Errorf("%w: h = %g at t = %g", ErrStepTooSmall, s.h, s.t)
	}
	return nil
}

// initialStep picks a first step from the derivative magnitude and the
// remaining span, when the caller did not fix one.
func (s *Integrator) initialStep() float64 {
	if s.cfg.InitStep > 0 {
		return s.cfg.InitStep
	}
	h := 1e-3
	if s.hasTst && s.stopT > s.t {
		h = (s.stopT - s.t) / 1000
	}
	if ypn := s.wrmsNorm(s.yp, false); ypn > 0 {
		h = math.Min(h, 0.1/ypn)
	}
	if s.cfg.MaxStep > 0 {
		h = math.Min(h, s.cfg.MaxStep)
	}
	return h
}

// attempt predicts, corrects and error-tests a single step of size h at
// order k. It returns the scaled local error estimate, or
// errNewtonDiverged when the corrector failed recoverably.
func (s *Integrator) attempt(h float64, k int) (float64, error) {
	tNew := s.t + h

	nodes := s.nodes[:k+1]
	d := s.dwts[:k+1]
	nodes[0] = tNew
	for j := 1; j <= k; j++ {
		nodes[j] = s.tHist[j-1]
	}
	derivWeights(nodes, d)
	cj := d[0]

	s.predict(tNew, k+1, s.pred)
	for i := 0; i < s.n; i++ {
		s.predP[i] = cj * s.pred[i]
	}
	for j := 1; j <= k; j++ {
		for i := 0; i < s.n; i++ {
			s.predP[i] += d[j] * s.yHist[j-1][i]
		}
	}

	if err := s.cfg.JacSetup(tNew, s.pred, s.predP, cj); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLinearSetup, err)
	}
	s.stats.JacSetups++

	copy(s.acc, s.pred)
	oldnrm := 0.0
	converged := false
	for m := 0; m < s.cfg.MaxNonlinIters; m++ {
		for i := 0; i < s.n; i++ {
			s.ypAcc[i] = s.predP[i] + cj*(s.acc[i]-s.pred[i])
		}
		if err := s.cfg.Residual(tNew, s.acc, s.ypAcc, s.rr); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrResidual, err)
		}
		s.stats.ResEvals++
		if err := s.cfg.JacSolve(s.rr); err != nil {
			return 0, errNewtonDiverged
		}
		for i := 0; i < s.n; i++ {
			s.acc[i] -= s.rr[i]
		}
		s.stats.NonlinIters++

		delnrm := s.wrmsNorm(s.rr, false)
		if delnrm < 1e-14 {
			converged = true
			break
		}
		if m > 0 {
			rate := delnrm / oldnrm
			if rate > 0.9 {
				return 0, errNewtonDiverged
			}
			if rate/(1-rate)*delnrm < s.cfg.NonlinConvCoef {
				converged = true
				break
			}
		}
		oldnrm = delnrm
	}
	if !converged {
		return 0, errNewtonDiverged
	}

	for i := 0; i < s.n; i++ {
		s.ypAcc[i] = s.predP[i] + cj*(s.acc[i]-s.pred[i])
		s.rr[i] = s.acc[i] - s.pred[i]
	}
	// The corrector-predictor difference carries the full spread of the
	// k+1 history nodes the predictor interpolated; the h/psi factor
	// rescales it to the local error of this step, so the estimate
	// contracts like h^(k+1) on a retry even though the history spacing
	// is frozen. On a uniform grid the factor reduces to 1/(k+1).
	est := s.wrmsNorm(s.rr, s.cfg.SuppressAlg)
	if s.nHist > k {
		est *= h / (tNew - s.tHist[k])
	} else {
		est /= float64(k + 1)
	}
	return est, nil
}

// accept commits the attempted step, corrects sensitivities, adapts the
// step size and order, and handles stop-time and event crossings.
func (s *Integrator) accept(h float64, k int, est float64, landTstop bool) (Status, error) {
	tNew := s.t + h
	cj := s.dwts[0]

	s.tPrev = s.t
	copy(s.yPrev, s.y)
	copy(s.ypPrev, s.yp)
	for p := 0; p < s.cfg.NumSens; p++ {
		copy(s.ySPrev[p], s.yS[p])
		copy(s.ypSPrev[p], s.ypS[p])
	}

	s.t = tNew
	copy(s.y, s.acc)
	copy(s.yp, s.ypAcc)

	if s.cfg.NumSens > 0 {
		if err := s.correctSens(tNew, k, cj); err != nil {
			return 0, err
		}
	}

	// shift the history window
	top := len(s.tHist) - 1
	for j := top; j > 0; j-- {
		s.tHist[j] = s.tHist[j-1]
		s.yHist[j], s.yHist[j-1] = s.yHist[j-1], s.yHist[j]
		if s.cfg.NumSens > 0 {
			s.ySHist[j], s.ySHist[j-1] = s.ySHist[j-1], s.ySHist[j]
		}
	}
	s.tHist[0] = tNew
	copy(s.yHist[0], s.y)
	for p := 0; p < s.cfg.NumSens; p++ {
		copy(s.ySHist[0][p], s.yS[p])
	}
	if s.nHist < len(s.tHist) {
		s.nHist++
	}

	s.stepsTaken++
	s.stats.Steps++
	s.updateEwt()

	s.orderStreak++
	if s.orderStreak > s.k && s.k < s.cfg.MaxOrder && s.k < s.nHist-1 {
		s.k++
		s.orderStreak = 0
	}
	fac := maxGrowth
	if est > 0 {
		fac = math.Min(maxGrowth, stepSafety*math.Pow(est, -1.0/float64(k+1)))
	}
	s.h = h * fac

	s.guard.add(h)
	if s.guard.violated() {
		return 0, fmt.Errorf("%w at t = %g", ErrNoProgress, s.t)
	}

	if s.cfg.NumRoots > 0 {
		found, err := s.checkRoots()
		if err != nil {
			return 0, err
		}
		if found {
			return StatusRoot, nil
		}
	}
	if landTstop {
		s.t = s.stopT
		return StatusTstop, nil
	}
	return StatusStep, nil
}

// correctSens runs the staggered sensitivity correction. The
// sensitivity residual is linear in the sensitivities and the Newton
// matrix is their exact system matrix, so one solve per parameter
// finishes the correction.
func (s *Integrator) correctSens(tNew float64, k int, cj float64) error {
	s.predictSens(tNew, k+1, s.predS)
	d := s.dwts[:k+1]
	for p := 0; p < s.cfg.NumSens; p++ {
		for i := 0; i < s.n; i++ {
			s.predPS[p][i] = cj * s.predS[p][i]
		}
		for j := 1; j <= k; j++ {
			for i := 0; i < s.n; i++ {
				s.predPS[p][i] += d[j] * s.ySHist[j-1][p][i]
			}
		}
		copy(s.yS[p], s.predS[p])
		copy(s.ypS[p], s.predPS[p])
	}

	if err := s.cfg.SensResidual(tNew, s.y, s.yp, s.yS, s.ypS, s.resS); err != nil {
		return fmt.Errorf("%w: %v", ErrResidual, err)
	}
	for p := 0; p < s.cfg.NumSens; p++ {
		if err := s.cfg.JacSolve(s.resS[p]); err != nil {
			return fmt.Errorf("%w: %v", ErrLinearSetup, err)
		}
		for i := 0; i < s.n; i++ {
			s.yS[p][i] -= s.resS[p][i]
			s.ypS[p][i] -= cj * s.resS[p][i]
		}
	}
	return nil
}

// Interpolate evaluates the solution at t inside the last accepted step
// using cubic Hermite interpolation; yp may be nil.
func (s *Integrator) Interpolate(t float64, y, yp []float64) {
	hermite(s.tPrev, s.yPrev, s.ypPrev, s.t, s.y, s.yp, t, y, yp)
}

// InterpolateSens does the same for every sensitivity column.
func (s *Integrator) InterpolateSens(t float64, yS, ypS [][]float64) {
	for p := 0; p < s.cfg.NumSens; p++ {
		var d []float64
		if ypS != nil {
			d = ypS[p]
		}
		hermite(s.tPrev, s.ySPrev[p], s.ypSPrev[p], s.t, s.yS[p], s.ypS[p], t, yS[p], d)
	}
}
