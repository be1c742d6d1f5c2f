package ida

import "fmt"

// CalcIC computes consistent initial conditions at t0 before stepping
// toward tout. In the default mode the algebraic components of y and
// the differential components of yp are adjusted; with initAllY the
// whole state vector is solved for with yp held fixed.
func (s *Integrator) CalcIC(t0, tout float64, initAllY bool) error {
	if !initAllY && s.allDifferential() {
		// no algebraic states: the residual at yp = 0 is the derivative
		for i := range s.ypAcc {
			s.ypAcc[i] = 0
		}
		if err := s.cfg.Residual(t0, s.y, s.ypAcc, s.yp); err != nil {
			return fmt.Errorf("%w: %v", ErrResidual, err)
		}
		s.stats.ResEvals++
		copy(s.ypPrev, s.yp)
		return nil
	}

	h0 := s.cfg.InitStep
	if h0 <= 0 {
		h0 = 0.001 * (tout - t0)
	}
	if h0 <= 0 {
		h0 = 1e-3
	}
	cj := 1.0 / h0
	if initAllY {
		cj = 0
	}

	for iter := 0; iter < s.cfg.CalcICMaxIters; iter++ {
		if err := s.cfg.JacSetup(t0, s.y, s.yp, cj); err != nil {
			return fmt.Errorf("%w: %v", ErrLinearSetup, err)
		}
		s.stats.JacSetups++
		if err := s.cfg.Residual(t0, s.y, s.yp, s.rr); err != nil {
			return fmt.Errorf("%w: %v", ErrResidual, err)
		}
		s.stats.ResEvals++
		rnorm0 := s.wrmsNorm(s.rr, false)
		if err := s.cfg.JacSolve(s.rr); err != nil {
			return fmt.Errorf("%w: %v", ErrLinearSetup, err)
		}
		stepnrm := s.wrmsNorm(s.rr, false)

		lambda := 1.0
		if !s.cfg.CalcICNoLineSearch && rnorm0 > 0 {
			back := 0
			for {
				s.icTrial(lambda, cj, initAllY)
				if err := s.cfg.Residual(t0, s.pred, s.predP, s.acc); err != nil {
					return fmt.Errorf("%w: %v", ErrResidual, err)
				}
				s.stats.ResEvals++
				if s.wrmsNorm(s.acc, false) < (1-1e-4*lambda)*rnorm0 {
					break
				}
				back++
				if back > s.cfg.CalcICMaxBacktracks {
					return fmt.Errorf("%w: line search stalled at t = %g", ErrICFail, t0)
				}
				lambda /= 2
			}
		} else {
			s.icTrial(lambda, cj, initAllY)
		}
		copy(s.y, s.pred)
		copy(s.yp, s.predP)

		if lambda*stepnrm < s.cfg.CalcICConvCoef {
			s.tHist[0] = t0
			copy(s.yHist[0], s.y)
			copy(s.yPrev, s.y)
			copy(s.ypPrev, s.yp)
			return nil
		}
	}
	return fmt.Errorf("%w: no convergence in %d iterations at t = %g",
		ErrICFail, s.cfg.CalcICMaxIters, t0)
}

func (s *Integrator) allDifferential() bool {
	for _, id := range s.cfg.ID {
		if id < 0.5 {
			return false
		}
	}
	return true
}

// icTrial writes the damped update into pred/predP without committing.
func (s *Integrator) icTrial(lambda, cj float64, initAllY bool) {
	copy(s.pred, s.y)
	copy(s.predP, s.yp)
	for i := 0; i < s.n; i++ {
		switch {
		case initAllY:
			s.pred[i] -= lambda * s.rr[i]
		case s.cfg.ID[i] < 0.5:
			s.pred[i] -= lambda * s.rr[i]
		default:
			s.predP[i] -= lambda * cj * s.rr[i]
		}
	}
}
