package ida

import (
	"fmt"
	"math"
)

// checkRoots looks for sign changes of the event functions across the
// just-accepted step. On a hit it bisects to the earliest crossing,
// repositions the state there and truncates the history.
func (s *Integrator) checkRoots() (bool, error) {
	if err := s.cfg.Roots(s.t, s.y, s.yp, s.gCur); err != nil {
		return false, fmt.Errorf("%w: %v", ErrResidual, err)
	}
	s.stats.RootEvals++

	crossed := false
	for i := range s.gCur {
		if s.gPrev[i] == 0 {
			continue
		}
		if s.gCur[i] == 0 || s.gPrev[i]*s.gCur[i] < 0 {
			crossed = true
			break
		}
	}
	if !crossed {
		copy(s.gPrev, s.gCur)
		return false, nil
	}

	tRoot, err := s.locateRoot()
	if err != nil {
		return false, err
	}
	s.rootT = tRoot

	// move the state to the crossing
	yR := make([]float64, s.n)
	ypR := make([]float64, s.n)
	s.Interpolate(tRoot, yR, ypR)
	if s.cfg.NumSens > 0 {
		s.InterpolateSens(tRoot, s.yS, s.ypS)
	}
	s.t = tRoot
	copy(s.y, yR)
	copy(s.yp, ypR)
	s.nHist = 1
	s.tHist[0] = tRoot
	copy(s.yHist[0], yR)
	for p := 0; p < s.cfg.NumSens; p++ {
		copy(s.ySHist[0][p], s.yS[p])
	}
	s.k = 1
	// re-baseline the sign check so stepping can resume past the root
	if err := s.cfg.Roots(tRoot, s.y, s.yp, s.gPrev); err != nil {
		return false, fmt.Errorf("%w: %v", ErrResidual, err)
	}
	s.stats.RootEvals++
	return true, nil
}

// locateRoot bisects [tPrev, t] to the earliest event crossing. With
// several functions changing sign the smallest crossing time wins.
func (s *Integrator) locateRoot() (float64, error) {
	y := make([]float64, s.n)
	yp := make([]float64, s.n)
	g := make([]float64, s.cfg.NumRoots)

	evalAt := func(t float64) error {
		s.Interpolate(t, y, yp)
		s.stats.RootEvals++
		return s.cfg.Roots(t, y, yp, g)
	}

	best := math.Inf(1)
	for i := range s.gCur {
		if s.gPrev[i] == 0 {
			continue
		}
		if s.gCur[i] != 0 && s.gPrev[i]*s.gCur[i] > 0 {
			continue
		}
		lo, hi := s.tPrev, s.t
		gLo := s.gPrev[i]
		for iter := 0; iter < 64 && hi-lo > 1e-13*math.Max(1, math.Abs(hi)); iter++ {
			mid := 0.5 * (lo + hi)
			if err := evalAt(mid); err != nil {
				return 0, fmt.Errorf("%w: %v", ErrResidual, err)
			}
			if gLo*g[i] <= 0 {
				hi = mid
			} else {
				lo = mid
				gLo = g[i]
			}
		}
		if hi < best {
			best = hi
		}
	}
	if math.IsInf(best, 1) {
		// sign change seen but not bracketed; report the step end
		best = s.t
	}
	return best, nil
}
