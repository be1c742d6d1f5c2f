// Package observe evaluates output expressions over stored trajectories,
// decoupled from the solve that produced them. Multiple trajectory
// segments concatenate along the time axis, so results from chained
// solves can be projected in one call.
package observe

import (
	"errors"
	"fmt"

	"github.com/san-kum/daekit/internal/expr"
)

// ErrUsage indicates empty or inconsistently shaped observe arguments.
var ErrUsage = errors.New("observe: invalid arguments")

// Segment is one stored trajectory piece: knot times with matching state
// rows, and the input (parameter) vector the piece was solved with. YP
// is needed only for Hermite reconstruction.
type Segment struct {
	T      []float64
	Y      [][]float64
	YP     [][]float64
	Inputs []float64
}

func validateSegments(segs []Segment, needYP bool) error {
	if len(segs) == 0 {
		return fmt.Errorf("%w: no trajectory segments", ErrUsage)
	}
	for si, s := range segs {
		if len(s.T) == 0 {
			return fmt.Errorf("%w: segment %d is empty", ErrUsage, si)
		}
		if len(s.Y) != len(s.T) {
			return fmt.Errorf("%w: segment %d has %d rows for %d times", ErrUsage, si, len(s.Y), len(s.T))
		}
		if needYP && len(s.YP) != len(s.T) {
			return fmt.Errorf("%w: segment %d has %d derivative rows for %d times", ErrUsage, si, len(s.YP), len(s.T))
		}
		for i := 1; i < len(s.T); i++ {
			if s.T[i] < s.T[i-1] {
				return fmt.Errorf("%w: segment %d times decrease at %d", ErrUsage, si, i)
			}
		}
	}
	return nil
}

// Observe evaluates every function at every knot of every segment and
// returns one row per knot, rows concatenated across segments in order.
func Observe(segs []Segment, fns []expr.Function) ([]float64, [][]float64, error) {
	if len(fns) == 0 {
		return nil, nil, fmt.Errorf("%w: no output functions", ErrUsage)
	}
	if err := validateSegments(segs, false); err != nil {
		return nil, nil, err
	}

	width := 0
	for _, f := range fns {
		width += f.OutLen()
	}
	var (
		ts   []float64
		rows [][]float64
	)
	for _, seg := range segs {
		for i, t := range seg.T {
			row := make([]float64, 0, width)
			args := expr.Args{T: t, Y: seg.Y[i], P: seg.Inputs}
			for _, f := range fns {
				out := make([]float64, f.OutLen())
				if err := f.Eval(args, out); err != nil {
					return nil, nil, err
				}
				row = append(row, out...)
			}
			ts = append(ts, t)
			rows = append(rows, row)
		}
	}
	return ts, rows, nil
}

// ObserveHermite evaluates the functions at arbitrary query times,
// reconstructing the state between knots by cubic Hermite interpolation
// from the stored (y, yp) pairs. Query times must be non-decreasing and
// within the combined time range of the segments.
func ObserveHermite(tq []float64, segs []Segment, fns []expr.Function) ([][]float64, error) {
	if len(fns) == 0 {
		return nil, fmt.Errorf("%w: no output functions", ErrUsage)
	}
	if len(tq) == 0 {
		return nil, fmt.Errorf("%w: no query times", ErrUsage)
	}
	if err := validateSegments(segs, true); err != nil {
		return nil, err
	}
	for i := 1; i < len(tq); i++ {
		if tq[i] < tq[i-1] {
			return nil, fmt.Errorf("%w: query times decrease at %d", ErrUsage, i)
		}
	}
	t0 := segs[0].T[0]
	tEnd := segs[len(segs)-1].T[len(segs[len(segs)-1].T)-1]
	if tq[0] < t0 || tq[len(tq)-1] > tEnd {
		return nil, fmt.Errorf("%w: query range [%g, %g] outside data range [%g, %g]",
			ErrUsage, tq[0], tq[len(tq)-1], t0, tEnd)
	}

	width := 0
	for _, f := range fns {
		width += f.OutLen()
	}
	n := len(segs[0].Y[0])
	y := make([]float64, n)

	rows := make([][]float64, 0, len(tq))
	si, ki := 0, 0
	for _, t := range tq {
		// advance to the knot interval containing t
		for {
			seg := segs[si]
			if ki+1 < len(seg.T) && seg.T[ki+1] < t {
				ki++
				continue
			}
			if ki+1 >= len(seg.T) && si+1 < len(segs) && segs[si+1].T[0] <= t {
				si, ki = si+1, 0
				continue
			}
			break
		}
		seg := segs[si]
		if ki+1 < len(seg.T) {
			hermiteEval(seg.T[ki], seg.Y[ki], seg.YP[ki], seg.T[ki+1], seg.Y[ki+1], seg.YP[ki+1], t, y)
		} else {
			copy(y, seg.Y[ki])
		}

		row := make([]float64, 0, width)
		args := expr.Args{T: t, Y: y, P: seg.Inputs}
		for _, f := range fns {
			out := make([]float64, f.OutLen())
			if err := f.Eval(args, out); err != nil {
				return nil, err
			}
			row = append(row, out...)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func hermiteEval(t0 float64, y0, yp0 []float64, t1 float64, y1, yp1 []float64, t float64, y []float64) {
	h := t1 - t0
	if h == 0 {
		copy(y, y1)
		return
	}
	u := (t - t0) / h
	h00 := (1 + 2*u) * (1 - u) * (1 - u)
	h10 := u * (1 - u) * (1 - u)
	h01 := u * u * (3 - 2*u)
	h11 := u * u * (u - 1)
	for i := range y {
		y[i] = h00*y0[i] + h10*h*yp0[i] + h01*y1[i] + h11*h*yp1[i]
	}
}
