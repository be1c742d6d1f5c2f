package observe

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/daekit/internal/expr"
)

func mustFn(t *testing.T, src string) expr.Function {
	t.Helper()
	f, err := expr.New(src, expr.BackendGraph)
	if err != nil {
		t.Fatalf("expr.New: %v", err)
	}
	return f
}

// expSegment samples y = exp(-t) on [a, b] with the given knot count.
func expSegment(a, b float64, knots int) Segment {
	seg := Segment{Inputs: []float64{1}}
	for i := 0; i < knots; i++ {
		t := a + (b-a)*float64(i)/float64(knots-1)
		seg.T = append(seg.T, t)
		seg.Y = append(seg.Y, []float64{math.Exp(-t)})
		seg.YP = append(seg.YP, []float64{-math.Exp(-t)})
	}
	return seg
}

func TestObserve_ConcatenatesSegments(t *testing.T) {
	fns := []expr.Function{mustFn(t, "fn obs(n=1, k=1)\nout[0] = p0 * y0 * y0")}
	segs := []Segment{expSegment(0, 1, 5), expSegment(1, 2, 4)}

	ts, rows, err := Observe(segs, fns)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(ts) != 9 || len(rows) != 9 {
		t.Fatalf("got %d rows, want 9", len(rows))
	}
	for i, tv := range ts {
		want := math.Exp(-2 * tv)
		if math.Abs(rows[i][0]-want) > 1e-12 {
			t.Errorf("row %d at t = %v: %v, want %v", i, tv, rows[i][0], want)
		}
	}
	// the shared knot t = 1 appears once per segment
	if ts[4] != 1 || ts[5] != 1 {
		t.Errorf("segment boundary times = %v, %v", ts[4], ts[5])
	}
}

func TestObserve_EmptyInputsFail(t *testing.T) {
	fns := []expr.Function{mustFn(t, "fn obs(n=1, k=1)\nout[0] = y0")}

	if _, _, err := Observe(nil, fns); !errors.Is(err, ErrUsage) {
		t.Errorf("no segments: err = %v", err)
	}
	if _, _, err := Observe([]Segment{expSegment(0, 1, 3)}, nil); !errors.Is(err, ErrUsage) {
		t.Errorf("no functions: err = %v", err)
	}
	if _, _, err := Observe([]Segment{{T: []float64{0}, Y: nil}}, fns); !errors.Is(err, ErrUsage) {
		t.Errorf("ragged segment: err = %v", err)
	}
}

func TestObserveHermite_ReconstructsBetweenKnots(t *testing.T) {
	fns := []expr.Function{mustFn(t, "fn obs(n=1, k=1)\nout[0] = y0")}
	segs := []Segment{expSegment(0, 1, 6), expSegment(1, 2, 6)}
	tq := []float64{0, 0.13, 0.5, 0.99, 1.0, 1.37, 2.0}

	rows, err := ObserveHermite(tq, segs, fns)
	if err != nil {
		t.Fatalf("ObserveHermite: %v", err)
	}
	for i, tv := range tq {
		want := math.Exp(-tv)
		if math.Abs(rows[i][0]-want) > 1e-5 {
			t.Errorf("t = %v: %v, want %v", tv, rows[i][0], want)
		}
	}
}

func TestObserveHermite_Rejects(t *testing.T) {
	fns := []expr.Function{mustFn(t, "fn obs(n=1, k=1)\nout[0] = y0")}
	seg := expSegment(0, 1, 4)

	cases := map[string]struct {
		tq   []float64
		segs []Segment
	}{
		"empty queries":  {nil, []Segment{seg}},
		"outside range":  {[]float64{0, 1.5}, []Segment{seg}},
		"unsorted":       {[]float64{0.5, 0.2}, []Segment{seg}},
		"no derivatives": {[]float64{0.5}, []Segment{{T: seg.T, Y: seg.Y, Inputs: seg.Inputs}}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ObserveHermite(c.tq, c.segs, fns); !errors.Is(err, ErrUsage) {
				t.Errorf("err = %v, want ErrUsage", err)
			}
		})
	}
}
