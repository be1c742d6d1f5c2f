package ida

// derivWeights fills d with the weights of the Lagrange differentiation
// formula at nodes[0]: p'(nodes[0]) = sum_j d[j]*p(nodes[j]) for any
// polynomial p interpolating the nodes. d[0] is the leading coefficient
// cj of the implicit formula.
func derivWeights(nodes, d []float64) {
	q := len(nodes)
	t0 := nodes[0]

	d[0] = 0
	for m := 1; m < q; m++ {
		d[0] += 1.0 / (t0 - nodes[m])
	}
	for j := 1; j < q; j++ {
		num, den := 1.0, 1.0
		for m := 0; m < q; m++ {
			if m == j {
				continue
			}
			den *= nodes[j] - nodes[m]
			if m != 0 {
				num *= t0 - nodes[m]
			}
		}
		d[j] = num / den
	}
}

// predict extrapolates the interpolating polynomial through the most
// recent q history points to time tNew, writing the value into pred.
func (s *Integrator) predict(tNew float64, q int, pred []float64) {
	if q > s.nHist {
		q = s.nHist
	}
	for i := range pred {
		pred[i] = 0
	}
	for j := 0; j < q; j++ {
		l := 1.0
		for m := 0; m < q; m++ {
			if m == j {
				continue
			}
			l *= (tNew - s.tHist[m]) / (s.tHist[j] - s.tHist[m])
		}
		for i := range pred {
			pred[i] += l * s.yHist[j][i]
		}
	}
}

// predictSens does the same extrapolation for every sensitivity column.
func (s *Integrator) predictSens(tNew float64, q int, pred [][]float64) {
	if q > s.nHist {
		q = s.nHist
	}
	for p := range pred {
		for i := range pred[p] {
			pred[p][i] = 0
		}
	}
	for j := 0; j < q; j++ {
		l := 1.0
		for m := 0; m < q; m++ {
			if m == j {
				continue
			}
			l *= (tNew - s.tHist[m]) / (s.tHist[j] - s.tHist[m])
		}
		for p := range pred {
			for i := range pred[p] {
				pred[p][i] += l * s.ySHist[j][p][i]
			}
		}
	}
}

// hermite evaluates the cubic Hermite interpolant through
// (t0, y0, yp0) and (t1, y1, yp1) at t, writing values into y and, when
// non-nil, derivatives into yp.
func hermite(t0 float64, y0, yp0 []float64, t1 float64, y1, yp1 []float64, t float64, y, yp []float64) {
	h := t1 - t0
	if h == 0 {
		if y != nil {
			copy(y, y1)
		}
		if yp != nil {
			copy(yp, yp1)
		}
		return
	}
	u := (t - t0) / h
	h00 := (1 + 2*u) * (1 - u) * (1 - u)
	h10 := u * (1 - u) * (1 - u)
	h01 := u * u * (3 - 2*u)
	h11 := u * u * (u - 1)
	for i := range y0 {
		if y != nil {
			y[i] = h00*y0[i] + h10*h*yp0[i] + h01*y1[i] + h11*h*yp1[i]
		}
	}
	if yp != nil {
		d00 := (6*u*u - 6*u) / h
		d10 := 3*u*u - 4*u + 1
		d01 := (6*u - 6*u*u) / h
		d11 := 3*u*u - 2*u
		for i := range y0 {
			yp[i] = d00*y0[i] + d10*yp0[i] + d01*y1[i] + d11*yp1[i]
		}
	}
}
