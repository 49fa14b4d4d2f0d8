package cost

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// State penalizes the distance of the state from a target using the
// smooth l1-l2 norm:
//
//	l(d) = 0.5 * l2 * Σᵢ wᵢ dᵢ² + l1 * sqrt(alpha + Σᵢ (wᵢ dᵢ)²)
//
// where d = x - target and w are the per-dimension weights scaled by
// the ramp at each timestep. Dimensions with zero weight are ignored.
type State struct {
	wp        []float64
	target    []float64
	l1, l2    float64
	alpha     float64
	ramp      Ramp
	finalMult float64
}

// NewState returns a new State cost
func NewState(wp, target []float64, l1, l2, alpha float64, ramp Ramp,
	finalMult float64) *State {
	if len(wp) != len(target) {
		panic(fmt.Sprintf("newState: %d weights but target has dimension %d",
			len(wp), len(target)))
	}
	w := make([]float64, len(wp))
	copy(w, wp)
	tgt := make([]float64, len(target))
	copy(tgt, target)

	return &State{
		wp:        w,
		target:    tgt,
		l1:        l1,
		l2:        l2,
		alpha:     alpha,
		ramp:      ramp,
		finalMult: finalMult,
	}
}

// Eval implements the Cost interface
func (s *State) Eval(x, u mat.Matrix) *Derivatives {
	T, dX, dU := checkTrajectory("eval", x, u)
	if dX != len(s.wp) {
		panic(fmt.Sprintf("eval: state cost has %d weights but state "+
			"dimension is %d", len(s.wp), dX))
	}
	wpm := s.ramp.Multipliers(T, s.finalMult)

	d := NewDerivatives(T, dX, dU)
	dist := make([]float64, dX)
	w := make([]float64, dX)
	for t := 0; t < T; t++ {
		for i := 0; i < dX; i++ {
			dist[i] = x.At(t, i) - s.target[i]
			w[i] = s.wp[i] * wpm[t]
		}
		l, lx, lxx := evalL1L2(w, dist, s.l1, s.l2, s.alpha)
		d.L[t] = l
		d.Lx.SetRow(t, lx)
		d.Lxx[t] = lxx
	}
	return d
}

// evalL1L2 evaluates the l1-l2 norm of the distance d with weights w
// and returns its value, gradient, and Hessian with respect to d
func evalL1L2(w, d []float64, l1, l2, alpha float64) (float64,
	[]float64, *mat.SymDense) {
	n := len(d)
	sq := 0.0
	quad := 0.0
	for i := range d {
		sq += (w[i] * d[i]) * (w[i] * d[i])
		quad += w[i] * d[i] * d[i]
	}
	root := math.Sqrt(alpha + sq)
	l := 0.5*l2*quad + l1*root

	grad := make([]float64, n)
	scaled := make([]float64, n)
	for i := range d {
		scaled[i] = w[i] * w[i] * d[i]
		grad[i] = l2*w[i]*d[i] + l1*scaled[i]/root
	}

	hess := mat.NewSymDense(n, nil)
	cube := root * root * root
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := -l1 * scaled[i] * scaled[j] / cube
			if i == j {
				v += l1*w[i]*w[i]/root + l2*w[i]
			}
			hess.SetSym(i, j, v)
		}
	}
	return l, grad, hess
}
