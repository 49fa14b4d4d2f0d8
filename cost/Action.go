package cost

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Action is a quadratic penalty on the magnitude of actions:
//
//	l(u) = 0.5 * Σᵢ wuᵢ uᵢ²
type Action struct {
	wu   []float64
	ramp Ramp
}

// NewAction returns a new Action cost with per-dimension weights wu
func NewAction(wu []float64, ramp Ramp) *Action {
	w := make([]float64, len(wu))
	copy(w, wu)
	return &Action{wu: w, ramp: ramp}
}

// Eval implements the Cost interface
func (a *Action) Eval(x, u mat.Matrix) *Derivatives {
	T, dX, dU := checkTrajectory("eval", x, u)
	if dU != len(a.wu) {
		panic(fmt.Sprintf("eval: action cost has %d weights but action "+
			"dimension is %d", len(a.wu), dU))
	}
	wpm := a.ramp.Multipliers(T, 1.0)

	d := NewDerivatives(T, dX, dU)
	for t := 0; t < T; t++ {
		for i := 0; i < dU; i++ {
			w := a.wu[i] * wpm[t]
			ui := u.At(t, i)
			d.L[t] += 0.5 * w * ui * ui
			d.Lu.Set(t, i, w*ui)
			d.Luu[t].SetSym(i, i, w)
		}
	}
	return d
}
