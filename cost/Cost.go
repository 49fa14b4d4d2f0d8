// Package cost implements cost functions over trajectories together with
// their first and second derivatives
package cost

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Cost evaluates a scalar cost and its derivatives at each timestep of
// a trajectory. The trajectory is given as a T x dX matrix of states
// and a T x dU matrix of actions.
type Cost interface {
	Eval(x, u mat.Matrix) *Derivatives
}

// Derivatives stores the cost of a trajectory at each of its T
// timesteps, together with the gradient and Hessian of the cost with
// respect to the state and action
type Derivatives struct {
	L   []float64       // T
	Lx  *mat.Dense      // T x dX
	Lu  *mat.Dense      // T x dU
	Lxx []*mat.SymDense // T of dX x dX
	Luu []*mat.SymDense // T of dU x dU
	Lux []*mat.Dense    // T of dU x dX
}

// NewDerivatives returns a new Derivatives with all values zero
func NewDerivatives(T, dX, dU int) *Derivatives {
	d := &Derivatives{
		L:   make([]float64, T),
		Lx:  mat.NewDense(T, dX, nil),
		Lu:  mat.NewDense(T, dU, nil),
		Lxx: make([]*mat.SymDense, T),
		Luu: make([]*mat.SymDense, T),
		Lux: make([]*mat.Dense, T),
	}
	for t := 0; t < T; t++ {
		d.Lxx[t] = mat.NewSymDense(dX, nil)
		d.Luu[t] = mat.NewSymDense(dU, nil)
		d.Lux[t] = mat.NewDense(dU, dX, nil)
	}
	return d
}

// T returns the number of timesteps
func (d *Derivatives) T() int {
	return len(d.L)
}

// Dims returns the state and action dimensions
func (d *Derivatives) Dims() (dX, dU int) {
	_, dX = d.Lx.Dims()
	_, dU = d.Lu.Dims()
	return dX, dU
}

// Total returns the total cost summed over all timesteps
func (d *Derivatives) Total() float64 {
	total := 0.0
	for _, l := range d.L {
		total += l
	}
	return total
}

// AddScaled adds weight * other to d in place
func (d *Derivatives) AddScaled(weight float64, other *Derivatives) {
	if d.T() != other.T() {
		panic(fmt.Sprintf("addScaled: horizon mismatch %d != %d", d.T(),
			other.T()))
	}
	dX, dU := d.Dims()
	oX, oU := other.Dims()
	if dX != oX || dU != oU {
		panic(fmt.Sprintf("addScaled: dimension mismatch (%d, %d) != (%d, %d)",
			dX, dU, oX, oU))
	}

	for t := range d.L {
		d.L[t] += weight * other.L[t]
		d.Lxx[t].AddSym(d.Lxx[t], scaledSym(weight, other.Lxx[t]))
		d.Luu[t].AddSym(d.Luu[t], scaledSym(weight, other.Luu[t]))

		var lux mat.Dense
		lux.Scale(weight, other.Lux[t])
		d.Lux[t].Add(d.Lux[t], &lux)
	}

	var lx, lu mat.Dense
	lx.Scale(weight, other.Lx)
	lu.Scale(weight, other.Lu)
	d.Lx.Add(d.Lx, &lx)
	d.Lu.Add(d.Lu, &lu)
}

func scaledSym(weight float64, s *mat.SymDense) *mat.SymDense {
	n, _ := s.Dims()
	out := mat.NewSymDense(n, nil)
	out.ScaleSym(weight, s)
	return out
}

func checkTrajectory(op string, x, u mat.Matrix) (T, dX, dU int) {
	T, dX = x.Dims()
	tu, dU := u.Dims()
	if T != tu {
		panic(fmt.Sprintf("%s: states have %d timesteps but actions have %d",
			op, T, tu))
	}
	return T, dX, dU
}
