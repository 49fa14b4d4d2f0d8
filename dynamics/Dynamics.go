// Package dynamics implements time-varying linear Gaussian dynamics
// estimates fit from rollouts, optionally regularized by a Gaussian
// mixture prior
package dynamics

import (
	"fmt"

	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// LinearGaussian is a time-varying linear Gaussian dynamics estimate:
//
//	x_{t+1} ~ N(Fm[t] [x_t; u_t] + Fv[t], Covar[t])
//
// The estimate at the final timestep is unused and has zero Fm and Fv.
// A LinearGaussian is immutable once fit.
type LinearGaussian struct {
	Fm    []*mat.Dense    // T of dX x (dX+dU)
	Fv    []*mat.VecDense // T of dX
	Covar []*mat.SymDense // T of dX x dX
	dX    int
	dU    int
}

// NewLinearGaussian returns a new LinearGaussian of horizon T with all
// transitions zero and each covariance minEig * I
func NewLinearGaussian(T, dX, dU int, minEig float64) *LinearGaussian {
	d := &LinearGaussian{
		Fm:    make([]*mat.Dense, T),
		Fv:    make([]*mat.VecDense, T),
		Covar: make([]*mat.SymDense, T),
		dX:    dX,
		dU:    dU,
	}
	for t := 0; t < T; t++ {
		d.Fm[t] = mat.NewDense(dX, dX+dU, nil)
		d.Fv[t] = mat.NewVecDense(dX, nil)
		d.Covar[t] = matutils.EyeSym(dX, minEig)
	}
	return d
}

// T returns the horizon of the dynamics
func (d *LinearGaussian) T() int {
	return len(d.Fm)
}

// Dims returns the state and action dimensions
func (d *LinearGaussian) Dims() (dX, dU int) {
	return d.dX, d.dU
}

// Predict returns the mean next state from state x and action u at
// timestep t
func (d *LinearGaussian) Predict(t int, x, u mat.Vector) *mat.VecDense {
	if x.Len() != d.dX || u.Len() != d.dU {
		panic(fmt.Sprintf("predict: expected state and action of dimensions "+
			"(%d, %d), have (%d, %d)", d.dX, d.dU, x.Len(), u.Len()))
	}
	var next mat.VecDense
	next.MulVec(d.Fm[t], matutils.Concat(x, u))
	next.AddVec(&next, d.Fv[t])
	return &next
}
