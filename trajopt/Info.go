// Package trajopt implements trajectory optimization of time-varying
// linear Gaussian controllers under fitted linear Gaussian dynamics and
// a quadratic cost, subject to a KL divergence trust region
package trajopt

import (
	"fmt"

	"github.com/samuelfneumann/gogps/cost"
	"github.com/samuelfneumann/gogps/dynamics"
	"gonum.org/v1/gonum/mat"
)

// Info is everything trajectory optimization needs to know about a
// condition: its fitted dynamics, its quadratic cost expansion, and
// the distribution of its initial state
type Info struct {
	Dynamics *dynamics.LinearGaussian
	Cost     *cost.Expansion
	X0Mu     *mat.VecDense
	X0Sigma  *mat.SymDense
}

// Validate returns an error if the parts of the Info are inconsistent
// with each other
func (i *Info) Validate() error {
	if i.Dynamics == nil || i.Cost == nil || i.X0Mu == nil || i.X0Sigma == nil {
		return fmt.Errorf("validate: incomplete trajectory info")
	}
	dX, dU := i.Dynamics.Dims()
	cX, cU := i.Cost.Dims()
	if dX != cX || dU != cU {
		return fmt.Errorf("validate: dynamics dimensions (%d, %d) do not "+
			"match cost dimensions (%d, %d)", dX, dU, cX, cU)
	}
	if i.Dynamics.T() != i.Cost.T() {
		return fmt.Errorf("validate: dynamics horizon %d does not match "+
			"cost horizon %d", i.Dynamics.T(), i.Cost.T())
	}
	if i.X0Mu.Len() != dX {
		return fmt.Errorf("validate: initial state mean has dimension %d, "+
			"expected %d", i.X0Mu.Len(), dX)
	}
	if n, _ := i.X0Sigma.Dims(); n != dX {
		return fmt.Errorf("validate: initial state covariance has "+
			"dimension %d, expected %d", n, dX)
	}
	return nil
}
