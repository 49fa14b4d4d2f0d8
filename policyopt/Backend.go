// Package policyopt fits a global policy to the local controllers of
// every condition by weighted supervised regression, and linearizes
// the global policy around the sampled trajectories with a Gaussian
// mixture prior
package policyopt

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Examples is a set of weighted regression examples. Example i asks for
// the policy to output Mean row i at observation Obs row i, with the
// squared error weighted by Precision[i]. The precisions already
// include the per-example weights.
type Examples struct {
	Obs       *mat.Dense
	Mean      *mat.Dense
	Precision []*mat.SymDense
	Weight    []float64
}

// Len returns the number of examples
func (e *Examples) Len() int {
	r, _ := e.Obs.Dims()
	return r
}

// Dims returns the observation and action dimensions of the examples
func (e *Examples) Dims() (dO, dU int) {
	_, dO = e.Obs.Dims()
	_, dU = e.Mean.Dims()
	return dO, dU
}

// Validate returns an error if the examples are inconsistent
func (e *Examples) Validate() error {
	if e.Obs == nil || e.Mean == nil {
		return fmt.Errorf("validate: missing observations or means")
	}
	N := e.Len()
	if r, _ := e.Mean.Dims(); r != N {
		return fmt.Errorf("validate: %d observations but %d means", N, r)
	}
	if len(e.Precision) != N || len(e.Weight) != N {
		return fmt.Errorf("validate: %d observations but %d precisions "+
			"and %d weights", N, len(e.Precision), len(e.Weight))
	}
	_, dU := e.Dims()
	for i, prc := range e.Precision {
		if n, _ := prc.Dims(); n != dU {
			return fmt.Errorf("validate: precision %d has dimension %d, "+
				"expected %d", i, n, dU)
		}
	}
	return nil
}

// Handle is an opaque fitted global policy. Predict returns the mean
// action at an observation.
type Handle interface {
	Predict(obs mat.Vector) *mat.VecDense
}

// Backend trains a function approximator on weighted examples. Each
// call to Fit continues training from the previous fit for at most
// iterations steps.
type Backend interface {
	Fit(examples *Examples, iterations int) (Handle, error)
}
