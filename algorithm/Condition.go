package algorithm

import (
	"gonum.org/v1/gonum/floats"

	"github.com/samuelfneumann/gogps/cost"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/sample"
	"github.com/samuelfneumann/gogps/trajopt"
)

// condition holds everything the algorithm tracks for one condition.
// During the parallel stages of an iteration, a goroutine only writes
// to its own condition.
type condition struct {
	index  int
	buffer *sample.Buffer

	// ctrl generated the current rollouts, and next is its
	// replacement found by trajectory optimization
	ctrl    *policy.LinearGaussian
	next    *policy.LinearGaussian
	samples sample.List
	costs   []float64
	info    *trajopt.Info

	// target is the linearization of the global policy that the trust
	// region is centred on in the policy constraint mode
	target *policy.LinearGaussian

	// State of the previous iteration, used to adapt the step size
	prevCtrl  *policy.LinearGaussian
	prevInfo  *trajopt.Info
	prevCosts []float64

	eta      float64
	stepMult float64
	kl       float64

	// degraded is set when a numerical instability forced the
	// condition to keep its controller for the iteration
	degraded bool
}

// meanCost returns the mean total cost of the current rollouts
func (c *condition) meanCost() float64 {
	if len(c.costs) == 0 {
		return 0
	}
	return floats.Sum(c.costs) / float64(len(c.costs))
}

// evalCost evaluates the cost of each rollout, returning the total cost
// of each rollout and the average of the cost expansions around each
// rollout
func evalCost(c cost.Cost, samples sample.List) ([]float64,
	*cost.Expansion) {
	totals := make([]float64, len(samples))
	expansions := make([]*cost.Expansion, len(samples))
	for i, smp := range samples {
		d := c.Eval(smp.X(), smp.U())
		totals[i] = d.Total()
		expansions[i] = cost.Expand(smp.X(), smp.U(), d)
	}
	return totals, cost.Mean(expansions)
}
