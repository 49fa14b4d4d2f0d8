package algorithm

import (
	"github.com/samuelfneumann/gogps/gmm"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/policyopt"
)

// Snapshot is the persisted state of a run after an iteration. It can
// be encoded with encoding/gob provided that the concrete type of the
// policy Handle is registered with gob, which the backends in this
// module do.
type Snapshot struct {
	Iteration   int
	Controllers []policy.Params
	Eta         []float64
	StepMult    []float64

	// Mixture parameters of the dynamics and policy priors, nil if the
	// prior is not used
	DynamicsPrior *gmm.Params
	PolicyPrior   *gmm.Params

	// Policy is nil if the global policy has not been fit
	Policy         policyopt.Handle
	PolicyVariance []float64
}

// Snapshot returns the current state of the run
func (a *Algorithm) Snapshot() *Snapshot {
	s := &Snapshot{
		Iteration:   a.iteration,
		Controllers: make([]policy.Params, len(a.conds)),
		Eta:         a.Etas(),
		StepMult:    a.StepMultipliers(),
	}
	for m, c := range a.conds {
		if c.ctrl != nil {
			s.Controllers[m] = c.ctrl.Params()
		}
	}

	if prior := a.dyn.Prior(); prior != nil && !prior.Empty() {
		p := prior.Mixture().Params()
		s.DynamicsPrior = &p
	}
	if a.polPrior != nil && !a.polPrior.Mixture().Empty() {
		p := a.polPrior.Mixture().Params()
		s.PolicyPrior = &p
	}
	if pol := a.fitter.Policy(); pol != nil {
		s.Policy = pol.Handle()
		s.PolicyVariance = pol.Variance()
	}
	return s
}
