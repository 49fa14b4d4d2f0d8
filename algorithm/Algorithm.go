// Package algorithm implements the iterations of guided policy search:
// rollouts are sampled from time-varying linear Gaussian controllers,
// linear Gaussian dynamics are fit to them, each controller is improved
// by trust-region trajectory optimization, a global policy is fit to
// the improved controllers, and the size of each trust region is
// adapted from how well the previous improvement was predicted.
//
// Each iteration is driven by an explicit state machine:
//
//	Init → Sample → FitDynamics → OptimizeTrajectories → FitPolicy →
//	AdaptStep → Sample → ... → Done
//
// The only blocking calls into collaborators are rollouts in the
// Sample state and training-backend fits in the FitPolicy state (and,
// in the policy constraint mode, the FitDynamics state).
package algorithm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gogps/cost"
	"github.com/samuelfneumann/gogps/dynamics"
	"github.com/samuelfneumann/gogps/environment"
	"github.com/samuelfneumann/gogps/experiment/checkpointer"
	"github.com/samuelfneumann/gogps/experiment/tracker"
	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/policyopt"
	"github.com/samuelfneumann/gogps/sample"
	"github.com/samuelfneumann/gogps/stepsize"
	"github.com/samuelfneumann/gogps/trajopt"
)

// State is a stage of the iteration state machine
type State int

const (
	Init State = iota
	Sample
	FitDynamics
	OptimizeTrajectories
	FitPolicy
	AdaptStep
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Sample:
		return "Sample"
	case FitDynamics:
		return "FitDynamics"
	case OptimizeTrajectories:
		return "OptimizeTrajectories"
	case FitPolicy:
		return "FitPolicy"
	case AdaptStep:
		return "AdaptStep"
	default:
		return "Done"
	}
}

// Algorithm runs guided policy search on an environment. An Algorithm
// is driven by a single goroutine; it parallelizes per-condition work
// internally.
type Algorithm struct {
	config  Config
	sampler *environment.Sampler
	cost    cost.Cost
	dyn     dynamics.Fitter
	trajOpt *trajopt.LQR
	step    *stepsize.Controller
	fitter  *policyopt.Fitter

	// polPrior is only used in the policy constraint mode
	polPrior *policyopt.PriorGMM

	// checkpointer may be nil
	checkpointer checkpointer.Checkpointer
	trackers     []tracker.Tracker

	conds     []*condition
	dX, dU    int
	state     State
	iteration int
	err       error
}

// New returns a new Algorithm that runs on env and fits its global
// policy with backend. If ck is not nil, a Snapshot is passed to it at
// the end of every iteration.
func New(config Config, env environment.Environment, backend policyopt.Backend,
	ck checkpointer.Checkpointer) (*Algorithm, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	spec := env.Spec()
	dX, dU := spec.StateDim, spec.ActionDim
	if err := config.Init.Validate(dX, dU); err != nil {
		return nil, fmt.Errorf("new: init: %w", err)
	}

	c, err := cost.New(config.Cost, dX, dU)
	if err != nil {
		return nil, fmt.Errorf("new: cost: %w", err)
	}
	dyn, err := dynamics.New(config.Dynamics, config.Seed+1)
	if err != nil {
		return nil, fmt.Errorf("new: dynamics: %w", err)
	}
	lqr, err := trajopt.New(config.TrajOpt)
	if err != nil {
		return nil, fmt.Errorf("new: traj_opt: %w", err)
	}
	step, err := stepsize.New(config.StepSize)
	if err != nil {
		return nil, fmt.Errorf("new: step_size: %w", err)
	}
	fitter, err := policyopt.NewFitter(config.PolicyOpt, backend)
	if err != nil {
		return nil, fmt.Errorf("new: policy_opt: %w", err)
	}

	var polPrior *policyopt.PriorGMM
	if config.Constraint == PolicyConstraint {
		polPrior, err = policyopt.NewPriorGMM(config.PolicyPrior,
			config.Seed+2)
		if err != nil {
			return nil, fmt.Errorf("new: policy_prior: %w", err)
		}
	}

	capacity := config.NumSamples
	if config.DynamicsSamples == AllRetained {
		capacity = config.MaxRetainedSamples
	}
	conds := make([]*condition, env.Conditions())
	for m := range conds {
		conds[m] = &condition{
			index:    m,
			buffer:   sample.NewBuffer(capacity),
			eta:      config.InitialEta,
			stepMult: step.Clamp(1.0),
		}
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("new: environment has no conditions")
	}

	return &Algorithm{
		config:       config,
		sampler:      environment.NewSampler(env, true, config.Seed),
		cost:         c,
		dyn:          dyn,
		trajOpt:      lqr,
		step:         step,
		fitter:       fitter,
		polPrior:     polPrior,
		checkpointer: ck,
		conds:        conds,
		dX:           dX,
		dU:           dU,
		state:        Init,
	}, nil
}

// Run steps the state machine until all iterations are done or a
// stage fails. A failed run cannot be resumed.
func (a *Algorithm) Run(ctx context.Context) error {
	for a.state != Done {
		if _, err := a.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step runs the current stage and returns the state that follows it
func (a *Algorithm) Step(ctx context.Context) (State, error) {
	if a.err != nil {
		return a.state, a.err
	}

	var err error
	next := a.state
	switch a.state {
	case Init:
		err = a.initialize()
		next = Sample

	case Sample:
		err = a.sample(ctx)
		next = FitDynamics

	case FitDynamics:
		err = a.fitDynamics()
		next = OptimizeTrajectories

	case OptimizeTrajectories:
		err = a.optimizeTrajectories()
		next = FitPolicy

	case FitPolicy:
		err = a.fitPolicy()
		next = AdaptStep

	case AdaptStep:
		err = a.adaptStep()
		next = Sample
		if a.iteration >= a.config.Iterations {
			next = Done
		}

	case Done:
		return Done, nil
	}

	if err != nil {
		a.err = fmt.Errorf("step: iteration %d: %w", a.iteration, err)
		logrus.WithFields(logrus.Fields{
			"iteration": a.iteration,
			"state":     a.state,
		}).Errorf("run aborted: %v", err)
		return a.state, a.err
	}
	a.state = next
	return next, nil
}

// Register registers a Tracker, which is sent the mean rollout cost of
// each condition at the end of every iteration
func (a *Algorithm) Register(t tracker.Tracker) {
	a.trackers = append(a.trackers, t)
}

// Save saves the data of every registered Tracker
func (a *Algorithm) Save() error {
	for _, t := range a.trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("save: %w", err)
		}
	}
	return nil
}

// State returns the stage that will run on the next call to Step
func (a *Algorithm) State() State {
	return a.state
}

// Iteration returns the number of completed iterations
func (a *Algorithm) Iteration() int {
	return a.iteration
}

// Controllers returns the current controller of each condition
func (a *Algorithm) Controllers() []*policy.LinearGaussian {
	out := make([]*policy.LinearGaussian, len(a.conds))
	for m, c := range a.conds {
		out[m] = c.ctrl
	}
	return out
}

// Policy returns the global policy, or nil if it has not been fit
func (a *Algorithm) Policy() *policyopt.Policy {
	return a.fitter.Policy()
}

// StepMultipliers returns the trust-region step multiplier of each
// condition
func (a *Algorithm) StepMultipliers() []float64 {
	out := make([]float64, len(a.conds))
	for m, c := range a.conds {
		out[m] = c.stepMult
	}
	return out
}

// Etas returns the last Lagrange multiplier of each condition
func (a *Algorithm) Etas() []float64 {
	out := make([]float64, len(a.conds))
	for m, c := range a.conds {
		out[m] = c.eta
	}
	return out
}

// Costs returns the mean total cost of the most recent rollouts of each
// condition
func (a *Algorithm) Costs() []float64 {
	out := make([]float64, len(a.conds))
	for m, c := range a.conds {
		out[m] = c.meanCost()
	}
	return out
}

func (a *Algorithm) logger(m int) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"iteration": a.iteration,
		"condition": m,
	})
}

// degrade handles an error of a condition's per-iteration work. A
// numerical instability is absorbed by keeping the condition's
// controller if so configured. Any other error is returned.
func (a *Algorithm) degrade(c *condition, op string, err error) error {
	if a.config.OnInstability == Retain && gpserr.IsNumericalInstability(err) {
		c.degraded = true
		a.logger(c.index).Warnf("%v: keeping previous controller: %v", op,
			err)
		return nil
	}
	return fmt.Errorf("%v: %w", op, err)
}

// initialize creates the initial controller of each condition
func (a *Algorithm) initialize() error {
	env := a.sampler.Environment()
	for _, c := range a.conds {
		x0 := env.Start(c.index)
		ctrl, err := policy.NewInitial(a.config.Init, x0, a.config.T, a.dU,
			a.config.TrajOpt.MinCovarEig)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		c.ctrl = ctrl
	}
	logrus.WithField("conditions", len(a.conds)).Infof("initialized %v "+
		"controllers", a.config.Init.Type)
	return nil
}

// sample records the rollouts of each condition's controller. Rollouts
// are recorded one condition at a time since environments are not safe
// for concurrent use.
func (a *Algorithm) sample(ctx context.Context) error {
	for _, c := range a.conds {
		smps, err := a.sampler.Rollouts(ctx, c.index, c.ctrl, a.config.T,
			a.config.NumSamples)
		if err != nil {
			return fmt.Errorf("sample: %w", err)
		}
		c.samples = smps
		c.buffer.Add(smps...)
	}
	return nil
}

// fitDynamics refits the dynamics prior to the new rollouts of every
// condition, then fits the dynamics, cost expansion, and initial state
// distribution of each condition in parallel
func (a *Algorithm) fitDynamics() error {
	if prior := a.dyn.Prior(); prior != nil {
		var X, U []mat.Matrix
		for _, c := range a.conds {
			X = append(X, c.samples.X()...)
			U = append(U, c.samples.U()...)
		}
		if err := prior.Update(X, U); err != nil {
			return fmt.Errorf("fitDynamics: %w", err)
		}
		logrus.WithField("iteration", a.iteration).Debugf("dynamics prior "+
			"has %d clusters over %d rollouts", prior.Clusters(),
			prior.Rollouts())
	}

	var g errgroup.Group
	for _, c := range a.conds {
		c := c
		g.Go(func() error { return a.fitCondition(c) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if a.config.Constraint == PolicyConstraint {
		return a.linearizePolicy()
	}
	return nil
}

func (a *Algorithm) fitCondition(c *condition) error {
	c.degraded = false
	c.info = nil
	c.target = nil

	var exp *cost.Expansion
	c.costs, exp = evalCost(a.cost, c.samples)

	dynSamples := c.samples
	if a.config.DynamicsSamples == AllRetained {
		dynSamples = c.buffer.All()
	}
	dyn, err := a.dyn.Fit(c.index, dynSamples.X(), dynSamples.U())
	if err != nil {
		return a.degrade(c, "fitDynamics", err)
	}

	mu, sigma, err := dynamics.InitialState(c.index, c.samples.X(),
		a.dyn.Prior(), a.config.InitialStateVar)
	if err != nil {
		return a.degrade(c, "fitDynamics", err)
	}

	c.info = &trajopt.Info{
		Dynamics: dyn,
		Cost:     exp,
		X0Mu:     mu,
		X0Sigma:  sigma,
	}
	a.logger(c.index).Debugf("fit dynamics to %d rollouts, mean cost %.6g",
		dynSamples.Len(), c.meanCost())
	return nil
}

// linearizePolicy refits the policy prior and linearizes the global
// policy along the rollouts of each condition. On the first iteration,
// the global policy is first fit to the initial controllers.
func (a *Algorithm) linearizePolicy() error {
	if a.fitter.Policy() == nil {
		targets := make([]policyopt.Target, len(a.conds))
		for m, c := range a.conds {
			targets[m] = policyopt.Target{
				Condition:  c.index,
				Controller: c.ctrl,
				Samples:    c.samples,
				Generating: c.ctrl,
			}
		}
		if _, err := a.fitter.Fit(targets); err != nil {
			return fmt.Errorf("linearizePolicy: %w", err)
		}
		logrus.WithField("iteration", a.iteration).Debugf("fit global " +
			"policy to the initial controllers")
	}
	pol := a.fitter.Policy()

	var X, obs []mat.Matrix
	for _, c := range a.conds {
		X = append(X, c.samples.X()...)
		obs = append(obs, c.samples.Obs()...)
	}
	if err := a.polPrior.Update(X, obs, pol); err != nil {
		return fmt.Errorf("linearizePolicy: %w", err)
	}

	for _, c := range a.conds {
		if c.degraded {
			continue
		}
		lin, err := a.polPrior.Linearize(c.index, c.samples.X(),
			c.samples.Obs(), pol, a.config.TrajOpt.MinCovarEig)
		if err != nil {
			if err := a.degrade(c, "linearizePolicy", err); err != nil {
				return err
			}
			continue
		}
		c.target = lin
	}
	return nil
}

// optimizeTrajectories finds the next controller of each condition in
// parallel
func (a *Algorithm) optimizeTrajectories() error {
	var g errgroup.Group
	for _, c := range a.conds {
		c := c
		g.Go(func() error { return a.optimizeCondition(c) })
	}
	return g.Wait()
}

func (a *Algorithm) optimizeCondition(c *condition) error {
	c.next = c.ctrl
	if c.degraded {
		return nil
	}

	target := c.ctrl
	if a.config.Constraint == PolicyConstraint {
		target = c.target
	}
	res, err := a.trajOpt.Update(trajopt.Problem{
		Condition: c.index,
		Info:      c.info,
		Target:    target,
		Eta:       c.eta,
		KLStep:    a.config.KLStep * c.stepMult,
		MaxEnt:    a.config.MaxEntTraj,
	})
	if err != nil && !gpserr.IsSearchExhausted(err) {
		return a.degrade(c, "optimizeTrajectories", err)
	}

	c.next = res.Controller
	c.eta = res.Eta
	c.kl = res.KL
	a.logger(c.index).Debugf("new controller with eta %.4g and kl %.4g "+
		"(bound %.4g) after %d iterations", res.Eta, res.KL, res.Bound,
		res.Iterations)
	return nil
}

// fitPolicy fits the global policy to the new controllers along the
// current rollouts
func (a *Algorithm) fitPolicy() error {
	targets := make([]policyopt.Target, len(a.conds))
	for m, c := range a.conds {
		targets[m] = policyopt.Target{
			Condition:  c.index,
			Controller: c.next,
			Samples:    c.samples,
			Generating: c.ctrl,
		}
	}
	pol, err := a.fitter.Fit(targets)
	if err != nil {
		return fmt.Errorf("fitPolicy: %w", err)
	}
	logrus.WithField("iteration", a.iteration).Debugf("global policy "+
		"variance %v", pol.Variance())
	return nil
}

// adaptStep adapts the step multiplier of each condition from the
// improvement of its previous iteration, then replaces each controller
// with its successor
func (a *Algorithm) adaptStep() error {
	mode := a.step.Config().Mode
	for _, c := range a.conds {
		logger := a.logger(c.index)
		if !c.degraded && c.prevCtrl != nil && c.prevInfo != nil &&
			c.info != nil {
			var est stepsize.Estimate
			if mode == stepsize.MonteCarlo {
				est = stepsize.EstimateMonteCarlo(c.prevCtrl, c.ctrl,
					c.prevInfo, c.prevCosts, c.costs)
			} else {
				est = stepsize.EstimateLaplace(c.prevCtrl, c.ctrl, c.prevInfo,
					c.info)
			}
			old := c.stepMult
			c.stepMult = a.step.Adjust(old, est.Predicted, est.Actual)
			logger.Debugf("predicted improvement %.4g, actual %.4g: step "+
				"multiplier %.4g -> %.4g", est.Predicted, est.Actual, old,
				c.stepMult)
		}

		logger.WithFields(logrus.Fields{
			"cost":      c.meanCost(),
			"eta":       c.eta,
			"kl":        c.kl,
			"step_mult": c.stepMult,
			"degraded":  c.degraded,
		}).Info("iteration complete")

		c.prevCtrl, c.prevInfo, c.prevCosts = c.ctrl, c.info, c.costs
		c.ctrl, c.next = c.next, nil
	}

	costs := a.Costs()
	for _, t := range a.trackers {
		t.Track(a.iteration, costs)
	}
	if a.checkpointer != nil {
		if err := a.checkpointer.Checkpoint(a.iteration,
			a.Snapshot()); err != nil {
			return fmt.Errorf("adaptStep: %w", err)
		}
	}
	a.iteration++
	return nil
}
