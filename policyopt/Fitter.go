package policyopt

import (
	"fmt"
	"math"
	"sort"

	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/sample"
	"github.com/samuelfneumann/gogps/utils/floatutils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// BackendType is a training backend
type BackendType string

const (
	// LinearBackend fits a linear policy in closed form
	LinearBackend BackendType = "linear"

	// NetworkBackend fits a neural network policy by gradient descent
	NetworkBackend BackendType = "network"
)

// Config configures a Fitter
type Config struct {
	Backend BackendType `yaml:"backend"`

	// Iterations is the training budget of each fit
	Iterations int `yaml:"iterations"`

	// EntReg regularizes the policy covariance towards larger
	// variances
	EntReg float64 `yaml:"ent_reg"`

	// InitPolWt is the initial weight of every timestep's examples
	InitPolWt float64 `yaml:"init_pol_wt"`

	// LikelihoodWeighting weights each rollout by its likelihood under
	// the controller that generated it, relative to the other rollouts
	// of its condition
	LikelihoodWeighting bool `yaml:"likelihood_weighting"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Backend:             LinearBackend,
		Iterations:          4000,
		EntReg:              0,
		InitPolWt:           0.01,
		LikelihoodWeighting: true,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	switch c.Backend {
	case LinearBackend, NetworkBackend:
	default:
		return fmt.Errorf("validate: unknown backend %q", c.Backend)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("validate: iterations must be positive")
	}
	if c.EntReg < 0 {
		return fmt.Errorf("validate: ent_reg must be non-negative")
	}
	if c.InitPolWt <= 0 {
		return fmt.Errorf("validate: init_pol_wt must be positive")
	}
	return nil
}

// Target is the regression target of one condition: the actions of its
// controller at the states of its rollouts
type Target struct {
	Condition  int
	Controller *policy.LinearGaussian
	Samples    sample.List

	// Generating is the controller the rollouts were sampled from. If
	// nil, every rollout has the same weight.
	Generating *policy.LinearGaussian
}

// Fitter fits the global policy to the controllers of all conditions
type Fitter struct {
	config  Config
	backend Backend
	policy  *Policy
	polWt   map[int][]float64
}

// NewFitter returns a new Fitter training with backend
func NewFitter(config Config, backend Backend) (*Fitter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newFitter: %w", err)
	}
	if backend == nil {
		return nil, fmt.Errorf("newFitter: nil backend")
	}
	return &Fitter{
		config:  config,
		backend: backend,
		polWt:   make(map[int][]float64),
	}, nil
}

// Config returns the configuration of the Fitter
func (f *Fitter) Config() Config {
	return f.config
}

// Policy returns the most recently fit global policy, or nil if the
// policy has not been fit yet
func (f *Fitter) Policy() *Policy {
	return f.policy
}

// Weights returns the per-timestep weights of a condition's examples
func (f *Fitter) Weights(condition, T int) []float64 {
	wt, ok := f.polWt[condition]
	if !ok || len(wt) != T {
		wt = floatutils.Fill(T, f.config.InitPolWt)
		f.polWt[condition] = wt
	}
	return wt
}

// Fit fits the global policy to the targets with the configured
// iteration budget
func (f *Fitter) Fit(targets []Target) (*Policy, error) {
	return f.FitIterations(targets, f.config.Iterations)
}

// FitIterations fits the global policy to the targets for at most
// iterations training steps
func (f *Fitter) FitIterations(targets []Target, iterations int) (*Policy,
	error) {
	if iterations < 1 {
		return nil, fmt.Errorf("fit: iterations must be positive")
	}
	examples, variance, err := f.Examples(targets)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	handle, err := f.backend.Fit(examples, iterations)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	pol, err := NewPolicy(handle, variance)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	logrus.WithField("examples", examples.Len()).Debugf("fit global "+
		"policy with variance %v", variance)

	f.policy = pol
	return pol, nil
}

// Examples returns the weighted regression examples of the targets and
// the diagonal of the policy covariance that best matches the target
// precisions
func (f *Fitter) Examples(targets []Target) (*Examples, []float64, error) {
	var N, T, dO, dU int
	for _, tgt := range targets {
		if tgt.Samples.Len() == 0 {
			continue
		}
		N += tgt.Samples.Len()
		T = tgt.Controller.T()
		_, dU = tgt.Controller.Dims()
		dO = tgt.Samples[0].DimO()
	}
	if N == 0 {
		return nil, nil, gpserr.NewInsufficientData("examples",
			gpserr.NoCondition, gpserr.NoTimestep)
	}

	obs := mat.NewDense(N*T, dO, nil)
	mean := mat.NewDense(N*T, dU, nil)
	prc := make([]*mat.SymDense, 0, N*T)
	wt := make([]float64, 0, N*T)
	prcSum := make([]float64, dU)

	row := 0
	for _, tgt := range targets {
		if tgt.Samples.Len() == 0 {
			continue
		}
		if tgt.Controller.T() != T {
			panic(fmt.Sprintf("examples: condition %d has horizon %d, "+
				"expected %d", tgt.Condition, tgt.Controller.T(), T))
		}

		polWt := f.Weights(tgt.Condition, T)
		sampleWt := floatutils.Ones(tgt.Samples.Len())
		if f.config.LikelihoodWeighting && tgt.Generating != nil {
			sampleWt = likelihoodWeights(tgt.Generating, tgt.Samples)
		}

		for n, s := range tgt.Samples {
			if s.T() != T {
				panic(fmt.Sprintf("examples: sample %v has horizon %d, "+
					"expected %d", s.ID(), s.T(), T))
			}
			for t := 0; t < T; t++ {
				obs.SetRow(row, s.Observation(t).RawVector().Data)
				mean.SetRow(row, tgt.Controller.Mean(t, s.State(t)).RawVector().Data)
				prc = append(prc, tgt.Controller.InvCovar[t])
				wt = append(wt, polWt[t]*sampleWt[n])
				for i := 0; i < dU; i++ {
					prcSum[i] += tgt.Controller.InvCovar[t].At(i, i)
				}
				row++
			}
		}
	}

	wt = normalizeWeights(wt)

	weighted := make([]*mat.SymDense, len(prc))
	for i := range prc {
		weighted[i] = mat.NewSymDense(dU, nil)
		weighted[i].ScaleSym(wt[i], prc[i])
	}

	// Diagonal of the inverse of the average unweighted precision,
	// regularized towards larger variances
	total := floats.Sum(wt)
	variance := make([]float64, dU)
	for i := range variance {
		variance[i] = total / (prcSum[i] + 2*float64(N*T)*f.config.EntReg)
	}

	return &Examples{
		Obs:       obs,
		Mean:      mean,
		Precision: weighted,
		Weight:    wt,
	}, variance, nil
}

// normalizeWeights rescales the weights to average one, caps each at
// twice the median of the non-negligible weights, and divides by that
// median
func normalizeWeights(wt []float64) []float64 {
	out := make([]float64, len(wt))
	copy(out, wt)

	sum := floats.Sum(out)
	if !(sum > 0) {
		return floatutils.Ones(len(out))
	}
	floats.Scale(float64(len(out))/sum, out)

	var large []float64
	for _, w := range out {
		if w > 1e-2 {
			large = append(large, w)
		}
	}
	if len(large) == 0 {
		return out
	}
	sort.Float64s(large)
	median := stat.Quantile(0.5, stat.Empirical, large, nil)

	for i := range out {
		out[i] = math.Min(out[i], 2*median) / median
	}
	return out
}

// likelihoodWeights returns the weight of each sample proportional to
// the geometric mean over timesteps of its likelihood under the
// generating controller, scaled to average one. Samples hold the
// actions executed after clipping to the action bounds, so with bounded
// actions a clipped step is scored at the bound rather than at the
// sampled action.
func likelihoodWeights(ctrl *policy.LinearGaussian, samples sample.List) []float64 {
	logp := make([]float64, samples.Len())
	for n, s := range samples {
		for t := 0; t < s.T(); t++ {
			logp[n] += ctrl.LogProb(t, s.State(t), s.Action(t))
		}
		logp[n] /= float64(s.T())
	}
	norm := floats.LogSumExp(logp)
	wt := make([]float64, len(logp))
	for n := range logp {
		wt[n] = float64(len(logp)) * math.Exp(logp[n]-norm)
	}
	return wt
}
