package policyopt

import (
	"fmt"

	"github.com/samuelfneumann/gogps/gmm"
	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// firstStepReg regularizes the state covariance at the first timestep,
// where all rollouts of a condition may share their initial state
const firstStepReg = 1e-8

// SampleMode determines how new rollouts enter the training set of the
// policy prior
type SampleMode string

const (
	// Add appends new rollouts to those retained
	Add SampleMode = "add"

	// Replace discards the retained rollouts first
	Replace SampleMode = "replace"
)

// PriorConfig configures a Gaussian mixture prior over state and global
// policy action pairs [x_t; π(o_t)]
type PriorConfig struct {
	MaxClusters          int        `yaml:"max_clusters"`
	MinSamplesPerCluster int        `yaml:"min_samples_per_cluster"`
	MaxSamples           int        `yaml:"max_samples"`
	Strength             float64    `yaml:"strength"`
	MaxIterations        int        `yaml:"max_iterations"`
	Mode                 SampleMode `yaml:"mode"`
}

// DefaultPriorConfig returns the default prior configuration
func DefaultPriorConfig() PriorConfig {
	return PriorConfig{
		MaxClusters:          20,
		MinSamplesPerCluster: 40,
		MaxSamples:           20,
		Strength:             1.0,
		MaxIterations:        gmm.DefaultMaxIterations,
		Mode:                 Replace,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c PriorConfig) Validate() error {
	if c.MaxClusters < 1 {
		return fmt.Errorf("validate: max_clusters must be positive")
	}
	if c.MinSamplesPerCluster < 1 {
		return fmt.Errorf("validate: min_samples_per_cluster must be positive")
	}
	if c.MaxSamples < 1 {
		return fmt.Errorf("validate: max_samples must be positive")
	}
	if c.Strength <= 0 {
		return fmt.Errorf("validate: strength must be positive")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("validate: max_iterations must be positive")
	}
	switch c.Mode {
	case Add, Replace:
		return nil
	}
	return fmt.Errorf("validate: unknown sample mode %q", c.Mode)
}

// PriorGMM is a Gaussian mixture prior over the global policy, used to
// linearize it around the sampled trajectories of a condition
type PriorGMM struct {
	config PriorConfig
	x      []mat.Matrix
	obs    []mat.Matrix
	gmm    *gmm.GMM
}

// NewPriorGMM returns a new, empty PriorGMM
func NewPriorGMM(config PriorConfig, seed uint64) (*PriorGMM, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newPriorGMM: %w", err)
	}
	return &PriorGMM{config: config, gmm: gmm.New(seed)}, nil
}

// Config returns the configuration of the prior
func (p *PriorGMM) Config() PriorConfig {
	return p.config
}

// Mixture returns the underlying mixture
func (p *PriorGMM) Mixture() *gmm.GMM {
	return p.gmm
}

// Rollouts returns the number of rollouts retained for fitting
func (p *PriorGMM) Rollouts() int {
	return len(p.x)
}

// Update adds the rollouts of states X and observations obs according
// to the sample mode, drops the oldest rollouts beyond the configured
// maximum, and refits the mixture to the states paired with the mean
// actions of pol
func (p *PriorGMM) Update(X, obs []mat.Matrix, pol *Policy) error {
	if len(X) != len(obs) {
		panic(fmt.Sprintf("update: %d state rollouts but %d observation "+
			"rollouts", len(X), len(obs)))
	}
	if p.config.Mode == Replace {
		p.x, p.obs = nil, nil
	}
	p.x = append(p.x, X...)
	p.obs = append(p.obs, obs...)
	if start := len(p.x) - p.config.MaxSamples; start > 0 {
		p.x = append([]mat.Matrix(nil), p.x[start:]...)
		p.obs = append([]mat.Matrix(nil), p.obs[start:]...)
	}
	if len(p.x) == 0 {
		return gpserr.NewInsufficientData("update", gpserr.NoCondition,
			gpserr.NoTimestep)
	}

	U := pol.Means(p.obs)
	T, dX := p.x[0].Dims()
	_, dU := U[0].Dims()

	data := mat.NewDense(len(p.x)*T, dX+dU, nil)
	row := 0
	for n := range p.x {
		for t := 0; t < T; t++ {
			data.SetRow(row, matutils.Concat(matutils.Row(p.x[n], t),
				U[n].RowView(t)).RawVector().Data)
			row++
		}
	}

	K := gmm.ClusterCount(len(p.x), T, p.config.MinSamplesPerCluster,
		p.config.MaxClusters)
	if _, err := p.gmm.Update(data, K, p.config.MaxIterations); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// Linearize fits a time-varying linear Gaussian approximation of the
// global policy pol along the rollouts of states X and observations
// obs of one condition. The covariance of the approximation is the
// conditional covariance of the fit plus the policy covariance.
func (p *PriorGMM) Linearize(condition int, X, obs []mat.Matrix, pol *Policy,
	minEig float64) (*policy.LinearGaussian, error) {
	N := len(X)
	if N == 0 {
		return nil, gpserr.NewInsufficientData("linearize", condition,
			gpserr.NoTimestep)
	}
	T, dX := X[0].Dims()
	U := pol.Means(obs)
	_, dU := U[0].Dims()
	polCovar := pol.Covar()

	K := make([]*mat.Dense, T)
	k := make([]*mat.VecDense, T)
	S := make([]*mat.SymDense, T)
	wts := make([]float64, N)
	for n := range wts {
		wts[n] = 1 / float64(N)
	}
	for t := 0; t < T; t++ {
		pts := mat.NewDense(N, dX+dU, nil)
		for n := 0; n < N; n++ {
			pts.SetRow(n, matutils.Concat(matutils.Row(X[n], t),
				U[n].RowView(t)).RawVector().Data)
		}

		var prior *gmm.NIW
		if !p.gmm.Empty() {
			niw, err := p.gmm.Inference(pts)
			if err != nil {
				return nil, gpserr.NewNumericalInstability("linearize",
					condition, err)
			}
			prior = niw.Scale(p.config.Strength)
		}

		reg := 0.0
		if t == 0 {
			reg = firstStepReg
		}
		cond, err := gmm.FitConditional(pts, wts, prior, dX, reg)
		if err != nil {
			return nil, gpserr.NewNumericalInstability("linearize",
				condition, fmt.Errorf("timestep %d: %w", t, err))
		}

		K[t] = cond.F
		k[t] = cond.Fv
		S[t] = mat.NewSymDense(dU, nil)
		S[t].AddSym(cond.Covar, polCovar)
	}

	lin, err := policy.NewLinearGaussian(K, k, S, minEig)
	if err != nil {
		return nil, gpserr.NewNumericalInstability("linearize", condition, err)
	}
	return lin, nil
}
