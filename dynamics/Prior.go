package dynamics

import (
	"fmt"

	"github.com/samuelfneumann/gogps/gmm"
	"github.com/samuelfneumann/gogps/gpserr"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PriorConfig configures a Gaussian mixture prior over transitions
// [x_t; u_t; x_{t+1}]
type PriorConfig struct {
	// MaxClusters bounds the number of mixture components
	MaxClusters int `yaml:"max_clusters"`

	// MinSamplesPerCluster is the number of transitions each cluster
	// must have before another cluster is added
	MinSamplesPerCluster int `yaml:"min_samples_per_cluster"`

	// MaxSamples bounds the number of rollouts retained for fitting,
	// the oldest being dropped first
	MaxSamples int `yaml:"max_samples"`

	// Strength multiplies the pseudo-sample counts of the prior
	Strength float64 `yaml:"strength"`

	// MaxIterations bounds the number of EM iterations per fit
	MaxIterations int `yaml:"max_iterations"`
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
	return nil
}

// DefaultPriorConfig returns the default prior configuration
func DefaultPriorConfig() PriorConfig {
	return PriorConfig{
		MaxClusters:          20,
		MinSamplesPerCluster: 40,
		MaxSamples:           20,
		Strength:             1.0,
		MaxIterations:        gmm.DefaultMaxIterations,
	}
}

// PriorGMM is a Gaussian mixture prior over transitions, refit from the
// most recent rollouts. It is not safe to Update a PriorGMM while it is
// being queried.
type PriorGMM struct {
	config PriorConfig
	x      []mat.Matrix
	u      []mat.Matrix
	gmm    *gmm.GMM
	dX, dU int
	T      int
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

// Empty returns whether the prior has not yet been fit
func (p *PriorGMM) Empty() bool {
	return p.gmm.Empty()
}

// Rollouts returns the number of rollouts retained for fitting
func (p *PriorGMM) Rollouts() int {
	return len(p.x)
}

// Clusters returns the number of mixture components
func (p *PriorGMM) Clusters() int {
	return p.gmm.K()
}

// TrainingPoints returns the number of transitions the mixture was last
// fit to
func (p *PriorGMM) TrainingPoints() int {
	return p.gmm.N()
}

// Mixture returns the underlying mixture
func (p *PriorGMM) Mixture() *gmm.GMM {
	return p.gmm
}

// Clear drops all retained rollouts. The mixture itself is kept until
// the next Update.
func (p *PriorGMM) Clear() {
	p.x = nil
	p.u = nil
}

// Update adds rollouts of states X and actions U, drops the oldest
// rollouts beyond the configured maximum, and refits the mixture.
// Rollouts must contain at least one transition.
func (p *PriorGMM) Update(X, U []mat.Matrix) error {
	if len(X) != len(U) {
		panic(fmt.Sprintf("update: %d state rollouts but %d action rollouts",
			len(X), len(U)))
	}
	for i := range X {
		T, dX := X[i].Dims()
		tu, dU := U[i].Dims()
		if T != tu {
			panic(fmt.Sprintf("update: rollout %d has %d states but %d "+
				"actions", i, T, tu))
		}
		if T < 2 {
			return gpserr.NewInsufficientData("update", gpserr.NoCondition,
				gpserr.NoTimestep)
		}
		if p.T == 0 {
			p.dX, p.dU, p.T = dX, dU, T
		} else if dX != p.dX || dU != p.dU || T != p.T {
			panic(fmt.Sprintf("update: rollout %d has shape (%d, %d, %d), "+
				"expected (%d, %d, %d)", i, T, dX, dU, p.T, p.dX, p.dU))
		}
	}

	p.x = append(p.x, X...)
	p.u = append(p.u, U...)
	if start := len(p.x) - p.config.MaxSamples; start > 0 {
		p.x = append([]mat.Matrix(nil), p.x[start:]...)
		p.u = append([]mat.Matrix(nil), p.u[start:]...)
	}
	if len(p.x) == 0 {
		return fmt.Errorf("update: no rollouts to fit")
	}

	data := transitions(p.x, p.u)
	K := gmm.ClusterCount(len(p.x), p.T-1, p.config.MinSamplesPerCluster,
		p.config.MaxClusters)
	if _, err := p.gmm.Update(data, K, p.config.MaxIterations); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// Eval returns the Normal-inverse-Wishart prior over transitions local
// to the transitions in the rows of pts. A nil pts gives the prior of
// the mixture as a whole.
func (p *PriorGMM) Eval(pts mat.Matrix) (*gmm.NIW, error) {
	if pts != nil {
		if _, D := pts.Dims(); D != 2*p.dX+p.dU {
			panic(fmt.Sprintf("eval: points must have dimension %d, have %d",
				2*p.dX+p.dU, D))
		}
	}

	niw, err := p.gmm.Inference(pts)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return niw.Scale(p.config.Strength), nil
}

// InitialState returns the Normal-inverse-Wishart prior over initial
// states given by the retained rollouts
func (p *PriorGMM) InitialState() (*gmm.NIW, error) {
	N := len(p.x)
	if N == 0 {
		return nil, fmt.Errorf("initialState: no retained rollouts")
	}

	mu0 := mat.NewVecDense(p.dX, nil)
	Phi := mat.NewSymDense(p.dX, nil)
	col := make([]float64, N)
	strength := float64(p.dX) * p.config.Strength
	for i := 0; i < p.dX; i++ {
		for n := range p.x {
			col[n] = p.x[n].At(0, i)
		}
		mean := stat.Mean(col, nil)
		variance := stat.MomentAbout(2, col, mean, nil)
		mu0.SetVec(i, mean)
		Phi.SetSym(i, i, strength*variance)
	}

	return &gmm.NIW{Mu0: mu0, Phi: Phi, M: strength, N0: strength}, nil
}

// transitions returns the (T-1)N x (2dX+dU) matrix of transitions
// [x_t; u_t; x_{t+1}] of the rollouts
func transitions(X, U []mat.Matrix) *mat.Dense {
	N := len(X)
	T, dX := X[0].Dims()
	_, dU := U[0].Dims()

	data := mat.NewDense(N*(T-1), 2*dX+dU, nil)
	row := 0
	for n := 0; n < N; n++ {
		for t := 0; t < T-1; t++ {
			for i := 0; i < dX; i++ {
				data.Set(row, i, X[n].At(t, i))
				data.Set(row, dX+dU+i, X[n].At(t+1, i))
			}
			for i := 0; i < dU; i++ {
				data.Set(row, dX+i, U[n].At(t, i))
			}
			row++
		}
	}
	return data
}

// timestepTransitions returns the N x (2dX+dU) matrix of the
// transitions at timestep t of each rollout
func timestepTransitions(X, U []mat.Matrix, t, dX, dU int) *mat.Dense {
	data := mat.NewDense(len(X), 2*dX+dU, nil)
	for n := range X {
		for i := 0; i < dX; i++ {
			data.Set(n, i, X[n].At(t, i))
			data.Set(n, dX+dU+i, X[n].At(t+1, i))
		}
		for i := 0; i < dU; i++ {
			data.Set(n, dX+i, U[n].At(t, i))
		}
	}
	return data
}
