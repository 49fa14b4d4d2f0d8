package dynamics

import (
	"fmt"

	"github.com/samuelfneumann/gogps/gmm"
	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Fitter fits time-varying linear Gaussian dynamics to the rollouts of
// a single condition. Fitting does not modify the Fitter, so a single
// Fitter may fit several conditions concurrently.
type Fitter interface {
	// Fit fits dynamics to rollouts with states X (each T x dX) and
	// actions U (each T x dU)
	Fit(condition int, X, U []mat.Matrix) (*LinearGaussian, error)

	// Prior returns the prior used by the Fitter, or nil if the Fitter
	// uses no prior
	Prior() *PriorGMM
}

// Type is a type of dynamics Fitter
type Type string

const (
	// LRType fits dynamics by regularized linear regression
	LRType Type = "lr"

	// LRPriorType fits dynamics by Bayesian linear regression with a
	// Gaussian mixture prior
	LRPriorType Type = "lr_prior"
)

// Config configures a dynamics Fitter
type Config struct {
	Type Type `yaml:"type"`

	// Regularization is added to the diagonal of the state-action block
	// of the joint covariance before conditioning
	Regularization float64 `yaml:"regularization"`

	// MinCovarEig is the smallest eigenvalue allowed in a fitted
	// dynamics covariance
	MinCovarEig float64 `yaml:"min_covar_eig"`

	Prior PriorConfig `yaml:"prior"`
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if c.Regularization < 0 {
		return fmt.Errorf("validate: regularization must be non-negative")
	}
	if c.MinCovarEig <= 0 {
		return fmt.Errorf("validate: min_covar_eig must be positive")
	}

	switch c.Type {
	case LRType:
		return nil
	case LRPriorType:
		return c.Prior.Validate()
	}
	return fmt.Errorf("validate: unknown dynamics type %q", c.Type)
}

// DefaultConfig returns the default dynamics configuration
func DefaultConfig() Config {
	return Config{
		Type:           LRPriorType,
		Regularization: 1e-6,
		MinCovarEig:    1e-8,
		Prior:          DefaultPriorConfig(),
	}
}

// New returns the dynamics Fitter described by a configuration
func New(c Config, seed uint64) (Fitter, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	switch c.Type {
	case LRPriorType:
		prior, err := NewPriorGMM(c.Prior, seed)
		if err != nil {
			return nil, fmt.Errorf("new: %w", err)
		}
		return NewLRPrior(prior, c.Regularization, c.MinCovarEig), nil

	default:
		return NewLR(c.Regularization, c.MinCovarEig), nil
	}
}

// LR fits dynamics by linear regression with the state-action
// covariance regularized by a ridge term
type LR struct {
	regularization float64
	minEig         float64
}

// NewLR returns a new LR Fitter
func NewLR(regularization, minCovarEig float64) *LR {
	return &LR{regularization: regularization, minEig: minCovarEig}
}

// Prior implements the Fitter interface
func (l *LR) Prior() *PriorGMM {
	return nil
}

// Fit implements the Fitter interface
func (l *LR) Fit(condition int, X, U []mat.Matrix) (*LinearGaussian, error) {
	return fit(condition, X, U, nil, l.regularization, l.minEig)
}

// LRPrior fits dynamics by Bayesian linear regression, blending the
// empirical statistics of the rollouts at each timestep with a
// Normal-inverse-Wishart prior given by a Gaussian mixture
type LRPrior struct {
	prior          *PriorGMM
	regularization float64
	minEig         float64
}

// NewLRPrior returns a new LRPrior Fitter
func NewLRPrior(prior *PriorGMM, regularization,
	minCovarEig float64) *LRPrior {
	return &LRPrior{
		prior:          prior,
		regularization: regularization,
		minEig:         minCovarEig,
	}
}

// Prior implements the Fitter interface
func (l *LRPrior) Prior() *PriorGMM {
	return l.prior
}

// Fit implements the Fitter interface. If the prior has not been fit
// yet, Fit behaves as LR.
func (l *LRPrior) Fit(condition int, X, U []mat.Matrix) (*LinearGaussian,
	error) {
	var prior *PriorGMM
	if !l.prior.Empty() {
		prior = l.prior
	}
	return fit(condition, X, U, prior, l.regularization, l.minEig)
}

// fit fits dynamics at each timestep. With no rollouts the horizon and
// dimensions are taken from the prior.
func fit(condition int, X, U []mat.Matrix, prior *PriorGMM,
	regularization, minEig float64) (*LinearGaussian, error) {
	if len(X) != len(U) {
		panic(fmt.Sprintf("fit: %d state rollouts but %d action rollouts",
			len(X), len(U)))
	}
	if len(X) == 0 && prior == nil {
		return nil, gpserr.NewInsufficientData("fit", condition,
			gpserr.NoTimestep)
	}

	var T, dX, dU int
	if len(X) > 0 {
		T, dX = X[0].Dims()
		_, dU = U[0].Dims()
	} else {
		T, dX, dU = prior.T, prior.dX, prior.dU
	}

	N := len(X)
	wts := make([]float64, N)
	for n := range wts {
		wts[n] = 1.0 / float64(N)
	}

	dyn := NewLinearGaussian(T, dX, dU, minEig)
	for t := 0; t < T-1; t++ {
		var pts mat.Matrix
		if N > 0 {
			pts = timestepTransitions(X, U, t, dX, dU)
		}

		var niw *gmm.NIW
		if prior != nil {
			var err error
			niw, err = prior.Eval(pts)
			if err != nil {
				return nil, gpserr.NewNumericalInstability("fit", condition,
					fmt.Errorf("timestep %d: %w", t, err))
			}
		}

		cond, err := gmm.FitConditional(pts, wts, niw, dX+dU, regularization)
		if err != nil {
			return nil, gpserr.NewNumericalInstability("fit", condition,
				fmt.Errorf("timestep %d: %w", t, err))
		}

		covar, _, err := matutils.ClipEigen(cond.Covar, minEig)
		if err != nil {
			return nil, gpserr.NewNumericalInstability("fit", condition,
				fmt.Errorf("timestep %d: %w", t, err))
		}

		dyn.Fm[t] = cond.F
		dyn.Fv[t] = cond.Fv
		dyn.Covar[t] = covar
	}
	return dyn, nil
}

// InitialState estimates the mean and covariance of the initial state
// from the first state of each rollout. The variance of each dimension
// is at least minVar. If prior is not nil and has retained rollouts,
// the estimate is blended with the prior's initial state estimate.
func InitialState(condition int, X []mat.Matrix, prior *PriorGMM,
	minVar float64) (*mat.VecDense, *mat.SymDense, error) {
	if len(X) == 0 {
		return nil, nil, gpserr.NewInsufficientData("initialState",
			condition, 0)
	}

	N := len(X)
	_, dX := X[0].Dims()
	mu := mat.NewVecDense(dX, nil)
	sigma := mat.NewSymDense(dX, nil)
	col := make([]float64, N)
	for i := 0; i < dX; i++ {
		for n := range X {
			col[n] = X[n].At(0, i)
		}
		mean := stat.Mean(col, nil)
		variance := stat.MomentAbout(2, col, mean, nil)
		if variance < minVar {
			variance = minVar
		}
		mu.SetVec(i, mean)
		sigma.SetSym(i, i, variance)
	}

	if prior != nil && prior.Rollouts() > 0 {
		niw, err := prior.InitialState()
		if err != nil {
			return nil, nil, fmt.Errorf("initialState: %w", err)
		}
		fN := float64(N)
		diff := mat.NewVecDense(dX, nil)
		diff.SubVec(mu, niw.Mu0)

		blend := mat.NewSymDense(dX, nil)
		blend.CopySym(niw.Phi)
		blend.SymRankOne(blend, fN*niw.M/(fN+niw.M), diff)
		blend.ScaleSym(1/(fN+niw.N0), blend)
		sigma.AddSym(sigma, blend)
	}
	return mu, sigma, nil
}
