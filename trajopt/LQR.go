package trajopt

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/utils/matutils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Config configures the search for the Lagrange multiplier eta of the
// KL divergence constraint
type Config struct {
	// Del0 is the initial increase of eta when the action Hessian of
	// the Q-function is not positive definite
	Del0 float64 `yaml:"del0"`

	// MinEta and MaxEta bracket the search
	MinEta float64 `yaml:"min_eta"`
	MaxEta float64 `yaml:"max_eta"`

	// MaxIterations bounds the number of backward passes per update
	MaxIterations int `yaml:"max_iterations"`

	// Tolerance is the fraction of the per-timestep KL step within
	// which the KL divergence must match its bound
	Tolerance float64 `yaml:"tolerance"`

	// MinCovarEig is the smallest eigenvalue allowed in a controller
	// covariance
	MinCovarEig float64 `yaml:"min_covar_eig"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Del0:          1e-4,
		MinEta:        1e-8,
		MaxEta:        1e16,
		MaxIterations: 50,
		Tolerance:     0.1,
		MinCovarEig:   1e-10,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if c.Del0 <= 0 {
		return fmt.Errorf("validate: del0 must be positive")
	}
	if c.MinEta <= 0 || c.MaxEta <= c.MinEta {
		return fmt.Errorf("validate: must have 0 < min_eta < max_eta")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("validate: max_iterations must be positive")
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("validate: tolerance must be positive")
	}
	if c.MinCovarEig <= 0 {
		return fmt.Errorf("validate: min_covar_eig must be positive")
	}
	return nil
}

// Problem is a single trajectory optimization problem
type Problem struct {
	Condition int
	Info      *Info

	// Target is the controller the new controller is constrained to stay
	// close to: the previous controller or a linearization of the
	// global policy
	Target *policy.LinearGaussian

	// Eta is the initial Lagrange multiplier
	Eta float64

	// KLStep is the per-timestep KL divergence allowed, already scaled
	// by the step multiplier. The bound on the total KL divergence is
	// KLStep * T.
	KLStep float64

	// MaxEnt weights an entropy bonus on the new controller
	MaxEnt float64
}

// Result is the outcome of a trajectory optimization
type Result struct {
	Controller *policy.LinearGaussian
	Eta        float64
	KL         float64
	Bound      float64
	Iterations int
	Converged  bool
}

// LQR optimizes linear Gaussian controllers by a KL-constrained LQG
// backward pass, searching for the Lagrange multiplier of the
// constraint by bracketing
type LQR struct {
	config Config
}

// New returns a new LQR trajectory optimizer
func New(config Config) (*LQR, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return &LQR{config: config}, nil
}

// Update returns a new controller for the problem whose total KL
// divergence from the target is within tolerance of the bound. If the
// search runs out of iterations, the feasible result closest to the
// bound is returned together with a *gpserr.TrustRegionSearchExhaustedError.
// Any other error leaves the Result nil.
func (l *LQR) Update(p Problem) (*Result, error) {
	if err := p.Info.Validate(); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	T := p.Target.T()
	bound := p.KLStep * float64(T)
	tolerance := l.config.Tolerance * p.KLStep * float64(T)
	logger := logrus.WithField("condition", p.Condition)

	minEta, maxEta := l.config.MinEta, l.config.MaxEta
	eta := math.Min(math.Max(p.Eta, minEta), maxEta)

	var best, last *Result
	triedMin := false
	for itr := 0; itr < l.config.MaxIterations; itr++ {
		ctrl, usedEta, err := l.Backward(p, eta)
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		eta = usedEta

		kl := TotalKL(ctrl, p.Target, p.Info)
		con := kl - bound
		last = &Result{Controller: ctrl, Eta: eta, KL: kl, Bound: bound,
			Iterations: itr + 1}
		logger.Debugf("eta search iteration %d: eta %.4g, kl %.4g, bound %.4g",
			itr, eta, kl, bound)

		if con <= 0 && (best == nil || kl > best.KL) {
			best = last
		}

		// Converged, or the constraint is inactive
		if math.Abs(con) < tolerance || (con < 0 && eta <= l.config.MinEta) {
			last.Converged = true
			return last, nil
		}

		if con < 0 {
			// Eta was too large. Check the smallest eta first, since the
			// constraint may be inactive.
			maxEta = eta
			if !triedMin && minEta == l.config.MinEta {
				triedMin = true
				eta = minEta
				continue
			}
			eta = math.Max(math.Sqrt(minEta*maxEta), 0.1*maxEta)
		} else {
			// Eta was too small
			minEta = eta
			eta = math.Min(math.Sqrt(minEta*maxEta), 10*minEta)
		}
	}

	if best == nil {
		ctrl, usedEta, err := l.Backward(p, l.config.MaxEta)
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		kl := TotalKL(ctrl, p.Target, p.Info)
		best = &Result{Controller: ctrl, Eta: usedEta, KL: kl, Bound: bound,
			Iterations: last.Iterations}
	}

	logger.Warnf("trust region search exhausted after %d iterations: "+
		"using eta %.4g with kl %.4g (bound %.4g)", last.Iterations, best.Eta,
		best.KL, bound)
	return best, &gpserr.TrustRegionSearchExhaustedError{
		Condition: p.Condition,
		KL:        best.KL,
		Bound:     bound,
		Eta:       best.Eta,
	}
}

// Backward runs the LQG backward pass with Lagrange multiplier eta and
// returns the resulting controller. If the action Hessian of the
// Q-function is not positive definite at some timestep, eta is
// increased until it is, and the eta actually used is returned.
func (l *LQR) Backward(p Problem, eta float64) (*policy.LinearGaussian,
	float64, error) {
	del := l.config.Del0
	eta0 := eta
	for {
		ctrl, failed, err := l.backward(p, eta)
		if err != nil {
			return nil, eta, gpserr.NewNumericalInstability("backward",
				p.Condition, err)
		}
		if failed < 0 {
			return ctrl, eta, nil
		}

		old := eta
		eta = eta0 + del
		del *= 2
		logrus.WithField("condition", p.Condition).Debugf("action Hessian not "+
			"positive definite at timestep %d: increasing eta %.4g -> %.4g",
			failed, old, eta)

		if eta >= l.config.MaxEta {
			return nil, eta, gpserr.NewNumericalInstability("backward",
				p.Condition, fmt.Errorf("no positive definite solution "+
					"even for eta %.4g", eta))
		}
	}
}

// backward runs a single backward pass. It returns the timestep at
// which the action Hessian was not positive definite, or -1 if it was
// positive definite at every timestep.
func (l *LQR) backward(p Problem, eta float64) (*policy.LinearGaussian,
	int, error) {
	info := p.Info
	T := p.Target.T()
	dX, dU := p.Target.Dims()
	dXU := dX + dU

	fCm, fcv := l.costs(p, eta)

	K := make([]*mat.Dense, T)
	bias := make([]*mat.VecDense, T)
	covar := make([]*mat.SymDense, T)

	Vxx := mat.NewSymDense(dX, nil)
	Vx := mat.NewVecDense(dX, nil)
	for t := T - 1; t >= 0; t-- {
		qtt := mat.DenseCopyOf(fCm[t])
		qt := mat.VecDenseCopyOf(fcv[t])

		if t < T-1 {
			Fm := info.Dynamics.Fm[t]

			// Qtt += Fmᵀ Vxx Fm
			var tmp, prop mat.Dense
			tmp.Mul(Vxx, Fm)
			prop.Mul(Fm.T(), &tmp)
			qtt.Add(qtt, &prop)

			// Qt += Fmᵀ (Vx + Vxx fv)
			var next, propv mat.VecDense
			next.MulVec(Vxx, info.Dynamics.Fv[t])
			next.AddVec(&next, Vx)
			propv.MulVec(Fm.T(), &next)
			qt.AddVec(qt, &propv)
		}
		Qtt := matutils.Sym(qtt)
		if !matutils.Finite(Qtt) || !matutils.Finite(qt) {
			return nil, t, fmt.Errorf("non-finite Q-function at timestep %d",
				t)
		}

		Quu := matutils.SymBlock(Qtt, dX, dXU)
		Qux := matutils.Block(Qtt, dX, dXU, 0, dX)
		Qxx := matutils.SymBlock(Qtt, 0, dX)
		qu := matutils.SubVec(qt, dX, dXU)
		qx := matutils.SubVec(qt, 0, dX)

		var chol mat.Cholesky
		if ok := chol.Factorize(Quu); !ok {
			return nil, t, nil
		}
		inv, err := matutils.InverseSym(&chol)
		if err != nil {
			return nil, t, nil
		}

		// K = -Quu⁻¹ Qux, k = -Quu⁻¹ qu
		var gain mat.Dense
		if err := chol.SolveTo(&gain, Qux); err != nil {
			return nil, t, nil
		}
		gain.Scale(-1, &gain)
		var offset mat.VecDense
		if err := chol.SolveVecTo(&offset, qu); err != nil {
			return nil, t, nil
		}
		offset.ScaleVec(-1, &offset)

		K[t] = &gain
		bias[t] = &offset
		covar[t] = inv

		// Vxx = Qxx + Quxᵀ K, Vx = qx + Quxᵀ k
		var vxx mat.Dense
		vxx.Mul(Qux.T(), &gain)
		vxx.Add(&vxx, Qxx)
		Vxx = matutils.Sym(&vxx)

		Vx = mat.NewVecDense(dX, nil)
		Vx.MulVec(Qux.T(), &offset)
		Vx.AddVec(Vx, qx)
	}

	ctrl, err := policy.NewLinearGaussian(K, bias, covar,
		l.config.MinCovarEig)
	if err != nil {
		return nil, -1, err
	}
	for t := 0; t < T; t++ {
		if !matutils.Finite(ctrl.K[t]) || !matutils.Finite(ctrl.Bias[t]) {
			return nil, -1, fmt.Errorf("non-finite controller at timestep %d",
				t)
		}
	}
	return ctrl, -1, nil
}

// costs returns the cost augmented by the KL divergence penalty to the
// target with weight eta and the entropy bonus, both normalized by
// eta + MaxEnt:
//
//	fCm = (Cm + eta [[Kᵀ P K, -Kᵀ P], [-P K, P]]) / (eta + MaxEnt)
//	fcv = (cv + eta [Kᵀ P k; -P k]) / (eta + MaxEnt)
//
// where K, k, and P are the gains, bias, and precision of the target
func (l *LQR) costs(p Problem, eta float64) ([]*mat.Dense, []*mat.VecDense) {
	T := p.Target.T()
	scale := 1 / (eta + p.MaxEnt)

	fCm := make([]*mat.Dense, T)
	fcv := make([]*mat.VecDense, T)
	for t := 0; t < T; t++ {
		M, v, _, _ := quadraticForm(p.Target, t)

		cm := mat.DenseCopyOf(p.Info.Cost.Cm[t])
		M.Scale(eta, M)
		cm.Add(cm, M)
		cm.Scale(scale, cm)
		fCm[t] = cm

		cv := mat.VecDenseCopyOf(p.Info.Cost.Cv[t])
		cv.AddScaledVec(cv, eta, v)
		cv.ScaleVec(scale, cv)
		fcv[t] = cv
	}
	return fCm, fcv
}
