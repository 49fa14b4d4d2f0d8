package policy

import (
	"fmt"

	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// LinearGaussian is a time-varying linear Gaussian controller. At
// timestep t the action is distributed as
//
//	u ~ N(K[t] x + Bias[t], Covar[t])
//
// A LinearGaussian is immutable: each iteration of trajectory
// optimization produces a new one.
type LinearGaussian struct {
	K         []*mat.Dense    // T of dU x dX
	Bias      []*mat.VecDense // T of dU
	Covar     []*mat.SymDense // T of dU x dU
	InvCovar  []*mat.SymDense // T of dU x dU
	CholCovar []*mat.TriDense // T of dU x dU, lower triangular

	dX, dU int
}

// NewLinearGaussian returns a new LinearGaussian controller. The
// covariances are projected so that their eigenvalues are at least
// minEig, and their inverses and Cholesky factors are precomputed. The
// arguments are copied.
func NewLinearGaussian(K []*mat.Dense, bias []*mat.VecDense,
	covar []*mat.SymDense, minEig float64) (*LinearGaussian, error) {
	T := len(K)
	if T == 0 {
		return nil, fmt.Errorf("newLinearGaussian: horizon must be positive")
	}
	if len(bias) != T || len(covar) != T {
		return nil, fmt.Errorf("newLinearGaussian: horizon mismatch: %d "+
			"gains, %d biases, %d covariances", T, len(bias), len(covar))
	}
	dU, dX := K[0].Dims()

	lg := &LinearGaussian{
		K:         make([]*mat.Dense, T),
		Bias:      make([]*mat.VecDense, T),
		Covar:     make([]*mat.SymDense, T),
		InvCovar:  make([]*mat.SymDense, T),
		CholCovar: make([]*mat.TriDense, T),
		dX:        dX,
		dU:        dU,
	}
	for t := 0; t < T; t++ {
		if r, c := K[t].Dims(); r != dU || c != dX {
			return nil, fmt.Errorf("newLinearGaussian: gain at timestep %d "+
				"has shape (%d, %d), expected (%d, %d)", t, r, c, dU, dX)
		}
		if bias[t].Len() != dU {
			return nil, fmt.Errorf("newLinearGaussian: bias at timestep %d "+
				"has dimension %d, expected %d", t, bias[t].Len(), dU)
		}
		if n, _ := covar[t].Dims(); n != dU {
			return nil, fmt.Errorf("newLinearGaussian: covariance at "+
				"timestep %d has dimension %d, expected %d", t, n, dU)
		}

		if !matutils.Finite(covar[t]) {
			return nil, fmt.Errorf("newLinearGaussian: covariance at "+
				"timestep %d is not finite", t)
		}
		clipped, _, err := matutils.ClipEigen(covar[t], minEig)
		if err != nil {
			return nil, fmt.Errorf("newLinearGaussian: timestep %d: %w", t,
				err)
		}
		chol, sigma, _, err := matutils.Cholesky(clipped, minEig)
		if err != nil {
			return nil, fmt.Errorf("newLinearGaussian: timestep %d: %w", t,
				err)
		}
		inv, err := matutils.InverseSym(chol)
		if err != nil {
			return nil, fmt.Errorf("newLinearGaussian: timestep %d: %w", t,
				err)
		}

		lg.K[t] = mat.DenseCopyOf(K[t])
		lg.Bias[t] = mat.VecDenseCopyOf(bias[t])
		lg.Covar[t] = sigma
		lg.InvCovar[t] = inv
		lg.CholCovar[t] = matutils.LowerTri(chol)
	}
	return lg, nil
}

// T returns the horizon of the controller
func (l *LinearGaussian) T() int {
	return len(l.K)
}

// Dims returns the state and action dimensions
func (l *LinearGaussian) Dims() (dX, dU int) {
	return l.dX, l.dU
}

// Mean returns the mean action at timestep t from state x
func (l *LinearGaussian) Mean(t int, x mat.Vector) *mat.VecDense {
	if x.Len() != l.dX {
		panic(fmt.Sprintf("mean: state must have dimension %d, have %d",
			l.dX, x.Len()))
	}
	var u mat.VecDense
	u.MulVec(l.K[t], x)
	u.AddVec(&u, l.Bias[t])
	return &u
}

// Act implements the Policy interface. The observation is ignored.
func (l *LinearGaussian) Act(t int, x, obs, noise mat.Vector) *mat.VecDense {
	u := l.Mean(t, x)
	if noise != nil {
		var perturb mat.VecDense
		perturb.MulVec(l.CholCovar[t], noise)
		u.AddVec(u, &perturb)
	}
	return u
}

// LogProb returns the log density of action u at timestep t from
// state x
func (l *LinearGaussian) LogProb(t int, x, u mat.Vector) float64 {
	mean := l.Mean(t, x)
	dist, ok := distmv.NewNormal(mean.RawVector().Data, l.Covar[t], nil)
	if !ok {
		panic(fmt.Sprintf("logProb: covariance at timestep %d is not "+
			"positive definite: %v", t, matutils.Format(l.Covar[t])))
	}
	return dist.LogProb(mat.VecDenseCopyOf(u).RawVector().Data)
}

// Params are the parameters of a LinearGaussian, stored as plain slices
// in row-major order
type Params struct {
	T, DimX, DimU int
	K             [][]float64
	Bias          [][]float64
	Covar         [][]float64
}

// Params returns the parameters of the controller
func (l *LinearGaussian) Params() Params {
	p := Params{
		T:     l.T(),
		DimX:  l.dX,
		DimU:  l.dU,
		K:     make([][]float64, l.T()),
		Bias:  make([][]float64, l.T()),
		Covar: make([][]float64, l.T()),
	}
	for t := 0; t < l.T(); t++ {
		p.K[t] = mat.DenseCopyOf(l.K[t]).RawMatrix().Data
		p.Bias[t] = append([]float64(nil), l.Bias[t].RawVector().Data...)
		p.Covar[t] = mat.DenseCopyOf(l.Covar[t]).RawMatrix().Data
	}
	return p
}

// FromParams returns the controller with the given parameters
func FromParams(p Params, minEig float64) (*LinearGaussian, error) {
	K := make([]*mat.Dense, p.T)
	bias := make([]*mat.VecDense, p.T)
	covar := make([]*mat.SymDense, p.T)
	for t := 0; t < p.T; t++ {
		K[t] = mat.NewDense(p.DimU, p.DimX, append([]float64(nil), p.K[t]...))
		bias[t] = mat.NewVecDense(p.DimU, append([]float64(nil),
			p.Bias[t]...))
		covar[t] = matutils.Sym(mat.NewDense(p.DimU, p.DimU,
			append([]float64(nil), p.Covar[t]...)))
	}
	return NewLinearGaussian(K, bias, covar, minEig)
}
