package policyopt

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// Policy is the global policy: the mean action of a fitted Handle with a
// state-independent diagonal covariance
type Policy struct {
	handle Handle
	covar  *mat.SymDense
	chol   *mat.DiagDense
}

// NewPolicy returns a new global policy with mean given by handle and
// diagonal covariance diag(variance)
func NewPolicy(handle Handle, variance []float64) (*Policy, error) {
	if handle == nil {
		return nil, fmt.Errorf("newPolicy: nil handle")
	}
	dU := len(variance)
	covar := mat.NewSymDense(dU, nil)
	std := make([]float64, dU)
	for i, v := range variance {
		if !(v > 0) || math.IsInf(v, 1) {
			return nil, fmt.Errorf("newPolicy: variance %d is %v, must be "+
				"positive and finite", i, v)
		}
		covar.SetSym(i, i, v)
		std[i] = math.Sqrt(v)
	}
	return &Policy{
		handle: handle,
		covar:  covar,
		chol:   mat.NewDiagDense(dU, std),
	}, nil
}

// Handle returns the fitted function approximator of the policy
func (p *Policy) Handle() Handle {
	return p.handle
}

// Covar returns the action covariance of the policy
func (p *Policy) Covar() *mat.SymDense {
	return p.covar
}

// Variance returns the diagonal of the action covariance
func (p *Policy) Variance() []float64 {
	n, _ := p.covar.Dims()
	v := make([]float64, n)
	for i := range v {
		v[i] = p.covar.At(i, i)
	}
	return v
}

// Predict returns the mean and covariance of the action distribution
// at an observation
func (p *Policy) Predict(obs mat.Vector) (*mat.VecDense, *mat.SymDense) {
	return p.handle.Predict(obs), p.covar
}

// Act implements the policy.Policy interface. The state is ignored.
func (p *Policy) Act(t int, x, obs, noise mat.Vector) *mat.VecDense {
	u := p.handle.Predict(obs)
	if noise != nil {
		var perturb mat.VecDense
		perturb.MulVec(p.chol, noise)
		u.AddVec(u, &perturb)
	}
	return u
}

// Means returns the mean actions of the policy along each rollout of
// observations, one T x dU matrix per rollout
func (p *Policy) Means(obs []mat.Matrix) []*mat.Dense {
	out := make([]*mat.Dense, len(obs))
	for n, o := range obs {
		T, _ := o.Dims()
		for t := 0; t < T; t++ {
			u := p.handle.Predict(matutils.Row(o, t))
			if out[n] == nil {
				out[n] = mat.NewDense(T, u.Len(), nil)
			}
			out[n].SetRow(t, u.RawVector().Data)
		}
	}
	return out
}
