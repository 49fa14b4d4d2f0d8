package gmm

import (
	"fmt"

	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// NIW is a Normal-inverse-Wishart prior over the mean and covariance
// of a Gaussian. Phi is the prior scatter matrix, M the strength of the
// prior mean, and N0 the strength of the prior covariance, both in
// units of pseudo-samples.
type NIW struct {
	Mu0 *mat.VecDense
	Phi *mat.SymDense
	M   float64
	N0  float64
}

// Scale returns a copy of the prior with both strengths multiplied by
// strength. Phi is scaled by the new mean strength M.
func (n *NIW) Scale(strength float64) *NIW {
	out := &NIW{
		Mu0: mat.VecDenseCopyOf(n.Mu0),
		Phi: mat.NewSymDense(n.Mu0.Len(), nil),
		M:   n.M * strength,
		N0:  n.N0 * strength,
	}
	out.Phi.ScaleSym(out.M, n.Phi)
	return out
}

// Conditional is a linear Gaussian conditional distribution
//
//	y | x ~ N(F x + f, Covar)
type Conditional struct {
	F     *mat.Dense
	Fv    *mat.VecDense
	Covar *mat.SymDense
}

// FitConditional fits a joint Gaussian to the rows of pts, each the
// concatenation [x; y] of an input of dimension dIn and an output, and
// conditions it on the input. The rows are weighted by wts, which
// should sum to one. If prior is not nil, the maximum a posteriori
// joint covariance under the prior is used. The diagonal of the input
// block of the joint covariance is increased by reg before
// conditioning.
//
// A nil pts means there are no points. With no points, the prior alone
// determines the joint distribution. With no points and no prior, an
// error is returned.
func FitConditional(pts mat.Matrix, wts []float64, prior *NIW, dIn int,
	reg float64) (*Conditional, error) {
	var N, D int
	if pts != nil {
		N, D = pts.Dims()
	} else if prior != nil {
		D = prior.Mu0.Len()
	}
	if len(wts) != N {
		panic(fmt.Sprintf("fitConditional: %d weights for %d points",
			len(wts), N))
	}
	if prior != nil && prior.Mu0.Len() != D {
		panic(fmt.Sprintf("fitConditional: prior has dimension %d but "+
			"points have dimension %d", prior.Mu0.Len(), D))
	}
	if N == 0 && prior == nil {
		return nil, fmt.Errorf("fitConditional: no points and no prior")
	}

	var mu *mat.VecDense
	var sigma *mat.SymDense
	if N == 0 {
		mu = mat.VecDenseCopyOf(prior.Mu0)
		sigma = mat.NewSymDense(D, nil)
		sigma.ScaleSym(1/prior.M, prior.Phi)
	} else {
		// Weighted empirical mean and covariance
		mu = mat.NewVecDense(D, nil)
		for n := 0; n < N; n++ {
			mu.AddScaledVec(mu, wts[n], matutils.Row(pts, n))
		}
		empsig := mat.NewSymDense(D, nil)
		diff := mat.NewVecDense(D, nil)
		for n := 0; n < N; n++ {
			diff.SubVec(matutils.Row(pts, n), mu)
			empsig.SymRankOne(empsig, wts[n], diff)
		}

		sigma = empsig
		if prior != nil {
			fN := float64(N)
			sigma = mat.NewSymDense(D, nil)
			sigma.ScaleSym(fN, empsig)
			sigma.AddSym(sigma, prior.Phi)

			diff.SubVec(mu, prior.Mu0)
			sigma.SymRankOne(sigma, fN*prior.M/(fN+prior.M), diff)
			sigma.ScaleSym(1/(fN+prior.N0), sigma)
		}
	}

	// Regularize the input block
	for i := 0; i < dIn; i++ {
		sigma.SetSym(i, i, sigma.At(i, i)+reg)
	}

	return condition(mu, sigma, dIn)
}

// condition conditions the joint Gaussian N(mu, sigma) on its first dIn
// dimensions
func condition(mu *mat.VecDense, sigma *mat.SymDense, dIn int) (
	*Conditional, error) {
	D := mu.Len()
	dOut := D - dIn

	sigmaII := matutils.SymBlock(sigma, 0, dIn)
	sigmaIO := matutils.Block(sigma, 0, dIn, dIn, D)
	sigmaOO := matutils.SymBlock(sigma, dIn, D)

	var chol mat.Cholesky
	if ok := chol.Factorize(sigmaII); !ok {
		return nil, fmt.Errorf("condition: input covariance is not " +
			"positive definite")
	}

	// F = (Σᵢᵢ⁻¹ Σᵢₒ)ᵀ
	var solved mat.Dense
	if err := chol.SolveTo(&solved, sigmaIO); err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	F := mat.DenseCopyOf(solved.T())

	muIn := matutils.SubVec(mu, 0, dIn)
	fv := matutils.SubVec(mu, dIn, D)
	var pred mat.VecDense
	pred.MulVec(F, muIn)
	fv.SubVec(fv, &pred)

	// Σₒₒ - F Σᵢᵢ Fᵀ
	var tmp, explained mat.Dense
	tmp.Mul(F, sigmaII)
	explained.Mul(&tmp, F.T())
	covar := mat.NewDense(dOut, dOut, nil)
	covar.Sub(sigmaOO, &explained)

	if !matutils.Finite(F) || !matutils.Finite(fv) || !matutils.Finite(covar) {
		return nil, fmt.Errorf("condition: non-finite result")
	}

	return &Conditional{F: F, Fv: fv, Covar: matutils.Sym(covar)}, nil
}
