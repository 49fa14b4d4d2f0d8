package trajopt

import (
	"math"

	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// KL returns the expected KL divergence at each timestep between the
// action distributions of the controllers next and prev, with the
// expectation taken over the state-action distribution (mu, sigma)
// induced by next
func KL(mu []*mat.VecDense, sigma []*mat.SymDense, next,
	prev *policy.LinearGaussian) []float64 {
	T := next.T()
	kl := make([]float64, T)
	for t := 0; t < T; t++ {
		Mn, vn, cn, logdetN := quadraticForm(next, t)
		Mp, vp, cp, logdetP := quadraticForm(prev, t)

		var dM mat.Dense
		dM.Sub(Mn, Mp)
		var dv mat.VecDense
		dv.SubVec(vn, vp)

		var dMmu mat.VecDense
		dMmu.MulVec(&dM, mu[t])

		value := -0.5*mat.Dot(mu[t], &dMmu) - mat.Dot(mu[t], &dv) - cn + cp -
			0.5*traceProduct(sigma[t], &dM) - 0.5*logdetN + 0.5*logdetP
		kl[t] = math.Max(0, value)
	}
	return kl
}

// quadraticForm returns M, v, c, and log|Σ| such that the negative log
// density of the controller's action u at state x is, up to constants,
//
//	0.5 yᵀ M y + yᵀ v + c + 0.5 log|Σ|,  y = [x; u]
func quadraticForm(ctrl *policy.LinearGaussian, t int) (*mat.Dense,
	*mat.VecDense, float64, float64) {
	dX, dU := ctrl.Dims()
	K, k, prc := ctrl.K[t], ctrl.Bias[t], ctrl.InvCovar[t]

	var prcK, kprcK mat.Dense
	prcK.Mul(prc, K)
	kprcK.Mul(K.T(), &prcK)
	var negPrcK mat.Dense
	negPrcK.Scale(-1, &prcK)

	M := mat.NewDense(dX+dU, dX+dU, nil)
	matutils.SetBlock(M, 0, 0, &kprcK)
	matutils.SetBlock(M, 0, dX, negPrcK.T())
	matutils.SetBlock(M, dX, 0, &negPrcK)
	matutils.SetBlock(M, dX, dX, prc)

	var prck mat.VecDense
	prck.MulVec(prc, k)
	var kprck mat.VecDense
	kprck.MulVec(K.T(), &prck)
	var negPrck mat.VecDense
	negPrck.ScaleVec(-1, &prck)
	v := matutils.Concat(&kprck, &negPrck)

	c := 0.5 * mat.Dot(k, &prck)

	logdet := 0.0
	chol := ctrl.CholCovar[t]
	for i := 0; i < dU; i++ {
		logdet += 2 * math.Log(chol.At(i, i))
	}
	return M, v, c, logdet
}

// TotalKL returns the expected KL divergence between next and prev
// summed over all timesteps
func TotalKL(next, prev *policy.LinearGaussian, info *Info) float64 {
	mu, sigma := Forward(next, info)
	total := 0.0
	for _, v := range KL(mu, sigma, next, prev) {
		total += v
	}
	return total
}
