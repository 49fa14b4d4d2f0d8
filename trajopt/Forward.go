package trajopt

import (
	"fmt"

	"github.com/samuelfneumann/gogps/policy"
	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// Forward propagates the initial state distribution through the
// controller and dynamics, returning the mean and covariance of the
// joint state-action [x_t; u_t] at each timestep
func Forward(ctrl *policy.LinearGaussian, info *Info) ([]*mat.VecDense,
	[]*mat.SymDense) {
	T := ctrl.T()
	dX, dU := ctrl.Dims()
	if T != info.Dynamics.T() {
		panic(fmt.Sprintf("forward: controller horizon %d does not match "+
			"dynamics horizon %d", T, info.Dynamics.T()))
	}
	dXU := dX + dU

	mu := make([]*mat.VecDense, T)
	sigma := make([]*mat.SymDense, T)

	muX := mat.VecDenseCopyOf(info.X0Mu)
	sigmaX := mat.NewSymDense(dX, nil)
	sigmaX.CopySym(info.X0Sigma)
	for t := 0; t < T; t++ {
		K := ctrl.K[t]

		// Σxu = Σx Kᵀ, Σuu = K Σx Kᵀ + Σpol
		var sxu, suu mat.Dense
		sxu.Mul(sigmaX, K.T())
		suu.Mul(K, &sxu)
		suu.Add(&suu, ctrl.Covar[t])

		joint := mat.NewDense(dXU, dXU, nil)
		matutils.SetBlock(joint, 0, 0, sigmaX)
		matutils.SetBlock(joint, 0, dX, &sxu)
		matutils.SetBlock(joint, dX, 0, sxu.T())
		matutils.SetBlock(joint, dX, dX, &suu)
		sigma[t] = matutils.Sym(joint)

		var muU mat.VecDense
		muU.MulVec(K, muX)
		muU.AddVec(&muU, ctrl.Bias[t])
		mu[t] = matutils.Concat(muX, &muU)

		if t < T-1 {
			Fm := info.Dynamics.Fm[t]
			var tmp, next mat.Dense
			tmp.Mul(sigma[t], Fm.T())
			next.Mul(Fm, &tmp)
			next.Add(&next, info.Dynamics.Covar[t])
			sigmaX = matutils.Sym(&next)

			muX = mat.NewVecDense(dX, nil)
			muX.MulVec(Fm, mu[t])
			muX.AddVec(muX, info.Dynamics.Fv[t])
		}
	}
	return mu, sigma
}

// ExpectedCost returns the expected cost at each timestep of running
// the controller under the dynamics and cost of info
func ExpectedCost(ctrl *policy.LinearGaussian, info *Info) []float64 {
	mu, sigma := Forward(ctrl, info)

	costs := make([]float64, ctrl.T())
	for t := range costs {
		Cm := info.Cost.Cm[t]
		var cmMu mat.VecDense
		cmMu.MulVec(Cm, mu[t])

		costs[t] = info.Cost.Cc[t] + 0.5*traceProduct(sigma[t], Cm) +
			0.5*mat.Dot(mu[t], &cmMu) + mat.Dot(mu[t], info.Cost.Cv[t])
	}
	return costs
}

// traceProduct returns tr(A B) = Σᵢⱼ Aᵢⱼ Bⱼᵢ
func traceProduct(a, b mat.Matrix) float64 {
	n, _ := a.Dims()
	tr := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			tr += a.At(i, j) * b.At(j, i)
		}
	}
	return tr
}
