// Package gmm implements a Gaussian mixture model fit by expectation
// maximization, used as a prior for sparse-data Gaussian fits
package gmm

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogps/utils/matutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// initReg is added to the diagonal of each cluster covariance at
	// initialization
	initReg = 2e-6

	// covReg is added to the diagonal of each cluster covariance after
	// each M-step
	covReg = 1e-6

	// rebootMass is the fraction of the uniform mass below which a
	// cluster is rebooted
	rebootMass = 1e-4

	// convergence is the relative change in log-likelihood below which
	// EM terminates
	convergence = 1e-5

	// DefaultMaxIterations is the default maximum number of EM
	// iterations
	DefaultMaxIterations = 100
)

// GMM is a Gaussian mixture model
type GMM struct {
	mu      []*mat.VecDense
	sigma   []*mat.SymDense
	logmass []float64
	n       int

	rng *rand.Rand
}

// New returns a new, empty GMM. The seed determines the random choice
// of initial cluster centres.
func New(seed uint64) *GMM {
	return &GMM{rng: rand.New(rand.NewSource(seed))}
}

// K returns the number of clusters in the mixture
func (g *GMM) K() int {
	return len(g.mu)
}

// N returns the number of points the mixture was last fit to
func (g *GMM) N() int {
	return g.n
}

// Dim returns the dimension of the data the mixture was fit to
func (g *GMM) Dim() int {
	if len(g.mu) == 0 {
		return 0
	}
	return g.mu[0].Len()
}

// Empty returns whether the mixture has not yet been fit
func (g *GMM) Empty() bool {
	return len(g.mu) == 0
}

// Mass returns the mixing weights of the clusters
func (g *GMM) Mass() []float64 {
	mass := make([]float64, len(g.logmass))
	for i, lm := range g.logmass {
		mass[i] = math.Exp(lm)
	}
	return mass
}

// Cluster returns copies of the mean and covariance of cluster i
func (g *GMM) Cluster(i int) (*mat.VecDense, *mat.SymDense) {
	sigma := mat.NewSymDense(g.Dim(), nil)
	sigma.CopySym(g.sigma[i])
	return mat.VecDenseCopyOf(g.mu[i]), sigma
}

// Update fits the mixture to the rows of data with K clusters using at
// most maxIterations iterations of EM. If the log-likelihood decreases,
// the parameters which achieved the best log-likelihood are kept.
// Update returns the final log-likelihood.
func (g *GMM) Update(data mat.Matrix, K, maxIterations int) (float64, error) {
	N, _ := data.Dims()
	if N == 0 {
		return 0, fmt.Errorf("update: no data")
	}
	if K < 1 {
		return 0, fmt.Errorf("update: must have at least one cluster, "+
			"have %d", K)
	}
	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}
	if !matutils.Finite(data) {
		return 0, fmt.Errorf("update: data is not finite")
	}

	g.initialize(data, K)

	prevll := math.Inf(-1)
	prev := g.snapshot()
	for itr := 0; itr < maxIterations; itr++ {
		logobs, err := g.estep(data)
		if err != nil {
			g.restore(prev)
			return prevll, fmt.Errorf("update: %w", err)
		}

		ll := 0.0
		row := make([]float64, K)
		for n := 0; n < N; n++ {
			mat.Row(row, n, logobs)
			ll += floats.LogSumExp(row)
		}

		if math.IsNaN(ll) || ll < prevll {
			g.restore(prev)
			return prevll, nil
		}
		if math.Abs(ll-prevll) < convergence*math.Abs(prevll) {
			return ll, nil
		}
		prevll = ll
		prev = g.snapshot()

		g.mstep(data, logobs)
	}

	return prevll, nil
}

// initialize seeds the clusters at K points chosen with probability
// proportional to their squared distance from the seeds chosen so far,
// assigns every point to its nearest seed, and sets each cluster's
// initial parameters from its assigned points
func (g *GMM) initialize(data mat.Matrix, K int) {
	N, D := data.Dims()
	g.n = N
	g.mu = make([]*mat.VecDense, K)
	g.sigma = make([]*mat.SymDense, K)
	g.logmass = make([]float64, K)

	sqDist := func(i, j int) float64 {
		dist := 0.0
		for d := 0; d < D; d++ {
			diff := data.At(i, d) - data.At(j, d)
			dist += diff * diff
		}
		return dist
	}

	seeds := []int{g.rng.Intn(N)}
	nearest := make([]float64, N)
	for n := range nearest {
		nearest[n] = sqDist(n, seeds[0])
	}
	for len(seeds) < K {
		total := floats.Sum(nearest)
		next := g.rng.Intn(N)
		if total > 0 {
			target := g.rng.Float64() * total
			for n, dist := range nearest {
				target -= dist
				if target <= 0 && dist > 0 {
					next = n
					break
				}
			}
		}
		seeds = append(seeds, next)
		for n := range nearest {
			nearest[n] = math.Min(nearest[n], sqDist(n, next))
		}
	}

	members := make([][]int, K)
	for n := 0; n < N; n++ {
		closest, best := 0, math.Inf(1)
		for k, seed := range seeds {
			if dist := sqDist(n, seed); dist < best {
				closest, best = k, dist
			}
		}
		members[closest] = append(members[closest], n)
	}

	for k := 0; k < K; k++ {
		g.logmass[k] = math.Log(1.0 / float64(K))
		if len(members[k]) == 0 {
			members[k] = []int{seeds[k]}
		}
		count := float64(len(members[k]))

		mu := mat.NewVecDense(D, nil)
		for _, n := range members[k] {
			for d := 0; d < D; d++ {
				mu.SetVec(d, mu.AtVec(d)+data.At(n, d)/count)
			}
		}

		sigma := mat.NewSymDense(D, nil)
		diff := mat.NewVecDense(D, nil)
		for _, n := range members[k] {
			for d := 0; d < D; d++ {
				diff.SetVec(d, data.At(n, d)-mu.AtVec(d))
			}
			sigma.SymRankOne(sigma, 1/count, diff)
		}
		matutils.AddDiag(sigma, initReg)

		g.mu[k] = mu
		g.sigma[k] = sigma
	}
}

// estep computes the N x K matrix of log-probabilities of each point
// under each cluster, including the cluster's log-mass
func (g *GMM) estep(data mat.Matrix) (*mat.Dense, error) {
	N, D := data.Dims()
	K := g.K()
	if D != g.Dim() {
		panic(fmt.Sprintf("estep: data has dimension %d but mixture has "+
			"dimension %d", D, g.Dim()))
	}

	logobs := mat.NewDense(N, K, nil)
	diff := mat.NewVecDense(D, nil)
	var soln mat.VecDense
	for k := 0; k < K; k++ {
		chol, _, _, err := matutils.Cholesky(g.sigma[k], covReg)
		if err != nil {
			return nil, fmt.Errorf("estep: cluster %d: %w", k, err)
		}
		lower := matutils.LowerTri(chol)
		logdet := 0.0
		for d := 0; d < D; d++ {
			logdet += math.Log(lower.At(d, d))
		}

		base := -0.5*float64(D)*math.Log(2*math.Pi) - logdet + g.logmass[k]
		for n := 0; n < N; n++ {
			for d := 0; d < D; d++ {
				diff.SetVec(d, data.At(n, d)-g.mu[k].AtVec(d))
			}
			if err := soln.SolveVec(lower, diff); err != nil {
				return nil, fmt.Errorf("estep: cluster %d: %w", k, err)
			}
			logobs.Set(n, k, base-0.5*mat.Dot(&soln, &soln))
		}
	}
	return logobs, nil
}

// mstep refits the cluster masses, means, and covariances from the
// log-probabilities of the E-step
func (g *GMM) mstep(data mat.Matrix, logobs *mat.Dense) {
	N, D := data.Dims()
	K := g.K()

	// Normalize over clusters to get responsibilities
	logw := mat.NewDense(N, K, nil)
	row := make([]float64, K)
	for n := 0; n < N; n++ {
		mat.Row(row, n, logobs)
		norm := floats.LogSumExp(row)
		for k := 0; k < K; k++ {
			logw.Set(n, k, row[k]-norm)
		}
	}

	// Cluster masses
	col := make([]float64, N)
	for k := 0; k < K; k++ {
		mat.Col(col, k, logw)
		g.logmass[k] = floats.LogSumExp(col)
	}
	total := floats.LogSumExp(g.logmass)
	for k := range g.logmass {
		g.logmass[k] -= total
	}

	// Normalize over points to get weights for refitting each cluster,
	// rebooting clusters whose mass has collapsed
	w := make([]float64, N)
	diff := mat.NewVecDense(D, nil)
	for k := 0; k < K; k++ {
		mat.Col(col, k, logw)
		if math.Exp(g.logmass[k]) < rebootMass/float64(K) {
			for n := range w {
				w[n] = 1.0 / float64(N)
			}
		} else {
			norm := floats.LogSumExp(col)
			for n := range w {
				w[n] = math.Exp(col[n] - norm)
			}
		}

		mu := mat.NewVecDense(D, nil)
		x := make([]float64, N)
		for d := 0; d < D; d++ {
			mat.Col(x, d, data)
			mu.SetVec(d, floats.Dot(w, x))
		}

		sigma := mat.NewSymDense(D, nil)
		for n := 0; n < N; n++ {
			for d := 0; d < D; d++ {
				diff.SetVec(d, data.At(n, d)-mu.AtVec(d))
			}
			sigma.SymRankOne(sigma, w[n], diff)
		}
		matutils.AddDiag(sigma, covReg)

		g.mu[k] = mu
		g.sigma[k] = sigma
	}
}

// ClusterWeights returns the posterior weights of each cluster,
// averaged over the rows of pts. If pts is nil, the cluster masses are
// returned.
func (g *GMM) ClusterWeights(pts mat.Matrix) ([]float64, error) {
	if pts == nil {
		return g.Mass(), nil
	}
	N, _ := pts.Dims()
	K := g.K()

	logobs, err := g.estep(pts)
	if err != nil {
		return nil, fmt.Errorf("clusterWeights: %w", err)
	}

	logwts := make([]float64, K)
	row := make([]float64, K)
	perPoint := make([][]float64, K)
	for k := range perPoint {
		perPoint[k] = make([]float64, N)
	}
	for n := 0; n < N; n++ {
		mat.Row(row, n, logobs)
		norm := floats.LogSumExp(row)
		for k := 0; k < K; k++ {
			perPoint[k][n] = row[k] - norm
		}
	}
	wts := make([]float64, K)
	for k := 0; k < K; k++ {
		logwts[k] = floats.LogSumExp(perPoint[k]) - math.Log(float64(N))
		wts[k] = math.Exp(logwts[k])
	}
	return wts, nil
}

// Moments returns the mean and covariance of the mixture when its
// clusters are weighted by wts
func (g *GMM) Moments(wts []float64) (*mat.VecDense, *mat.SymDense) {
	D := g.Dim()
	if len(wts) != g.K() {
		panic(fmt.Sprintf("moments: %d weights for %d clusters", len(wts),
			g.K()))
	}

	mu := mat.NewVecDense(D, nil)
	for k, w := range wts {
		mu.AddScaledVec(mu, w, g.mu[k])
	}

	sigma := mat.NewSymDense(D, nil)
	diff := mat.NewVecDense(D, nil)
	for k, w := range wts {
		diff.SubVec(g.mu[k], mu)
		sigma.SymRankOne(sigma, w, diff)
		var scaled mat.SymDense
		scaled.ScaleSym(w, g.sigma[k])
		sigma.AddSym(sigma, &scaled)
	}
	return mu, sigma
}

// Inference returns a Normal-inverse-Wishart prior local to the rows
// of pts, or to the whole mixture if pts is nil. The strengths of the
// returned prior are normalized by the number of points the mixture was
// fit to.
func (g *GMM) Inference(pts mat.Matrix) (*NIW, error) {
	if g.Empty() {
		return nil, fmt.Errorf("inference: mixture is empty")
	}

	wts, err := g.ClusterWeights(pts)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	mu0, Phi := g.Moments(wts)

	N := float64(g.n)
	return &NIW{
		Mu0: mu0,
		Phi: Phi,
		M:   1.0,
		N0:  math.Max((N-2-float64(mu0.Len()))/N, 0),
	}, nil
}

// ClusterCount returns the number of clusters to fit to the data of N
// rollouts of horizon T, growing the number of clusters only once each
// cluster would have minSamplesPerCluster points. At least two and at
// most maxClusters clusters are used.
func ClusterCount(N, T, minSamplesPerCluster, maxClusters int) int {
	K := (N * T) / minSamplesPerCluster
	if K < 2 {
		K = 2
	}
	if K > maxClusters {
		K = maxClusters
	}
	return K
}

type snapshot struct {
	mu      []*mat.VecDense
	sigma   []*mat.SymDense
	logmass []float64
}

func (g *GMM) snapshot() snapshot {
	s := snapshot{
		mu:      make([]*mat.VecDense, len(g.mu)),
		sigma:   make([]*mat.SymDense, len(g.sigma)),
		logmass: append([]float64(nil), g.logmass...),
	}
	for k := range g.mu {
		s.mu[k], s.sigma[k] = g.Cluster(k)
	}
	return s
}

func (g *GMM) restore(s snapshot) {
	g.mu = s.mu
	g.sigma = s.sigma
	g.logmass = s.logmass
}

// Params returns the mixture parameters as plain slices
func (g *GMM) Params() Params {
	p := Params{
		N:       g.n,
		LogMass: append([]float64(nil), g.logmass...),
		Mu:      make([][]float64, g.K()),
		Sigma:   make([][]float64, g.K()),
	}
	for k := range g.mu {
		p.Mu[k] = append([]float64(nil), g.mu[k].RawVector().Data...)
		p.Sigma[k] = mat.DenseCopyOf(g.sigma[k]).RawMatrix().Data
	}
	return p
}

// Params are the parameters of a mixture, stored as plain slices
type Params struct {
	N       int
	LogMass []float64
	Mu      [][]float64
	Sigma   [][]float64
}

// FromParams returns a mixture with the given parameters
func FromParams(p Params, seed uint64) *GMM {
	g := New(seed)
	g.n = p.N
	g.logmass = append([]float64(nil), p.LogMass...)
	g.mu = make([]*mat.VecDense, len(p.Mu))
	g.sigma = make([]*mat.SymDense, len(p.Sigma))
	for k := range p.Mu {
		D := len(p.Mu[k])
		g.mu[k] = mat.NewVecDense(D, append([]float64(nil), p.Mu[k]...))
		g.sigma[k] = matutils.Sym(mat.NewDense(D, D,
			append([]float64(nil), p.Sigma[k]...)))
	}
	return g
}
