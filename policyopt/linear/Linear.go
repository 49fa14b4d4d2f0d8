// Package linear implements a training backend that fits an affine
// global policy in closed form by precision-weighted least squares
package linear

import (
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/gogps/gpserr"
	"github.com/samuelfneumann/gogps/policyopt"
	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// Config configures a Backend
type Config struct {
	// Regularization is the ridge penalty on the policy parameters
	Regularization float64 `yaml:"regularization"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{Regularization: 1e-6}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if c.Regularization < 0 {
		return fmt.Errorf("validate: regularization must be non-negative")
	}
	return nil
}

// Backend fits affine policies u = W [o; 1] minimizing
//
//	Σᵢ (W φᵢ - μᵢ)ᵀ Pᵢ (W φᵢ - μᵢ) + λ ||W||²,  φᵢ = [oᵢ; 1]
//
// The fit is exact, so the iteration budget is unused.
type Backend struct {
	config Config
}

// New returns a new linear Backend
func New(config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return &Backend{config: config}, nil
}

// Fit implements the policyopt.Backend interface
func (b *Backend) Fit(ex *policyopt.Examples, iterations int) (
	policyopt.Handle, error) {
	if err := ex.Validate(); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	N := ex.Len()
	if N == 0 {
		return nil, gpserr.NewInsufficientData("fit", gpserr.NoCondition,
			gpserr.NoTimestep)
	}
	dO, dU := ex.Dims()
	dF := dO + 1
	D := dU * dF

	// Normal equations over the rows of W stacked into one vector:
	// H = Σᵢ Pᵢ ⊗ φᵢφᵢᵀ, g = Σᵢ Pᵢμᵢ ⊗ φᵢ
	H := mat.NewDense(D, D, nil)
	g := mat.NewVecDense(D, nil)
	outer := mat.NewDense(dF, dF, nil)
	var kron mat.Dense
	var pmu mat.VecDense
	for i := 0; i < N; i++ {
		phi := matutils.Concat(ex.Obs.RowView(i), mat.NewVecDense(1,
			[]float64{1}))
		outer.Outer(1, phi, phi)
		kron.Kronecker(ex.Precision[i], outer)
		H.Add(H, &kron)

		pmu.MulVec(ex.Precision[i], ex.Mean.RowView(i))
		for a := 0; a < dU; a++ {
			for j := 0; j < dF; j++ {
				g.SetVec(a*dF+j, g.AtVec(a*dF+j)+pmu.AtVec(a)*phi.AtVec(j))
			}
		}
		kron.Reset()
	}

	Hs := matutils.Sym(H)
	matutils.AddDiag(Hs, b.config.Regularization)

	var chol mat.Cholesky
	if ok := chol.Factorize(Hs); !ok {
		return nil, gpserr.NewNumericalInstability("fit", gpserr.NoCondition,
			fmt.Errorf("normal equations are not positive definite"))
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, g); err != nil {
		return nil, gpserr.NewNumericalInstability("fit", gpserr.NoCondition,
			err)
	}

	return &Handle{W: mat.NewDense(dU, dF, w.RawVector().Data)}, nil
}

// Handle is a fitted affine policy. The last column of W is the bias.
type Handle struct {
	W *mat.Dense
}

// Predict implements the policyopt.Handle interface
func (h *Handle) Predict(obs mat.Vector) *mat.VecDense {
	dU, dF := h.W.Dims()
	if obs.Len() != dF-1 {
		panic(fmt.Sprintf("predict: observation must have dimension %d, "+
			"have %d", dF-1, obs.Len()))
	}
	u := mat.NewVecDense(dU, nil)
	u.MulVec(h.W.Slice(0, dU, 0, dF-1), obs)
	u.AddVec(u, h.W.ColView(dF-1))
	return u
}

func init() {
	gob.Register(&Handle{})
}
