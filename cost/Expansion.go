package cost

import (
	"fmt"

	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// Expansion is a quadratic expansion of the cost around the origin of
// the joint state-action space. At timestep t, the cost of the
// state-action vector y = [x; u] is approximated by
//
//	Cc[t] + yᵀ Cv[t] + 0.5 yᵀ Cm[t] y
type Expansion struct {
	Cc []float64
	Cv []*mat.VecDense // T of dX+dU
	Cm []*mat.SymDense // T of (dX+dU) x (dX+dU)
	dX int
	dU int
}

// Dims returns the state and action dimensions
func (e *Expansion) Dims() (dX, dU int) {
	return e.dX, e.dU
}

// T returns the horizon of the expansion
func (e *Expansion) T() int {
	return len(e.Cc)
}

// NewExpansion returns a new Expansion of horizon T with all terms
// zero
func NewExpansion(T, dX, dU int) *Expansion {
	e := &Expansion{
		Cc: make([]float64, T),
		Cv: make([]*mat.VecDense, T),
		Cm: make([]*mat.SymDense, T),
		dX: dX,
		dU: dU,
	}
	for t := 0; t < T; t++ {
		e.Cv[t] = mat.NewVecDense(dX+dU, nil)
		e.Cm[t] = mat.NewSymDense(dX+dU, nil)
	}
	return e
}

// Expand re-expands the derivatives d, computed along the trajectory
// (x, u), around the origin
func Expand(x, u mat.Matrix, d *Derivatives) *Expansion {
	T, dX, dU := checkTrajectory("expand", x, u)
	if d.T() != T {
		panic(fmt.Sprintf("expand: derivatives have %d timesteps but "+
			"trajectory has %d", d.T(), T))
	}
	dXU := dX + dU

	e := &Expansion{
		Cc: make([]float64, T),
		Cv: make([]*mat.VecDense, T),
		Cm: make([]*mat.SymDense, T),
		dX: dX,
		dU: dU,
	}
	for t := 0; t < T; t++ {
		cm := mat.NewDense(dXU, dXU, nil)
		matutils.SetBlock(cm, 0, 0, d.Lxx[t])
		matutils.SetBlock(cm, dX, dX, d.Luu[t])
		matutils.SetBlock(cm, dX, 0, d.Lux[t])
		matutils.SetBlock(cm, 0, dX, d.Lux[t].T())
		Cm := matutils.Sym(cm)

		cv := matutils.Concat(d.Lx.RowView(t), d.Lu.RowView(t))

		// Negated trajectory point, the offset to the origin
		diff := matutils.Concat(matutils.Row(x, t), matutils.Row(u, t))
		diff.ScaleVec(-1, diff)

		var update mat.VecDense
		update.MulVec(Cm, diff)

		e.Cc[t] = d.L[t] + mat.Dot(diff, cv) + 0.5*mat.Dot(diff, &update)
		cv.AddVec(cv, &update)
		e.Cv[t] = cv
		e.Cm[t] = Cm
	}
	return e
}

// Mean returns the average of a number of expansions
func Mean(expansions []*Expansion) *Expansion {
	if len(expansions) == 0 {
		panic("mean: no expansions")
	}
	T := expansions[0].T()
	dX, dU := expansions[0].Dims()
	n := float64(len(expansions))

	out := NewExpansion(T, dX, dU)
	for t := 0; t < T; t++ {
		for _, e := range expansions {
			if e.T() != T {
				panic(fmt.Sprintf("mean: horizon mismatch %d != %d", e.T(), T))
			}
			out.Cc[t] += e.Cc[t] / n
			out.Cv[t].AddScaledVec(out.Cv[t], 1/n, e.Cv[t])
			out.Cm[t].AddSym(out.Cm[t], scaledSym(1/n, e.Cm[t]))
		}
	}
	return out
}
