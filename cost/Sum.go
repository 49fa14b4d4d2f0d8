package cost

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sum is a weighted sum of costs. Its value and derivatives are the
// weighted sums of those of its constituent costs.
type Sum struct {
	costs   []Cost
	weights []float64
}

// NewSum returns a new Sum of costs
func NewSum(costs []Cost, weights []float64) *Sum {
	if len(costs) != len(weights) {
		panic(fmt.Sprintf("newSum: %d costs but %d weights", len(costs),
			len(weights)))
	}
	c := make([]Cost, len(costs))
	copy(c, costs)
	w := make([]float64, len(weights))
	copy(w, weights)

	return &Sum{costs: c, weights: w}
}

// Eval implements the Cost interface
func (s *Sum) Eval(x, u mat.Matrix) *Derivatives {
	T, dX, dU := checkTrajectory("eval", x, u)
	d := NewDerivatives(T, dX, dU)
	for i, c := range s.costs {
		d.AddScaled(s.weights[i], c.Eval(x, u))
	}
	return d
}
