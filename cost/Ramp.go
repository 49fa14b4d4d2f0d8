package cost

import "fmt"

// Ramp determines how the weight of a cost changes over the horizon
type Ramp string

const (
	// Constant weights each timestep equally
	Constant Ramp = "constant"

	// Linear weights timestep t by (t+1)/T
	Linear Ramp = "linear"

	// Quadratic weights timestep t by ((t+1)/T)^2
	Quadratic Ramp = "quadratic"

	// FinalOnly weights only the last timestep
	FinalOnly Ramp = "final_only"
)

// Validate returns an error if r is not a known ramp
func (r Ramp) Validate() error {
	switch r {
	case Constant, Linear, Quadratic, FinalOnly, "":
		return nil
	}
	return fmt.Errorf("validate: unknown ramp %q", r)
}

// Multipliers returns the weight of each of the T timesteps under the
// ramp. The weight of the final timestep is further multiplied by
// finalMult.
func (r Ramp) Multipliers(T int, finalMult float64) []float64 {
	wpm := make([]float64, T)
	for t := range wpm {
		frac := float64(t+1) / float64(T)
		switch r {
		case Linear:
			wpm[t] = frac
		case Quadratic:
			wpm[t] = frac * frac
		case FinalOnly:
			if t == T-1 {
				wpm[t] = 1.0
			}
		default:
			wpm[t] = 1.0
		}
	}
	if T > 0 {
		wpm[T-1] *= finalMult
	}
	return wpm
}
