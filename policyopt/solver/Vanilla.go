package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver.
type VanillaConfig struct {
	StepSize float64 `yaml:"step_size"`
	Clip     float64 `yaml:"clip"` // <= 0 if no clipping
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize, clip float64) (*Solver, error) {
	return newSolver(Vanilla, VanillaConfig{StepSize: stepSize, Clip: clip})
}

// Create returns a Gorgonia Vanilla Solver as described by the
// VanillaConfig
func (v VanillaConfig) Create() G.Solver {
	if v.Clip <= 0 {
		return G.NewVanillaSolver(G.WithLearnRate(v.StepSize))
	}
	return G.NewVanillaSolver(G.WithLearnRate(v.StepSize),
		G.WithClip(v.Clip))
}

// Validate returns an error if the configuration is invalid
func (v VanillaConfig) Validate() error {
	if v.StepSize <= 0 {
		return fmt.Errorf("validate: step size must be positive")
	}
	return nil
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}
