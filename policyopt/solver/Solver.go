// Package solver wraps Gorgonia solvers so that they can be described
// in YAML configuration files
package solver

import (
	"fmt"

	"gopkg.in/yaml.v3"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "adam"
	Vanilla Type = "vanilla"
	RMSProp Type = "rmsprop"
)

// Config implements a Gorgonia Solver configuration and can be used to
// create the Gorgonia Solver it describes
type Config interface {
	Create() G.Solver
	Validate() error

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

// Solver wraps a Gorgonia Solver together with the configuration that
// created it
type Solver struct {
	G.Solver
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newSolver: %w", err)
	}
	return &Solver{Solver: c.Create(), Type: t, Config: c}, nil
}

// Default returns the default solver, Adam with step size 1e-3
func Default() *Solver {
	s, err := NewDefaultAdam(1e-3)
	if err != nil {
		panic(fmt.Sprintf("default: %v", err))
	}
	return s
}

// Reset recreates the underlying Gorgonia Solver, dropping any
// accumulated state such as moment estimates
func (s *Solver) Reset() {
	s.Solver = s.Config.Create()
}

type yamlSolver struct {
	Type   Type      `yaml:"type"`
	Config yaml.Node `yaml:"config"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. Fields
// missing from the configuration keep their default values.
func (s *Solver) UnmarshalYAML(value *yaml.Node) error {
	var raw yamlSolver
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("unmarshalYAML: %w", err)
	}

	var config Config
	var err error
	switch raw.Type {
	case Adam:
		c := defaultAdam(1e-3)
		err = decodeInto(&raw.Config, &c)
		config = c
	case Vanilla:
		c := VanillaConfig{StepSize: 1e-2}
		err = decodeInto(&raw.Config, &c)
		config = c
	case RMSProp:
		c := defaultRMSProp(1e-3)
		err = decodeInto(&raw.Config, &c)
		config = c
	default:
		return fmt.Errorf("unmarshalYAML: unknown solver type %q", raw.Type)
	}
	if err != nil {
		return fmt.Errorf("unmarshalYAML: %w", err)
	}

	solver, err := newSolver(raw.Type, config)
	if err != nil {
		return fmt.Errorf("unmarshalYAML: %w", err)
	}
	*s = *solver
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface
func (s Solver) MarshalYAML() (interface{}, error) {
	return struct {
		Type   Type   `yaml:"type"`
		Config Config `yaml:"config"`
	}{s.Type, s.Config}, nil
}

func decodeInto(node *yaml.Node, out interface{}) error {
	if node.Kind == 0 {
		return nil
	}
	return node.Decode(out)
}
