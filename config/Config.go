// Package config defines the configuration of a run: the algorithm and
// its components, the environment, the training backend of the global
// policy, and checkpointing. A Config is loaded once from YAML,
// validated, and then only read.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/gogps/algorithm"
	"github.com/samuelfneumann/gogps/cost"
	"github.com/samuelfneumann/gogps/environment"
	"github.com/samuelfneumann/gogps/environment/linear"
	"github.com/samuelfneumann/gogps/environment/pendulum"
	"github.com/samuelfneumann/gogps/experiment/checkpointer"
	"github.com/samuelfneumann/gogps/experiment/tracker"
	"github.com/samuelfneumann/gogps/policyopt"
	policylinear "github.com/samuelfneumann/gogps/policyopt/linear"
	"github.com/samuelfneumann/gogps/policyopt/network"
)

// EnvironmentType is a type of environment
type EnvironmentType string

const (
	Linear   EnvironmentType = "linear"
	Pendulum EnvironmentType = "pendulum"

	// Gym requires building with the gym tag
	Gym EnvironmentType = "gym"
)

// Environment configures the environment. Only the section matching
// Type is used.
type Environment struct {
	Type     EnvironmentType `yaml:"type"`
	Linear   linear.Config   `yaml:"linear"`
	Pendulum pendulum.Config `yaml:"pendulum"`
	Gym      GymConfig       `yaml:"gym"`
}

// GymConfig configures an OpenAI Gym environment. Each seed defines one
// condition.
type GymConfig struct {
	Name  string `yaml:"name"`
	Seeds []int  `yaml:"seeds,omitempty"`
}

// Backend configures the training backends of the global policy. The
// backend used is selected by the policy_opt section of the algorithm.
type Backend struct {
	Linear  policylinear.Config `yaml:"linear"`
	Network network.Config      `yaml:"network"`
}

// Checkpoint configures checkpointing. Checkpointing is disabled if
// Every is zero.
type Checkpoint struct {
	Dir   string `yaml:"dir"`
	Every int    `yaml:"every"`
}

// Config is the configuration of a run
type Config struct {
	Algorithm   algorithm.Config `yaml:"algorithm"`
	Environment Environment      `yaml:"environment"`
	Backend     Backend          `yaml:"backend"`
	Checkpoint  Checkpoint       `yaml:"checkpoint"`
}

// Default returns a configuration that runs on the scalar integrator
// x' = x + u with a quadratic cost on the state and action
func Default() *Config {
	alg := algorithm.DefaultConfig()
	alg.T = 20
	alg.Cost = cost.Config{
		Type: cost.SumType,
		Costs: []cost.Config{
			{Type: cost.ActionType, Wu: []float64{1}},
			{Type: cost.StateType, Wp: []float64{1}, Target: []float64{0},
				L2: 1},
		},
		Weights: []float64{1, 1},
	}

	return &Config{
		Algorithm: alg,
		Environment: Environment{
			Type:     Linear,
			Linear:   linear.DefaultConfig(),
			Pendulum: pendulum.DefaultConfig(),
		},
		Backend: Backend{
			Linear:  policylinear.DefaultConfig(),
			Network: network.DefaultConfig(),
		},
		Checkpoint: Checkpoint{Dir: "checkpoints"},
	}
}

// Load reads a configuration from a YAML file. Fields missing from the
// file keep their default values, and unknown fields are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: could not read config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a YAML configuration
func Parse(data []byte) (*Config, error) {
	c := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return c, nil
}

// Validate returns an error describing whether or not the
// configuration is valid. Checks that need the dimensions of the
// environment happen when the algorithm is created.
func (c *Config) Validate() error {
	if err := c.Algorithm.Validate(); err != nil {
		return fmt.Errorf("validate: algorithm: %w", err)
	}

	switch c.Environment.Type {
	case Linear:
		if err := c.Environment.Linear.Validate(); err != nil {
			return fmt.Errorf("validate: environment: %w", err)
		}
	case Pendulum:
		if err := c.Environment.Pendulum.Validate(); err != nil {
			return fmt.Errorf("validate: environment: %w", err)
		}
	case Gym:
		if c.Environment.Gym.Name == "" || len(c.Environment.Gym.Seeds) == 0 {
			return fmt.Errorf("validate: environment: gym needs a name " +
				"and at least one seed")
		}
	default:
		return fmt.Errorf("validate: unknown environment type %q",
			c.Environment.Type)
	}

	switch c.Algorithm.PolicyOpt.Backend {
	case policyopt.LinearBackend:
		if err := c.Backend.Linear.Validate(); err != nil {
			return fmt.Errorf("validate: backend: %w", err)
		}
	case policyopt.NetworkBackend:
		if err := c.Backend.Network.Validate(); err != nil {
			return fmt.Errorf("validate: backend: %w", err)
		}
	}

	if c.Checkpoint.Every < 0 {
		return fmt.Errorf("validate: checkpoint every must be non-negative")
	}
	if c.Checkpoint.Every > 0 && c.Checkpoint.Dir == "" {
		return fmt.Errorf("validate: checkpoint dir must be given")
	}
	return nil
}

// YAML returns the configuration encoded as YAML
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// NewEnvironment creates the configured environment
func (c *Config) NewEnvironment() (environment.Environment, error) {
	seed := c.Algorithm.Seed
	var env environment.Environment
	var err error
	switch c.Environment.Type {
	case Linear:
		env, err = orNil(linear.New(c.Environment.Linear, seed))
	case Pendulum:
		env, err = orNil(pendulum.New(c.Environment.Pendulum, seed))
	case Gym:
		env, err = newGym(c.Environment.Gym)
	default:
		err = fmt.Errorf("unknown environment type %q", c.Environment.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("newEnvironment: %w", err)
	}
	return env, nil
}

// orNil converts the result of an environment constructor so that a
// failed construction yields a nil interface
func orNil(env environment.Environment, err error) (environment.Environment,
	error) {
	if err != nil {
		return nil, err
	}
	return env, nil
}

// NewBackend creates the configured training backend
func (c *Config) NewBackend() (policyopt.Backend, error) {
	switch c.Algorithm.PolicyOpt.Backend {
	case policyopt.LinearBackend:
		b, err := policylinear.New(c.Backend.Linear)
		if err != nil {
			return nil, fmt.Errorf("newBackend: %w", err)
		}
		return b, nil

	case policyopt.NetworkBackend:
		b, err := network.New(c.Backend.Network)
		if err != nil {
			return nil, fmt.Errorf("newBackend: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("newBackend: unknown backend %q",
		c.Algorithm.PolicyOpt.Backend)
}

// NewCheckpointer creates a checkpointer writing into a fresh run
// directory, or returns nil if checkpointing is disabled
func (c *Config) NewCheckpointer() (checkpointer.Checkpointer, string,
	error) {
	if c.Checkpoint.Every == 0 {
		return nil, "", nil
	}
	dir, err := checkpointer.RunDir(c.Checkpoint.Dir)
	if err != nil {
		return nil, "", fmt.Errorf("newCheckpointer: %w", err)
	}
	ck, err := checkpointer.NewNStep(c.Checkpoint.Every,
		checkpointer.IterationFilename(dir, "snapshot", ".gob"))
	if err != nil {
		return nil, "", fmt.Errorf("newCheckpointer: %w", err)
	}
	return ck, dir, nil
}

// NewAlgorithm creates the environment, backend, and checkpointer and
// returns the algorithm that runs on them. When checkpointing is
// enabled, the mean rollout costs of every iteration are also tracked
// and saved to costs.gob in the run directory by Algorithm.Save. The environment is returned
// so that the caller can release it when done.
func (c *Config) NewAlgorithm() (*algorithm.Algorithm,
	environment.Environment, error) {
	env, err := c.NewEnvironment()
	if err != nil {
		return nil, nil, fmt.Errorf("newAlgorithm: %w", err)
	}
	backend, err := c.NewBackend()
	if err != nil {
		return nil, nil, fmt.Errorf("newAlgorithm: %w", err)
	}
	ck, dir, err := c.NewCheckpointer()
	if err != nil {
		return nil, nil, fmt.Errorf("newAlgorithm: %w", err)
	}

	alg, err := algorithm.New(c.Algorithm, env, backend, ck)
	if err != nil {
		return nil, nil, fmt.Errorf("newAlgorithm: %w", err)
	}
	if dir != "" {
		alg.Register(tracker.NewCost(filepath.Join(dir, "costs.gob")))
	}
	return alg, env, nil
}
