package cost

import "fmt"

// Type represents a type of cost function
type Type string

const (
	ActionType Type = "action"
	StateType  Type = "state"
	SumType    Type = "sum"
)

// Config represents a configuration for creating a cost function.
// Which fields are used depends on the Type:
//
//	action: Wu, Ramp
//	state:  Wp, Target, L1, L2, Alpha, Ramp, WpFinalMultiplier
//	sum:    Costs, Weights
//
// A zero WpFinalMultiplier is treated as 1.
type Config struct {
	Type Type `yaml:"type"`

	Wu []float64 `yaml:"wu,omitempty"`

	Wp                []float64 `yaml:"wp,omitempty"`
	Target            []float64 `yaml:"target,omitempty"`
	L1                float64   `yaml:"l1,omitempty"`
	L2                float64   `yaml:"l2,omitempty"`
	Alpha             float64   `yaml:"alpha,omitempty"`
	WpFinalMultiplier float64   `yaml:"wp_final_multiplier,omitempty"`

	Ramp Ramp `yaml:"ramp,omitempty"`

	Costs   []Config  `yaml:"costs,omitempty"`
	Weights []float64 `yaml:"weights,omitempty"`
}

// Validate returns an error describing whether or not the
// configuration is valid for states of dimension dX and actions of
// dimension dU
func (c Config) Validate(dX, dU int) error {
	if err := c.Ramp.Validate(); err != nil {
		return err
	}

	switch c.Type {
	case ActionType:
		if len(c.Wu) != dU {
			return fmt.Errorf("validate: action cost needs %d weights, "+
				"have %d", dU, len(c.Wu))
		}

	case StateType:
		if len(c.Wp) != dX {
			return fmt.Errorf("validate: state cost needs %d weights, "+
				"have %d", dX, len(c.Wp))
		}
		if len(c.Target) != dX {
			return fmt.Errorf("validate: state cost target must have "+
				"dimension %d, have %d", dX, len(c.Target))
		}
		if c.L1 < 0 || c.L2 < 0 {
			return fmt.Errorf("validate: l1 and l2 must be non-negative")
		}
		if c.L1 > 0 && c.Alpha <= 0 {
			return fmt.Errorf("validate: alpha must be positive when l1 > 0")
		}

	case SumType:
		if len(c.Costs) == 0 {
			return fmt.Errorf("validate: sum cost needs at least one cost")
		}
		if len(c.Costs) != len(c.Weights) {
			return fmt.Errorf("validate: sum cost has %d costs but %d "+
				"weights", len(c.Costs), len(c.Weights))
		}
		for i, sub := range c.Costs {
			if err := sub.Validate(dX, dU); err != nil {
				return fmt.Errorf("validate: cost %d: %w", i, err)
			}
		}

	default:
		return fmt.Errorf("validate: unknown cost type %q", c.Type)
	}
	return nil
}

// New returns the cost function described by a configuration
func New(c Config, dX, dU int) (Cost, error) {
	if err := c.Validate(dX, dU); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return build(c), nil
}

func build(c Config) Cost {
	ramp := c.Ramp
	if ramp == "" {
		ramp = Constant
	}

	switch c.Type {
	case ActionType:
		return NewAction(c.Wu, ramp)

	case StateType:
		finalMult := c.WpFinalMultiplier
		if finalMult == 0 {
			finalMult = 1.0
		}
		return NewState(c.Wp, c.Target, c.L1, c.L2, c.Alpha, ramp, finalMult)

	default:
		costs := make([]Cost, len(c.Costs))
		for i := range c.Costs {
			costs[i] = build(c.Costs[i])
		}
		return NewSum(costs, c.Weights)
	}
}
