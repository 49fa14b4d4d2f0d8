package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// InitType is a weight initialization scheme
type InitType string

const (
	Zeroes   InitType = "zeroes"
	Constant InitType = "constant"
	Gaussian InitType = "gaussian"
	Uniform  InitType = "uniform"
	GlorotU  InitType = "glorot_u"
	GlorotN  InitType = "glorot_n"
	HeU      InitType = "he_u"
	HeN      InitType = "he_n"
)

// InitConfig describes a weight initializer. Only the fields used by
// its Type are read: Value for constant, Mean and StdDev for gaussian,
// Low and High for uniform, and Gain for the Glorot and He schemes.
type InitConfig struct {
	Type   InitType `yaml:"type"`
	Value  float64  `yaml:"value"`
	Mean   float64  `yaml:"mean"`
	StdDev float64  `yaml:"std_dev"`
	Low    float64  `yaml:"low"`
	High   float64  `yaml:"high"`
	Gain   float64  `yaml:"gain"`
}

// Validate returns an error if the initializer is invalid
func (c InitConfig) Validate() error {
	switch c.Type {
	case Zeroes, Constant:
	case Gaussian:
		if c.StdDev < 0 {
			return fmt.Errorf("validate: std_dev must be non-negative")
		}
	case Uniform:
		if c.High < c.Low {
			return fmt.Errorf("validate: high must be at least low")
		}
	case GlorotU, GlorotN, HeU, HeN:
		if c.Gain <= 0 {
			return fmt.Errorf("validate: gain must be positive")
		}
	default:
		return fmt.Errorf("validate: unknown initializer %q", c.Type)
	}
	return nil
}

// Create returns the Gorgonia weight initializer described by the
// configuration
func (c InitConfig) Create() G.InitWFn {
	switch c.Type {
	case Zeroes:
		return G.Zeroes()
	case Constant:
		return G.ValuesOf(c.Value)
	case Gaussian:
		return G.Gaussian(c.Mean, c.StdDev)
	case Uniform:
		return G.Uniform(c.Low, c.High)
	case GlorotU:
		return G.GlorotU(c.Gain)
	case GlorotN:
		return G.GlorotN(c.Gain)
	case HeU:
		return G.HeU(c.Gain)
	case HeN:
		return G.HeN(c.Gain)
	}
	panic(fmt.Sprintf("create: unknown initializer %q", c.Type))
}
