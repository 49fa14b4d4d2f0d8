package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Activation is the name of an activation function
type Activation string

const (
	ReLU     Activation = "relu"
	TanH     Activation = "tanh"
	Sigmoid  Activation = "sigmoid"
	Identity Activation = "identity"
)

// Validate returns an error if the activation is unknown
func (a Activation) Validate() error {
	switch a {
	case ReLU, TanH, Sigmoid, Identity:
		return nil
	}
	return fmt.Errorf("validate: unknown activation %q", a)
}

// fwd applies the activation to x
func (a Activation) fwd(x *G.Node) (*G.Node, error) {
	switch a {
	case ReLU:
		return G.Rectify(x)
	case TanH:
		return G.Tanh(x)
	case Sigmoid:
		return G.Sigmoid(x)
	case Identity:
		return x, nil
	}
	return nil, fmt.Errorf("fwd: unknown activation %q", a)
}
