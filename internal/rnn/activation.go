package rnn

import (
	"fmt"
	"math"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// Activation is the elementwise nonlinearity of the recurrence. Derivative is
// expressed in terms of the activation output, which is what the backward
// pass has at hand.
type Activation struct {
	name       string
	apply      func(x float64) float64
	derivative func(y float64) float64
	initScale  float64
}

// Tanh is the default activation.
var Tanh = Activation{
	name:       constants.ActivationTanh,
	apply:      math.Tanh,
	derivative: func(y float64) float64 { return 1 - y*y },
	initScale:  1,
}

// Sigmoid is the logistic activation. Freshly initialized weights are scaled
// by 4 when it is used.
var Sigmoid = Activation{
	name:       constants.ActivationSigmoid,
	apply:      func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
	derivative: func(y float64) float64 { return y * (1 - y) },
	initScale:  4,
}

// ParseActivation resolves an activation by name. The empty name selects tanh.
func ParseActivation(name string) (Activation, error) {
	switch name {
	case "", constants.ActivationTanh:
		return Tanh, nil
	case constants.ActivationSigmoid:
		return Sigmoid, nil
	default:
		return Activation{}, errors.NewConfigurationError(errors.CodeInvalidConfig,
			fmt.Sprintf("unknown activation %q", name))
	}
}

// Name returns the configuration name of the activation
func (a Activation) Name() string {
	return a.name
}

// Apply evaluates the activation at x
func (a Activation) Apply(x float64) float64 {
	return a.apply(x)
}

// Derivative returns the slope of the activation given its output y
func (a Activation) Derivative(y float64) float64 {
	return a.derivative(y)
}
