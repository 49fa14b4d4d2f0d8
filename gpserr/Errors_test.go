package gpserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHelpersSeeThroughWrapping(t *testing.T) {
	insufficient := NewInsufficientData("fit", 2, NoTimestep)
	wrapped := fmt.Errorf("fitDynamics: %w", insufficient)

	assert.True(t, IsInsufficientData(wrapped))
	assert.False(t, IsNumericalInstability(wrapped))
	assert.False(t, IsSearchExhausted(wrapped))
	assert.Equal(t, "fit: insufficient data for condition 2", insufficient.Error())

	unstable := NewNumericalInstability("backward", 0, errors.New("nan"))
	assert.True(t, IsNumericalInstability(fmt.Errorf("update: %w", unstable)))
	assert.Equal(t, "backward: numerical instability in condition 0: nan",
		unstable.Error())

	exhausted := &TrustRegionSearchExhaustedError{Condition: 1, KL: 2,
		Bound: 1, Eta: 3}
	assert.True(t, IsSearchExhausted(exhausted))
	assert.False(t, IsInsufficientData(exhausted))
}

func TestInsufficientDataMessage(t *testing.T) {
	err := NewInsufficientData("fit", NoCondition, 4)
	assert.Equal(t, "fit: insufficient data at timestep 4", err.Error())
}
