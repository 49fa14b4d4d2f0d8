//go:build !gym
// +build !gym

package config

import (
	"fmt"

	"github.com/samuelfneumann/gogps/environment"
)

func newGym(GymConfig) (environment.Environment, error) {
	return nil, fmt.Errorf("newGym: gym environments require building " +
		"with the gym tag")
}
