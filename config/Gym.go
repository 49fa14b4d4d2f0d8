//go:build gym
// +build gym

package config

import (
	"github.com/samuelfneumann/gogps/environment"
	"github.com/samuelfneumann/gogps/environment/gym"
)

func newGym(c GymConfig) (environment.Environment, error) {
	env, err := gym.New(gym.Config{Name: c.Name, Seeds: c.Seeds})
	if err != nil {
		return nil, err
	}
	return env, nil
}
