package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/samuelfneumann/gogps/config"
)

var (
	configPath string // Path to a YAML configuration
	iterations int    // Overrides the configured iteration count
	seed       int64  // Overrides the configured seed
)

// runCmd runs guided policy search
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run guided policy search",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := config.Default()
		if configPath != "" {
			var err error
			if c, err = config.Load(configPath); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("iterations") {
			c.Algorithm.Iterations = iterations
		}
		if cmd.Flags().Changed("seed") {
			if seed < 0 {
				return fmt.Errorf("seed must be non-negative")
			}
			c.Algorithm.Seed = uint64(seed)
		}
		if err := c.Validate(); err != nil {
			return err
		}

		alg, env, err := c.NewAlgorithm()
		if err != nil {
			return err
		}
		if closer, ok := env.(io.Closer); ok {
			defer closer.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := alg.Run(ctx); err != nil {
			return err
		}
		if err := alg.Save(); err != nil {
			return err
		}
		logrus.WithField("costs", alg.Costs()).Infof("finished %d iterations",
			alg.Iteration())
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML configuration (defaults are used if not given)")
	runCmd.Flags().IntVar(&iterations, "iterations", 0,
		"Number of iterations, overriding the configuration")
	runCmd.Flags().Int64Var(&seed, "seed", 0,
		"Random seed, overriding the configuration")
}
