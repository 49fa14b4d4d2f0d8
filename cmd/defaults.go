package cmd

import (
	"github.com/spf13/cobra"

	"github.com/samuelfneumann/gogps/config"
)

// defaultsCmd prints the default configuration as YAML
var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Default().YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
