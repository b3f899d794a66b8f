package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarry-project/quarry/internal/config"
)

// initCmd walks the operator through creating or editing the config file.
func initCmd(opts *runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or edit the config file interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return config.RunSetupWizard(cfg, os.Stdin, cmd.OutOrStdout())
		},
	}
}
