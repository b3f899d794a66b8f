// quarry is a lightweight game server front end: it accepts client
// connections, answers server-list status queries, and completes the login
// handshake, with an optional admin API, MQTT telemetry, and login history.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarry-project/quarry/internal/config"
)

const banner = `
   ____                            
  / __ \__  ______ _______________ __
 / / / / / / / __ '/ ___/ ___/ / / /
/ /_/ / /_/ / /_/ / /  / /  / /_/ / 
\___\_\__,_/\__,_/_/  /_/   \__, /  
                           /____/  v%s
`

func main() {
	var opts runOptions

	rootCmd := &cobra.Command{
		Use:   "quarry",
		Short: "Game server connection front end",
		Long: `quarry accepts game client connections, answers status queries
for the server list, and completes the login handshake.

Optional subsystems are enabled in the config file:
  [api]       admin REST API and Prometheus metrics
  [database]  SQLite login history
  [mqtt]      MQTT event telemetry`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile, "path to the TOML config file")
	rootCmd.Flags().BoolVar(&opts.console, "console", true, "read operator commands from stdin")

	rootCmd.AddCommand(
		versionCmd(),
		initCmd(&opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
