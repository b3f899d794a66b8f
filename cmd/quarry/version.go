package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/quarry-project/quarry/internal/protocol"
	"github.com/quarry-project/quarry/internal/util"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, util.Version)
				return
			}

			fmt.Fprintf(out, banner, util.Version)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Version:    %s\n", util.Version)
			fmt.Fprintf(out, "  Game:       %s (protocol %d)\n", protocol.VersionName, protocol.ProtocolVersion)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}
