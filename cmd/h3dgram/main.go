// File: cmd/h3dgram/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// h3dgram serves HTTP/3 frames over a single UDP socket.

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "h3dgram",
		Short: "Datagram reactor and HTTP/3 frame server",
		Long: `h3dgram multiplexes many peers over one UDP socket, parses HTTP/3
frames per peer and answers them with the built-in echo handler.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		pingCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("h3dgram %s (%s) %s %s/%s\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
