package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gavi",
		Short: "Asynchronous gateway interface server for Go",
		Long: `Gavi is an asynchronous application-server protocol for Go.

It hands each incoming connection to application code as an immutable
scope plus a receive/send event pair, negotiates optional server
capabilities per connection, and enforces the protocol contract however
the application misbehaves.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
