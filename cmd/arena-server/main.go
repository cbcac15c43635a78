// Package main is the entry point for the tank arena server.
// It only handles flag parsing, dependency injection and shutdown.
// NO simulation or protocol logic belongs here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arena-server",
	Short: "Lockstep controller bridge for the tank arena",
	Long: `arena-server simulates a two-team tank arena and exposes it to a single
external controller over TCP. The controller starts episodes, receives a
fixed-length observation every exchange tick and answers with one action
per remote tank.

Running without a subcommand is the same as "arena-server serve".`,
	SilenceUsage: true,
	RunE:         serveCmd.RunE,
}

func init() {
	rootCmd.AddCommand(serveCmd, schemaCmd)
	registerServeFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
