// Package main runs the end-to-end protocol scenarios against in-process
// arena servers and exits non-zero when any of them fails.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/test"
)

var (
	runFilter  string
	runTimeout time.Duration
	runVerbose bool
	runList    bool
)

var rootCmd = &cobra.Command{
	Use:          "test-runner",
	Short:        "Run the arena protocol scenario suite",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		suite := test.NewSuite(out, logger.NewLogger(logger.Options{Verbose: runVerbose, Prefix: "scenario"}))
		suite.SetTimeout(runTimeout)

		if runList {
			for _, name := range suite.Scenarios() {
				fmt.Fprintln(out, name)
			}
			return nil
		}

		started := time.Now()
		results := suite.Run(cmd.Context(), runFilter)

		passed, failed := 0, 0
		for _, r := range results {
			if r.Passed {
				passed++
			} else {
				failed++
			}
		}

		fmt.Fprintln(out, "\n"+strings.Repeat("=", 60))
		fmt.Fprintln(out, "SUMMARY")
		fmt.Fprintln(out, strings.Repeat("=", 60))
		fmt.Fprintf(out, "   passed: %d\n", passed)
		fmt.Fprintf(out, "   failed: %d\n", failed)
		fmt.Fprintf(out, "   suite started %s\n", humanize.Time(started))

		if len(results) == 0 {
			return fmt.Errorf("no scenario matches %q", runFilter)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVarP(&runFilter, "run", "r", "", "only run scenarios whose name contains this")
	fs.DurationVar(&runTimeout, "timeout", 20*time.Second, "time limit per scenario")
	fs.BoolVarP(&runVerbose, "verbose", "v", false, "show server logs")
	fs.BoolVar(&runList, "list", false, "list scenarios and exit")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
