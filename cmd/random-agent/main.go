// Package main is a baseline controller: it connects to a running arena
// server and plays episodes with uniformly random (or idle) actions.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MRamiBalles/TankArenaBridge/internal/envclient"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

var (
	agentAddr     string
	agentEpisodes int
	agentEntities []int
	agentIdle     bool
	agentSeed     uint64
	agentTimeout  time.Duration
	agentVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "random-agent",
	Short: "Play episodes against the arena server with random actions",
	Long: `random-agent dials the arena server, plays the requested number of
episodes and prints the outcome of each one plus a summary. With --idle every
action is zero, which makes every episode a time-limit draw unless scripted
pilots fight.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := logger.NewLogger(logger.Options{Verbose: agentVerbose, Prefix: "agent"})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := envclient.DefaultOptions()
		opts.Timeout = agentTimeout
		env, err := envclient.Dial(ctx, agentAddr, opts)
		if err != nil {
			return err
		}
		log.Info("connected", "addr", agentAddr)

		policy := newPolicy(agentSeed, agentIdle)
		stats, playErr := play(ctx, env, policy, agentEntities, agentEpisodes, func(n int, r episodeResult) {
			fmt.Fprintf(cmd.OutOrStdout(), "episode %d: winner %d after %s steps (%s)\n",
				n, r.Winner, humanize.Comma(int64(r.Steps)), r.Elapsed.Round(time.Millisecond))
		})
		if err := env.Close(context.Background()); err != nil && playErr == nil {
			log.Warn("failed to end the service", "err", err)
		}
		stats.print(cmd.OutOrStdout())
		return playErr
	},
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVarP(&agentAddr, "addr", "a", "127.0.0.1:50000", "arena server controller address")
	fs.IntVarP(&agentEpisodes, "episodes", "n", 10, "episodes to play")
	fs.IntSliceVar(&agentEntities, "entities", []int{1, 2}, "entity ids to send actions for")
	fs.BoolVar(&agentIdle, "idle", false, "send zero actions")
	fs.Uint64Var(&agentSeed, "seed", 0, "random seed, 0 picks one")
	fs.DurationVar(&agentTimeout, "timeout", 30*time.Second, "wait for each server message at most this long")
	fs.BoolVarP(&agentVerbose, "verbose", "v", false, "verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// policy draws one action per entity.
type policy struct {
	rng  *rand.Rand
	idle bool
}

func newPolicy(seed uint64, idle bool) *policy {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &policy{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), idle: idle}
}

// Act returns move and aim in [-1, 1] and fire intent in [0, 1].
func (p *policy) Act() protocol.Action {
	var a protocol.Action
	if p.idle {
		return a
	}
	for i := 0; i < 4; i++ {
		a[i] = p.rng.Float64()*2 - 1
	}
	a[4] = p.rng.Float64()
	return a
}
