package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MRamiBalles/TankArenaBridge/internal/app"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/config"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
)

var (
	serveProfile      string
	serveConfigPath   string
	serveIP           string
	servePort         int
	serveVerbose      bool
	serveAsync        bool
	serveUnthrottled  bool
	serveTimeScale    float64
	serveActionRepeat int
	serveMonitor      string
	serveStorage      string
	serveTrajectories string
	serveNATS         string
	serveArena        string
	serveSeed         int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Wait for a controller and run episodes until it ends the service",
	Long: `Resolve the configuration (profile, then config file, then .env and
ARENA_* variables, then flags), bind the controller port and wait for one
controller. The server exits when the controller sends end, on SIGINT or
SIGTERM, or with a non-zero status when the connection fails.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(serveProfile, serveConfigPath)
		if err != nil {
			return err
		}
		applyServeFlags(cmd.Flags(), cfg)

		log := logger.NewLogger(logger.Options{Verbose: cfg.Verbose})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := app.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("startup failed: %w", err)
		}
		defer srv.Close()

		if err := srv.Run(ctx); err != nil {
			log.Error("server stopped", "err", err)
			return err
		}
		return nil
	},
}

func registerServeFlags(fs *pflag.FlagSet) {
	fs.StringVar(&serveProfile, "profile", "default", "configuration profile (default, training, debug)")
	fs.StringVarP(&serveConfigPath, "config", "c", "", "YAML or JSON config file")
	fs.StringVar(&serveIP, "ip", "", "controller listen address")
	fs.IntVarP(&servePort, "port", "p", 0, "controller listen port")
	fs.BoolVarP(&serveVerbose, "verbose", "v", false, "log phase transitions and configuration")
	fs.BoolVar(&serveAsync, "async", false, "do not block the simulation waiting for replies")
	fs.BoolVar(&serveUnthrottled, "unthrottled", false, "tick as fast as the controller answers")
	fs.Float64Var(&serveTimeScale, "time-scale", 1, "simulated seconds per wall-clock second")
	fs.IntVar(&serveActionRepeat, "action-repeat", 1, "ticks per exchange")
	fs.StringVar(&serveMonitor, "monitor", "", "HTTP monitor address, empty to disable")
	fs.StringVar(&serveStorage, "storage", "", "SQLite episode ledger path, empty to disable")
	fs.StringVar(&serveTrajectories, "trajectories", "", "directory for recorded trajectories, empty to disable")
	fs.StringVar(&serveNATS, "nats", "", "NATS URL for episode announcements")
	fs.StringVar(&serveArena, "arena", "", "arena layout file")
	fs.Int64Var(&serveSeed, "seed", 1, "seed for scripted pilots")
}

// applyServeFlags overrides only the flags given on the command line.
func applyServeFlags(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("ip", func() { cfg.ConnectionIP = serveIP })
	set("port", func() { cfg.ConnectionPort = servePort })
	set("verbose", func() { cfg.Verbose = serveVerbose })
	set("async", func() { cfg.Async = serveAsync })
	set("unthrottled", func() { cfg.Unthrottled = serveUnthrottled })
	set("time-scale", func() { cfg.TimeScale = serveTimeScale })
	set("action-repeat", func() { cfg.ActionRepeat = serveActionRepeat })
	set("monitor", func() { cfg.MonitorAddress = serveMonitor })
	set("storage", func() { cfg.StoragePath = serveStorage })
	set("trajectories", func() { cfg.TrajectoryDir = serveTrajectories })
	set("nats", func() { cfg.NATSURL = serveNATS })
	set("arena", func() { cfg.ArenaPath = serveArena })
	set("seed", func() { cfg.Seed = serveSeed })
}
