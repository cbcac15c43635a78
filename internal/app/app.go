// Package app wires the arena server together: controller listener,
// simulation, bridge, ledger and monitor. NO game logic belongs here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MRamiBalles/TankArenaBridge/internal/bridge"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/arena"
	"github.com/MRamiBalles/TankArenaBridge/internal/engine"
	"github.com/MRamiBalles/TankArenaBridge/internal/events"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/bus"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/cache"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/storage"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/trajectory"
	"github.com/MRamiBalles/TankArenaBridge/internal/network"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/config"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/metrics"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/optimization"
)

// Server is one arena service instance. It serves exactly one controller.
type Server struct {
	cfg      *config.Config
	logger   *logger.Logger
	metrics  *metrics.Collector
	eventLog *events.EventLog

	arena    *arena.Arena
	engine   *engine.Engine
	clock    *engine.Clock
	listener *network.Listener

	db        *sql.DB
	episodes  storage.EpisodeRepository
	cache     *cache.EpisodeCache
	publisher bus.Publisher
	recorder  *trajectory.Recorder

	hub        *network.Hub
	httpServer *http.Server
	httpLn     net.Listener

	bridge  atomic.Pointer[bridge.Synchronizer]
	started time.Time
}

// New validates the configuration, binds every socket and opens storage.
// Nothing runs until Run is called. Any failure here is a startup failure.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Server, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.Discard()
	}
	if log.Verbose() {
		cfg.LogSummary(log)
	}

	s := &Server{cfg: cfg, logger: log, metrics: metrics.NewCollector(), publisher: bus.NopPublisher{}}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.arena = arena.Default()
	if cfg.ArenaPath != "" {
		if s.arena, err = arena.Load(cfg.ArenaPath); err != nil {
			return nil, err
		}
	}

	var persisters []events.EventPersister
	if cfg.StoragePath != "" {
		if s.db, err = storage.InitSQLite(cfg.StoragePath); err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		eventRepo := storage.NewSQLiteEventRepository(s.db)
		s.episodes = storage.NewSQLiteEpisodeRepository(s.db)
		recon := storage.NewReconstructor(s.episodes, s.arena.Teams())
		s.cache = cache.NewEpisodeCache(s.episodes, recon, cache.DefaultSize, cache.DefaultExpiration)

		if cfg.NATSURL != "" {
			pub, err := bus.DialNATS(ctx, cfg.NATSURL, cfg.NATSBucket)
			if err != nil {
				return nil, err
			}
			s.publisher = pub
		}
		persisters = append(persisters, NewLedgerPersister(eventRepo, s.episodes, s.cache, s.publisher, s.metrics, log))
	}
	s.eventLog = events.NewEventLog(persisters...)
	s.eventLog.OnPersistError(func(e events.GameEvent, err error) {
		log.Error("failed to persist event", "type", string(e.Type), "err", err)
	})

	if cfg.TrajectoryDir != "" {
		if s.recorder, err = trajectory.NewRecorder(cfg.TrajectoryDir); err != nil {
			return nil, err
		}
	}

	if s.engine, err = engine.NewEngine(s.arena, engine.SettingsFromConfig(cfg), s.eventLog, log.With("component", "engine")); err != nil {
		return nil, err
	}
	s.clock = engine.NewClock(cfg.TimeScale)

	if s.listener, err = network.Listen(cfg.ListenAddress()); err != nil {
		return nil, err
	}

	if cfg.MonitorAddress != "" {
		s.hub = network.NewHub(cfg.SpectatorRate, log.With("component", "spectators"), s.metrics)
		var replay *network.ReplayHandler
		if s.db != nil {
			replay = network.NewReplayHandler(s.episodes, storage.NewSQLiteEventRepository(s.db), s.cache, log)
		}
		monitor := network.NewMonitor(s.hub, s.metrics, replay, s.statusSource)
		monitor.SetThresholds(s.thresholds())
		if s.httpLn, err = net.Listen("tcp", cfg.MonitorAddress); err != nil {
			return nil, fmt.Errorf("failed to bind monitor on %s: %w", cfg.MonitorAddress, err)
		}
		s.httpServer = &http.Server{Handler: monitor, ReadHeaderTimeout: 5 * time.Second}
	}

	log.Info("arena server ready", "controller", s.listener.Addr().String(), "arena", s.arena.Name)
	return s, nil
}

// thresholds gives each tick its wall-clock share. Unthrottled runs have no budget.
func (s *Server) thresholds() optimization.Thresholds {
	if s.cfg.Unthrottled {
		return optimization.DefaultThresholds(0)
	}
	interval := time.Duration(s.cfg.FixedDelta() / s.cfg.TimeScale * float64(time.Second))
	return optimization.DefaultThresholds(interval)
}

func (s *Server) statusSource() network.StatusSource {
	if b := s.bridge.Load(); b != nil {
		return b
	}
	return nil
}

// Addr is the controller listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// MonitorAddr is the HTTP monitor address, or nil when disabled.
func (s *Server) MonitorAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// EventLog exposes the in-memory ledger.
func (s *Server) EventLog() *events.EventLog {
	return s.eventLog
}

// Metrics exposes the collector.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// Run waits for the controller, then ticks until it sends end, ctx is
// cancelled, or the connection fails. Only the last case returns an error.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()

	if s.httpServer != nil {
		go s.hub.Run(ctx)
		s.hub.StartEventPoller(ctx, s.eventLog, 200*time.Millisecond)
		go func() {
			if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("monitor failed", "err", err)
			}
		}()
		s.logger.Info("monitor listening", "addr", s.httpLn.Addr().String())
	}

	s.logger.Info("waiting for controller", "addr", s.listener.Addr().String())
	conn, err := s.listener.Accept(ctx, s.cfg.ReceiveBufferSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.logger.Info("controller connected", "remote", conn.RemoteAddr())
	s.eventLog.Append(events.GameEvent{
		Type:     events.EventTypeControllerConnected,
		ActorID:  events.ActorController,
		TargetID: conn.RemoteAddr(),
	})

	opts := bridge.DefaultOptions()
	opts.ActionRepeat = s.cfg.ActionRepeat
	opts.FireThreshold = s.cfg.PlayerTriggerThreshold
	opts.Async = s.cfg.Async
	opts.QueueSize = s.cfg.AsyncQueueSize
	opts.ReplyTimeout = s.cfg.ReplyTimeoutDuration()

	b := bridge.NewSynchronizer(conn, s.engine, opts, s.logger.With("component", "bridge"), s.metrics, s.eventLog)
	if !opts.Async {
		b.SetClock(s.clock)
	}
	if s.recorder != nil {
		b.SetRecorder(s.recorder)
	}
	if s.hub != nil {
		b.SetFrameSink(s.hub)
	}
	s.bridge.Store(b)

	// A blocking receive must not outlive cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	b.Start(ctx)
	ticker := engine.NewTicker(s.engine, b, s.clock, engine.TickerOptions{
		Dt:              s.cfg.FixedDelta(),
		MaxCatchUpSteps: s.cfg.MaxCatchUpSteps,
		Unthrottled:     s.cfg.Unthrottled,
	}, s.logger.With("component", "ticker"), s.metrics)

	runErr := ticker.Run(ctx)
	if ctx.Err() != nil {
		runErr = nil
	}
	if err := b.Close(); err != nil && runErr == nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("controller close", "err", err)
	}
	s.logSummary(b.Status(), ticker.Steps())
	if runErr != nil {
		return fmt.Errorf("controller connection failed: %w", runErr)
	}
	return nil
}

func (s *Server) logSummary(st bridge.Status, steps int64) {
	s.logger.Info("arena server finished",
		"episodes", humanize.Comma(int64(st.Started)),
		"ticks", humanize.Comma(steps),
		"bytes_out", humanize.Bytes(uint64(atomic.LoadInt64(&s.metrics.BytesOut))),
		"bytes_in", humanize.Bytes(uint64(atomic.LoadInt64(&s.metrics.BytesIn))),
		"up_since", humanize.Time(s.started),
	)
	for _, note := range optimization.Analyze(s.metrics.Snapshot(), s.thresholds()).Notes {
		s.logger.Warn("tuning advice", "note", note)
	}
}

// Close releases every resource. Safe to call more than once.
func (s *Server) Close() error {
	var errs []error
	if s.listener != nil {
		errs = append(errs, s.listener.Close())
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, s.httpServer.Shutdown(ctx))
		cancel()
	}
	if s.httpLn != nil {
		// Shutdown only closes the listener once Serve has run.
		if err := s.httpLn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	return errors.Join(errs...)
}
