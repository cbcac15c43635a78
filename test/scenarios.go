// Package test runs end-to-end protocol scenarios against a live arena
// server. Every scenario starts its own server on an ephemeral port and
// drives it over TCP exactly as a training controller would.
package test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/app"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
	"github.com/MRamiBalles/TankArenaBridge/internal/envclient"
	"github.com/MRamiBalles/TankArenaBridge/internal/events"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/config"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

// Result captures the outcome of one scenario.
type Result struct {
	Scenario string
	Expected string
	Actual   string
	Passed   bool
	Reason   string
	Elapsed  time.Duration
}

// Scenario is one end-to-end check.
type Scenario struct {
	Name     string
	Expected string
	// Configure adjusts the server configuration before it starts.
	Configure func(*config.Config)
	Drive     func(ctx context.Context, h *harness) (actual string, err error)
}

// Suite runs the protocol scenarios in order.
type Suite struct {
	out       io.Writer
	logger    *logger.Logger
	timeout   time.Duration
	scenarios []Scenario
	results   []Result
}

// NewSuite creates the harness with scenarios A through D. Progress is
// printed to out.
func NewSuite(out io.Writer, log *logger.Logger) *Suite {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Suite{
		out:     out,
		logger:  log,
		timeout: 20 * time.Second,
		scenarios: []Scenario{
			scenarioStart(),
			scenarioRestart(),
			scenarioTimeLimit(),
			scenarioElimination(),
		},
		results: make([]Result, 0, 4),
	}
}

// SetTimeout bounds each scenario.
func (s *Suite) SetTimeout(d time.Duration) {
	s.timeout = d
}

// Scenarios lists the registered scenario names.
func (s *Suite) Scenarios() []string {
	names := make([]string, len(s.scenarios))
	for i, sc := range s.scenarios {
		names[i] = sc.Name
	}
	return names
}

// Run executes every scenario whose name contains filter (all when empty).
func (s *Suite) Run(ctx context.Context, filter string) []Result {
	fmt.Fprintln(s.out, strings.Repeat("=", 60))
	fmt.Fprintln(s.out, "ARENA PROTOCOL SCENARIOS")
	fmt.Fprintln(s.out, strings.Repeat("=", 60))

	for _, sc := range s.scenarios {
		if filter != "" && !strings.Contains(strings.ToLower(sc.Name), strings.ToLower(filter)) {
			continue
		}
		fmt.Fprintf(s.out, "\n%s\n", sc.Name)
		r := s.runOne(ctx, sc)
		s.results = append(s.results, r)
		if r.Passed {
			fmt.Fprintf(s.out, "   PASS  %s (%s)\n", r.Actual, r.Elapsed.Round(time.Millisecond))
		} else {
			fmt.Fprintf(s.out, "   FAIL  expected %s: %s\n", r.Expected, r.Reason)
		}
	}
	return s.results
}

// GetResults returns every result recorded so far.
func (s *Suite) GetResults() []Result {
	return s.results
}

func (s *Suite) runOne(ctx context.Context, sc Scenario) Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := Result{Scenario: sc.Name, Expected: sc.Expected}
	start := time.Now()

	h, err := startHarness(ctx, sc.Configure, s.logger.With("scenario", sc.Name))
	if err != nil {
		res.Reason = err.Error()
		res.Elapsed = time.Since(start)
		return res
	}

	actual, driveErr := sc.Drive(ctx, h)
	stopErr := h.stop()
	res.Actual = actual
	res.Elapsed = time.Since(start)
	switch {
	case driveErr != nil:
		res.Reason = driveErr.Error()
	case stopErr != nil:
		res.Reason = fmt.Sprintf("server did not shut down cleanly: %v", stopErr)
	default:
		res.Passed = true
	}
	return res
}

// harness is one running server and the channel its Run result arrives on.
type harness struct {
	server *app.Server
	runErr chan error
	cancel context.CancelFunc
}

func startHarness(ctx context.Context, configure func(*config.Config), log *logger.Logger) (*harness, error) {
	cfg := config.TrainingConfig()
	cfg.ConnectionIP = "127.0.0.1"
	cfg.ConnectionPort = 0
	cfg.StoragePath = ""
	cfg.TrajectoryDir = ""
	if configure != nil {
		configure(cfg)
	}

	runCtx, cancel := context.WithCancel(ctx)
	srv, err := app.New(runCtx, cfg, log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	h := &harness{server: srv, runErr: make(chan error, 1), cancel: cancel}
	go func() { h.runErr <- srv.Run(runCtx) }()
	return h, nil
}

func (h *harness) addr() string {
	return h.server.Addr().String()
}

func (h *harness) dial(ctx context.Context) (*envclient.Env, error) {
	opts := envclient.DefaultOptions()
	opts.Retries = 5
	opts.RetryDelay = 20 * time.Millisecond
	opts.Timeout = 5 * time.Second
	return envclient.Dial(ctx, h.addr(), opts)
}

// stop waits for Run to return after the controller ended the service.
// A server still running after a grace period is cancelled and reported.
func (h *harness) stop() error {
	defer h.server.Close()
	defer h.cancel()
	select {
	case err := <-h.runErr:
		return err
	case <-time.After(2 * time.Second):
		h.cancel()
		<-h.runErr
		return errors.New("still running after end")
	}
}

func (h *harness) lastResult(t events.EventType) (events.EpisodeResultPayload, bool) {
	found := h.server.EventLog().GetByType(t)
	if len(found) == 0 {
		return events.EpisodeResultPayload{}, false
	}
	p, ok := found[len(found)-1].Payload.(events.EpisodeResultPayload)
	return p, ok
}

// Scenario A: a raw start handshake followed by periodic full-length states.
func scenarioStart() Scenario {
	return Scenario{
		Name:     "A: start handshake then states",
		Expected: `{"starting":true} then 52-value states`,
		Drive: func(ctx context.Context, h *harness) (string, error) {
			c, err := dialRaw(ctx, h.addr())
			if err != nil {
				return "", err
			}
			defer c.conn.Close()

			if err := c.write(`{"start":true}`); err != nil {
				return "", err
			}
			raw, err := c.read(ctx)
			if err != nil {
				return "", err
			}
			if string(raw) != `{"starting":true}` {
				return string(raw), fmt.Errorf("first message was %s", raw)
			}

			const states = 3
			for i := 0; i < states; i++ {
				raw, err := c.read(ctx)
				if err != nil {
					return "", err
				}
				msg, err := protocol.DecodeStep(raw)
				if err != nil {
					return string(raw), err
				}
				if msg.Done || len(msg.State) != protocol.ObservationLength {
					return string(raw), fmt.Errorf("state %d is not a running observation", i)
				}
				if err := c.write(`{}`); err != nil {
					return "", err
				}
			}

			// Leave the way a controller would: abandon the episode, then end.
			if err := c.write(`{"restart":true}`); err != nil {
				return "", err
			}
			if err := c.awaitAck(ctx, func(a protocol.HandshakeAck) bool { return a.Restarting }); err != nil {
				return "", err
			}
			if err := c.write(`{"end":true}`); err != nil {
				return "", err
			}
			if err := c.awaitAck(ctx, func(a protocol.HandshakeAck) bool { return a.Ending }); err != nil {
				return "", err
			}
			return fmt.Sprintf("ack and %d states of %d values", states, protocol.ObservationLength), nil
		},
	}
}

// Scenario B: restart mid-episode resets the arena before the next start.
func scenarioRestart() Scenario {
	return Scenario{
		Name:     "B: restart mid-episode",
		Expected: "restarting ack and spawn positions on the next episode",
		Drive: func(ctx context.Context, h *harness) (string, error) {
			env, err := h.dial(ctx)
			if err != nil {
				return "", err
			}
			first, err := env.Reset(ctx)
			if err != nil {
				return "", err
			}
			spawnX := first.Observation[0]

			last := first
			for i := 0; i < 10; i++ {
				if last, err = env.Step(ctx, map[int]protocol.Action{1: {1, 0, 0, 0, 0}}); err != nil {
					return "", err
				}
			}
			if last.Observation[0] == spawnX {
				return "", errors.New("tank did not move before the restart")
			}

			again, err := env.Reset(ctx)
			if err != nil {
				return "", fmt.Errorf("restart: %w", err)
			}
			if again.Observation[0] != spawnX {
				return fmt.Sprintf("x=%.3f", again.Observation[0]),
					fmt.Errorf("tank carried x=%.3f into the new episode, spawn is %.3f", again.Observation[0], spawnX)
			}
			if err := env.Close(ctx); err != nil {
				return "", err
			}

			aborted, ok := h.lastResult(events.EventTypeEpisodeAborted)
			if !ok || aborted.Cause != string(rules.CauseRestart) {
				return "", errors.New("aborted episode was not recorded")
			}
			return fmt.Sprintf("moved to x=%.3f, restarted at x=%.3f", last.Observation[0], again.Observation[0]), nil
		},
	}
}

// Scenario C: both teams alive at the time limit ends in a draw.
func scenarioTimeLimit() Scenario {
	return Scenario{
		Name:     "C: time limit draw",
		Expected: fmt.Sprintf(`{"done":true,"winner":%d}`, rules.NoWinner),
		Configure: func(c *config.Config) {
			c.GameMaxTime = 0.5
		},
		Drive: func(ctx context.Context, h *harness) (string, error) {
			env, err := h.dial(ctx)
			if err != nil {
				return "", err
			}
			res, err := env.Reset(ctx)
			if err != nil {
				return "", err
			}
			steps := 0
			for !res.Done {
				if res, err = env.Step(ctx, map[int]protocol.Action{1: {}, 2: {}}); err != nil {
					return "", err
				}
				steps++
			}
			// done is sent without waiting for a reply; end must still be answered.
			if err := env.Close(ctx); err != nil {
				return "", err
			}
			actual := fmt.Sprintf(`{"done":true,"winner":%d} after %d steps`, res.Winner, steps)
			if res.Winner != rules.NoWinner {
				return actual, fmt.Errorf("expected a draw, got winner %d", res.Winner)
			}
			if result, ok := h.lastResult(events.EventTypeEpisodeFinished); !ok || result.Cause != string(rules.CauseTimeLimit) {
				return actual, errors.New("finished episode was not recorded as a time limit")
			}
			return actual, nil
		},
	}
}

// Scenario D: entity 1 shoots the disabled entity 2 until team 0 wins.
func scenarioElimination() Scenario {
	return Scenario{
		Name:     "D: elimination",
		Expected: `{"done":true,"winner":0}`,
		Configure: func(c *config.Config) {
			c.Player2Enabled = false
		},
		Drive: func(ctx context.Context, h *harness) (string, error) {
			env, err := h.dial(ctx)
			if err != nil {
				return "", err
			}
			res, err := env.Reset(ctx)
			if err != nil {
				return "", err
			}
			steps := 0
			for !res.Done {
				aim := aimAt(res.Observation)
				if res, err = env.Step(ctx, map[int]protocol.Action{1: {0, 0, aim[0], aim[1], 1}}); err != nil {
					return "", err
				}
				steps++
			}
			if err := env.Close(ctx); err != nil {
				return "", err
			}
			actual := fmt.Sprintf(`{"done":true,"winner":%d} after %d steps`, res.Winner, steps)
			if res.Winner != 0 {
				return actual, fmt.Errorf("expected team 0 to win, got %d", res.Winner)
			}
			if len(h.server.EventLog().GetByType(events.EventTypeTankDestroyed)) != 1 {
				return actual, errors.New("expected exactly one destroyed tank")
			}
			return actual, nil
		},
	}
}

// aimAt points slot 0 at slot 1 in world coordinates.
func aimAt(obs protocol.Observation) [2]float64 {
	self, other := obs.Entity(0), obs.Entity(1)
	dx := (other[0] - self[0]) * protocol.PositionScaleX
	dy := (other[1] - self[1]) * protocol.PositionScaleY
	n := math.Hypot(dx, dy)
	if n == 0 {
		return [2]float64{1, 0}
	}
	return [2]float64{dx / n, dy / n}
}

// rawConn speaks the wire protocol without the client library.
type rawConn struct {
	conn   net.Conn
	framer *protocol.Framer
	buf    []byte
}

func dialRaw(ctx context.Context, addr string) (*rawConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &rawConn{conn: conn, framer: protocol.NewFramer(0), buf: make([]byte, 4096)}, nil
}

func (c *rawConn) write(msg string) error {
	_, err := c.conn.Write([]byte(msg))
	return err
}

func (c *rawConn) read(ctx context.Context) ([]byte, error) {
	for {
		if msg, err := c.framer.Next(); err == nil && msg != nil {
			return msg, nil
		}
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(5 * time.Second)
		}
		c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			c.framer.Push(c.buf[:n])
		}
		if err != nil {
			return nil, err
		}
	}
}

// awaitAck skips step messages until match accepts an acknowledgement.
func (c *rawConn) awaitAck(ctx context.Context, match func(protocol.HandshakeAck) bool) error {
	for {
		raw, err := c.read(ctx)
		if err != nil {
			return err
		}
		if ack, err := protocol.DecodeAck(raw); err == nil && match(ack) {
			return nil
		}
	}
}
