package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/bridge"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/metrics"
)

// Clock converts wall time into simulated seconds. Time that passes while
// the clock is paused is discarded, so a long controller wait never turns
// into a burst of catch-up ticks.
type Clock struct {
	mu      sync.Mutex
	now     func() time.Time
	scale   float64
	last    time.Time
	pending float64
	paused  bool
}

// NewClock creates a running clock. scale multiplies wall time.
func NewClock(scale float64) *Clock {
	return newClockAt(scale, time.Now)
}

func newClockAt(scale float64, now func() time.Time) *Clock {
	if scale <= 0 {
		scale = 1
	}
	return &Clock{now: now, scale: scale, last: now()}
}

// Pause stops the clock. Time already elapsed is kept for the next Advance.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.collect()
	c.paused = true
}

// Resume restarts the clock from now.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	c.last = c.now()
}

// Paused reports whether the clock is held.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Advance returns the simulated seconds since the previous call.
func (c *Clock) Advance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		c.collect()
	}
	out := c.pending
	c.pending = 0
	return out
}

func (c *Clock) collect() {
	now := c.now()
	c.pending += now.Sub(c.last).Seconds() * c.scale
	c.last = now
}

// Stepper is the simulation advanced once per fixed tick.
type Stepper interface {
	Step(dt float64)
}

// Bridge is the controller side of a tick.
type Bridge interface {
	Tick(dt float64) error
	Stopped() bool
}

// TickerOptions configure the fixed-step loop.
type TickerOptions struct {
	Dt float64
	// MaxCatchUpSteps bounds the ticks run for one wake-up. Backlog beyond
	// it is dropped.
	MaxCatchUpSteps int
	// Unthrottled runs ticks back to back, ignoring the clock.
	Unthrottled bool
}

// Ticker drives the simulation and the bridge at a fixed step.
type Ticker struct {
	world   Stepper
	bridge  Bridge
	clock   *Clock
	opts    TickerOptions
	logger  *logger.Logger
	metrics *metrics.Collector

	steps       int64
	accumulator float64
}

// NewTicker creates the loop. The same clock must be installed on the bridge.
func NewTicker(world Stepper, b Bridge, clock *Clock, opts TickerOptions, log *logger.Logger, m *metrics.Collector) *Ticker {
	if opts.MaxCatchUpSteps < 1 {
		opts.MaxCatchUpSteps = 1
	}
	if clock == nil {
		clock = NewClock(1)
	}
	if log == nil {
		log = logger.Discard()
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Ticker{world: world, bridge: b, clock: clock, opts: opts, logger: log, metrics: m}
}

// Steps returns the number of ticks run so far.
func (t *Ticker) Steps() int64 {
	return t.steps
}

// Run ticks until ctx is cancelled, the bridge stops, or the bridge fails.
// A clean stop returns nil.
func (t *Ticker) Run(ctx context.Context) error {
	t.logger.Info("ticker started", "dt", t.opts.Dt, "unthrottled", t.opts.Unthrottled)
	defer t.logger.Info("ticker stopped", "steps", t.steps)

	if t.opts.Unthrottled {
		for {
			if err := ctx.Err(); err != nil {
				return nil
			}
			if done, err := t.step(); done || err != nil {
				return err
			}
		}
	}

	interval := time.Duration(t.opts.Dt / t.clock.scale * float64(time.Second))
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if done, err := t.catchUp(); done || err != nil {
				return err
			}
		}
	}
}

// catchUp runs every tick owed by the clock, up to MaxCatchUpSteps.
func (t *Ticker) catchUp() (bool, error) {
	t.accumulator += t.clock.Advance()
	n := 0
	for t.accumulator >= t.opts.Dt && n < t.opts.MaxCatchUpSteps {
		t.accumulator -= t.opts.Dt
		n++
		if done, err := t.step(); done || err != nil {
			return done, err
		}
	}
	if t.accumulator >= t.opts.Dt {
		t.logger.Debug("dropping tick backlog", "seconds", t.accumulator)
		t.accumulator = 0
	}
	return false, nil
}

// step runs one fixed tick: simulation first, then the bridge.
func (t *Ticker) step() (bool, error) {
	start := time.Now()
	t.world.Step(t.opts.Dt)
	err := t.bridge.Tick(t.opts.Dt)
	t.steps++
	t.metrics.RecordTick(time.Since(start))

	if errors.Is(err, bridge.ErrStopped) || t.bridge.Stopped() {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return false, nil
}
