// Package bridge couples the fixed-step simulation to a single remote
// controller. The Synchronizer is the only entry point: the host loop calls
// Tick once per simulation step and the bridge decides whether to exchange
// an observation for an action on that tick.
package bridge

import (
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/geom"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/trajectory"
)

// Transport is the controller connection. Send writes one whole message;
// Receive returns whatever one read produced, possibly nothing.
type Transport interface {
	Send(payload []byte) error
	Receive() ([]byte, error)
	Close() error
}

// receiveDeadliner is implemented by transports whose Receive can be bounded.
type receiveDeadliner interface {
	SetReceiveTimeout(d time.Duration)
}

// Clock is the simulation's real-time clock. The bridge holds it while it
// waits on the controller.
type Clock interface {
	Pause()
	Resume()
}

// ProjectileView is the observable state of one live projectile.
type ProjectileView struct {
	Position geom.Vec2
	Velocity geom.Vec2 // displacement per tick
}

// EntityView is the observable state of one tracked entity. Present is false
// once the entity has been removed from the arena.
type EntityView struct {
	ID          int
	Team        int
	Present     bool
	Position    geom.Vec2
	Velocity    geom.Vec2
	Aim         geom.Vec2
	Projectiles []ProjectileView
}

// World is everything the bridge needs from the host simulation.
type World interface {
	// Reset reloads entity placement. Nothing carries over from a previous episode.
	Reset()
	// Begin starts simulated time for a new episode.
	Begin(episodeID string)
	// Halt freezes the simulation after the episode ended.
	Halt()

	// Tracked returns the tracked entities in observation slot order.
	Tracked() []EntityView
	// Outcome is the termination verdict after the latest step.
	Outcome() rules.Outcome

	// RemoteEntities lists the entity ids driven by the controller.
	RemoteEntities() []int
	// ApplyControl overwrites the held control values of one entity and
	// reports whether the entity accepted them.
	ApplyControl(id int, c tank.Control) bool
}

// Recorder persists the exchanged frames of an episode.
type Recorder interface {
	Begin(episodeID string) error
	Record(frame trajectory.Frame) error
	Finish() (path, fingerprint string, err error)
	Discard() error
}

// Frame is one exchanged observation, published to spectators.
type Frame struct {
	EpisodeID string    `json:"episode_id"`
	Tick      int64     `json:"tick"`
	State     []float64 `json:"state"`
	Done      bool      `json:"done,omitempty"`
	Winner    int       `json:"winner"`
}

// FrameSink receives every exchanged observation. It must not block.
type FrameSink interface {
	PublishFrame(frame Frame)
}

type nopClock struct{}

func (nopClock) Pause()  {}
func (nopClock) Resume() {}
