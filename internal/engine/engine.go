package engine

import (
	"fmt"
	"strconv"

	"github.com/MRamiBalles/TankArenaBridge/internal/bridge"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/arena"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/tank"
	"github.com/MRamiBalles/TankArenaBridge/internal/events"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/config"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

// Settings are the simulation tunables, resolved from the config once.
type Settings struct {
	Dt           float64
	MaxTime      float64
	Speed        float64
	ReloadTime   float64
	MaxHealth    float64
	BulletSpeed  float64
	BulletTTL    float64
	BulletDamage float64
	Seed         int64
	Entities     []config.EntitySettings
}

// SettingsFromConfig extracts the simulation settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Dt:           cfg.FixedDelta(),
		MaxTime:      cfg.GameMaxTime,
		Speed:        cfg.PlayerSpeed,
		ReloadTime:   cfg.PlayerReloadTime,
		MaxHealth:    cfg.PlayerMaxHealth,
		BulletSpeed:  cfg.BulletSpeed,
		BulletTTL:    cfg.BulletTimeToLive,
		BulletDamage: cfg.BulletDamage,
		Seed:         cfg.Seed,
		Entities:     cfg.Entities(),
	}
}

// Engine is the headless arena. It implements bridge.World and is driven
// from a single goroutine by the Ticker.
type Engine struct {
	arena    *arena.Arena
	settings Settings
	eventLog *events.EventLog
	logger   *logger.Logger

	// Sub-systems
	pilotSystem      *PilotSystem
	movementSystem   *MovementSystem
	weaponSystem     *WeaponSystem
	projectileSystem *ProjectileSystem
	matchSystem      *MatchSystem

	// State
	tanks     []*tank.Tank // spawn order
	byID      map[int]*tank.Tank
	episodeID string
	running   bool
	tick      int64
	outcome   rules.Outcome
}

// NewEngine builds the arena and places the tanks.
func NewEngine(a *arena.Arena, s Settings, eventLog *events.EventLog, log *logger.Logger) (*Engine, error) {
	if len(a.Teams()) < 2 {
		return nil, fmt.Errorf("arena %q needs at least two teams", a.Name)
	}
	if len(a.Spawns) < protocol.TrackedEntities {
		return nil, fmt.Errorf("arena %q needs at least %d spawns", a.Name, protocol.TrackedEntities)
	}
	if s.Dt <= 0 {
		return nil, fmt.Errorf("fixed delta must be positive, got %v", s.Dt)
	}
	if log == nil {
		log = logger.Discard()
	}
	if eventLog == nil {
		eventLog = events.NewEventLog()
	}

	e := &Engine{
		arena:    a,
		settings: s,
		eventLog: eventLog,
		logger:   log,

		pilotSystem:      NewPilotSystem(s.Seed, s.Speed, s.BulletSpeed),
		movementSystem:   NewMovementSystem(a, s.Speed),
		weaponSystem:     NewWeaponSystem(s.BulletSpeed, s.BulletDamage, rules.StepsFor(s.BulletTTL, s.Dt)),
		projectileSystem: NewProjectileSystem(a),
		matchSystem:      NewMatchSystem(s.MaxTime),

		byID:    make(map[int]*tank.Tank),
		outcome: rules.Running,
	}
	e.Reset()
	return e, nil
}

func (e *Engine) entitySettings(id int) config.EntitySettings {
	for _, es := range e.settings.Entities {
		if es.ID == id {
			return es
		}
	}
	return config.EntitySettings{ID: id, Remote: true, Enabled: true}
}

// Reset places fresh tanks at their spawns. Nothing from the previous
// episode survives.
func (e *Engine) Reset() {
	reload := rules.StepsFor(e.settings.ReloadTime, e.settings.Dt)
	e.tanks = e.tanks[:0]
	clear(e.byID)
	for _, sp := range e.arena.Spawns {
		es := e.entitySettings(sp.ID)
		source := tank.ControlScripted
		if es.Remote {
			source = tank.ControlRemote
		}
		t := tank.NewTank(sp.ID, sp.Team, source, sp.At, sp.Facing, e.settings.MaxHealth, reload)
		t.Enabled = es.Enabled
		e.tanks = append(e.tanks, t)
		e.byID[t.ID] = t
	}
	e.pilotSystem.Reset(e.tanks)
	e.matchSystem.Reset()
	e.running = false
	e.tick = 0
	e.episodeID = ""
	e.outcome = rules.Running
	e.logger.Debug("arena reset", "arena", e.arena.Name, "tanks", len(e.tanks))
}

// Begin starts simulated time.
func (e *Engine) Begin(episodeID string) {
	e.episodeID = episodeID
	e.running = true
}

// Halt freezes the simulation until the next Reset.
func (e *Engine) Halt() {
	e.running = false
}

// Running reports whether Step advances the simulation.
func (e *Engine) Running() bool {
	return e.running
}

// Step advances the arena by dt. It does nothing while halted or once the
// episode has an outcome.
func (e *Engine) Step(dt float64) {
	if !e.running || e.outcome.Done {
		return
	}
	e.tick++

	e.pilotSystem.Step(e.tanks)
	e.movementSystem.Step(e.tanks, dt)
	e.weaponSystem.Step(e.tanks, dt)
	for _, k := range e.projectileSystem.Step(e.tanks) {
		e.recordKill(k)
	}
	e.outcome = e.matchSystem.Step(e.tanks, dt)
}

func (e *Engine) recordKill(k Kill) {
	e.eventLog.Append(events.GameEvent{
		Type:      events.EventTypeTankDestroyed,
		ActorID:   "TANK_" + strconv.Itoa(k.Shooter.ID),
		TargetID:  "TANK_" + strconv.Itoa(k.Victim.ID),
		EpisodeID: e.episodeID,
		Tick:      e.tick,
		Payload: events.TankDestroyedPayload{
			TankID:    k.Victim.ID,
			Team:      k.Victim.Team,
			ShooterID: k.Shooter.ID,
		},
	})
	e.logger.Event(string(events.EventTypeTankDestroyed), strconv.Itoa(k.Shooter.ID), "destroyed tank "+strconv.Itoa(k.Victim.ID))
}

// Tracked returns the first protocol.TrackedEntities tanks in spawn order.
func (e *Engine) Tracked() []bridge.EntityView {
	n := min(len(e.tanks), protocol.TrackedEntities)
	views := make([]bridge.EntityView, 0, n)
	for _, t := range e.tanks[:n] {
		v := bridge.EntityView{ID: t.ID, Team: t.Team, Present: t.Alive()}
		if v.Present {
			v.Position = t.Position
			v.Velocity = t.Control.Move
			v.Aim = t.Control.Aim
			for _, p := range t.Projectiles {
				v.Projectiles = append(v.Projectiles, bridge.ProjectileView{Position: p.Position, Velocity: p.Velocity})
			}
		}
		views = append(views, v)
	}
	return views
}

func (e *Engine) Outcome() rules.Outcome {
	return e.outcome
}

// RemoteEntities lists tanks flown by the controller, in spawn order.
func (e *Engine) RemoteEntities() []int {
	var ids []int
	for _, t := range e.tanks {
		if t.Source == tank.ControlRemote {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// ApplyControl hands a remote tank its control. Scripted, disabled and
// destroyed tanks refuse.
func (e *Engine) ApplyControl(id int, c tank.Control) bool {
	t, ok := e.byID[id]
	if !ok || t.Source != tank.ControlRemote || !t.Enabled || !t.Alive() {
		return false
	}
	t.SetControl(c)
	return true
}

// Tank returns a tank by id for inspection.
func (e *Engine) Tank(id int) (*tank.Tank, bool) {
	t, ok := e.byID[id]
	return t, ok
}

// Elapsed is the simulated time of the current episode.
func (e *Engine) Elapsed() float64 {
	return e.matchSystem.Elapsed()
}
