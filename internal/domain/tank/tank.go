// Package tank defines the core domain entity driven by the arena controllers.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package tank

import (
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/geom"
	"github.com/MRamiBalles/TankArenaBridge/internal/domain/projectile"
)

// Physical dimensions in arena units.
const (
	Radius       = 0.45
	BarrelLength = 0.6
	// DeadZone is the magnitude below which move and aim inputs are ignored.
	DeadZone = 0.1
)

// ControlSource identifies who produces a tank's control signals.
type ControlSource string

const (
	ControlRemote   ControlSource = "remote"   // External controller over the bridge
	ControlScripted ControlSource = "scripted" // Built-in pilot
)

// Control holds the instantaneous control values. They persist until overwritten.
type Control struct {
	Move geom.Vec2 `json:"move"`
	Aim  geom.Vec2 `json:"aim"`
	Fire bool      `json:"fire"`
}

// Tank represents one combatant in the arena.
type Tank struct {
	ID      int           `json:"id"`
	Team    int           `json:"team"`
	Source  ControlSource `json:"source"`
	Enabled bool          `json:"enabled"` // Disabled tanks stay on the field as inert targets

	Position geom.Vec2 `json:"position"`
	Heading  geom.Vec2 `json:"heading"` // Barrel direction, always unit length
	Control  Control   `json:"control"`

	Health    float64 `json:"health"`
	MaxHealth float64 `json:"max_health"`

	// Weapon
	ReloadSteps     int  `json:"reload_steps"`
	ReloadCountdown int  `json:"reload_countdown"`
	CanShoot        bool `json:"can_shoot"`

	Projectiles []*projectile.Projectile `json:"projectiles"`
}

// NewTank creates a fresh tank at its spawn point facing the given direction.
func NewTank(id, team int, source ControlSource, spawn, facing geom.Vec2, maxHealth float64, reloadSteps int) *Tank {
	heading := facing.Normalize()
	if heading == (geom.Vec2{}) {
		heading = geom.V(1, 0)
	}
	return &Tank{
		ID:          id,
		Team:        team,
		Source:      source,
		Enabled:     true,
		Position:    spawn,
		Heading:     heading,
		Health:      maxHealth,
		MaxHealth:   maxHealth,
		ReloadSteps: reloadSteps,
		CanShoot:    true,
		Projectiles: make([]*projectile.Projectile, 0, 8),
	}
}

// Alive reports whether the tank still has health.
func (t *Tank) Alive() bool {
	return t.Health > 0
}

// Velocity is the commanded move vector, zero inside the dead zone.
func (t *Tank) Velocity() geom.Vec2 {
	if t.Control.Move.Len() <= DeadZone {
		return geom.Vec2{}
	}
	return t.Control.Move
}

// SetControl overwrites the held control values. Disabled tanks ignore it.
func (t *Tank) SetControl(c Control) {
	if !t.Enabled {
		return
	}
	t.Control = c
	if c.Aim.Len() > DeadZone {
		t.Heading = c.Aim.Normalize()
	}
}

// Muzzle returns the barrel tip where projectiles spawn.
func (t *Tank) Muzzle() geom.Vec2 {
	return t.Position.Add(t.Heading.Scale(BarrelLength))
}

// TryFire consumes the reload if the trigger is held and the weapon is ready.
func (t *Tank) TryFire() bool {
	if !t.Enabled || !t.Control.Fire || !t.CanShoot {
		return false
	}
	t.CanShoot = false
	t.ReloadCountdown = t.ReloadSteps
	return true
}

// Reload advances the reload countdown by one tick.
func (t *Tank) Reload() {
	if t.CanShoot {
		return
	}
	t.ReloadCountdown--
	if t.ReloadCountdown <= 0 {
		t.ReloadCountdown = 0
		t.CanShoot = true
	}
}

// TakeDamage subtracts damage and reports whether the tank was destroyed by it.
func (t *Tank) TakeDamage(amount float64) bool {
	if !t.Alive() {
		return false
	}
	t.Health -= amount
	return !t.Alive()
}
