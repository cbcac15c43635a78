// Package projectile defines the shells fired by tanks.
// This package is PURE and must NOT import any infrastructure packages.
package projectile

import "github.com/MRamiBalles/TankArenaBridge/internal/domain/geom"

// Radius of a projectile in arena units.
const Radius = 0.1

// Projectile is a shell in flight. Velocity is the displacement per tick.
type Projectile struct {
	OwnerID  int       `json:"owner_id"`
	Position geom.Vec2 `json:"position"`
	Velocity geom.Vec2 `json:"velocity"`
	Damage   float64   `json:"damage"`
	TTL      int       `json:"ttl"` // Remaining ticks
}

// New creates a projectile travelling along dir at speed units/second.
func New(ownerID int, at, dir geom.Vec2, speed, dt, damage float64, ttlTicks int) *Projectile {
	return &Projectile{
		OwnerID:  ownerID,
		Position: at,
		Velocity: dir.Normalize().Scale(speed * dt),
		Damage:   damage,
		TTL:      ttlTicks,
	}
}

// Advance moves the projectile one tick and reports whether it is still live.
func (p *Projectile) Advance() bool {
	p.Position = p.Position.Add(p.Velocity)
	p.TTL--
	return p.TTL > 0
}
